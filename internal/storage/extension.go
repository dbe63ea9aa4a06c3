package storage

import (
	"encoding/json"
	"fmt"
)

// ExtensionState is a typed key→value attribute bag. Values are held as raw
// JSON so arbitrary structures survive a save/load round trip unchanged.
type ExtensionState map[string]json.RawMessage

// Set stores v under key after marshalling it to JSON.
func (e *ExtensionState) Set(k string, v any) error {
	if *e == nil {
		*e = ExtensionState{}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal extension %q: %w", k, err)
	}

	(*e)[k] = json.RawMessage(b)
	return nil
}

// SetRaw stores an already-encoded JSON value under key.
func (e *ExtensionState) SetRaw(k string, raw json.RawMessage) {
	if *e == nil {
		*e = ExtensionState{}
	}
	(*e)[k] = raw
}

// Get unmarshals the extension value at key into out.
// Returns (found=false, nil) if not present.
func (e ExtensionState) Get(key string, out any) (bool, error) {
	if e == nil {
		return false, nil
	}

	raw, ok := e[key]
	if !ok || len(raw) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("unmarshal extension %q: %w", key, err)
	}
	return true, nil
}

// Delete removes the extension key, if present.
func (e ExtensionState) Delete(key string) {
	if e == nil {
		return
	}
	delete(e, key)
}

// Clone returns an independent copy. RawMessage values are never mutated in
// place, so sharing the byte slices is safe.
func (e ExtensionState) Clone() ExtensionState {
	if e == nil {
		return nil
	}
	out := make(ExtensionState, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
