package world

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/storage"
)

// EntitySpec is the loadable description of an entity: the payload of seed
// assets and of create attempts. Layer fields hold names, resolved against
// the registry when the spec is materialized.
type EntitySpec struct {
	Name     string                 `json:"name"`
	Kind     string                 `json:"kind"`
	Layers   []string               `json:"layers,omitempty"`
	Attrs    storage.ExtensionState `json:"attrs,omitempty"`
	Location storage.Identifier     `json:"location,omitempty"`
	Viewer   *ViewerSpec            `json:"viewer,omitempty"`
}

// ViewerSpec adds perception capability to a spec.
type ViewerSpec struct {
	Loc   string   `json:"loc"`
	See   []string `json:"see,omitempty"`
	Touch []string `json:"touch,omitempty"`
}

func (s *EntitySpec) Validate() error {
	el := errors.NewErrorList()

	if s.Name == "" {
		el.Add(fmt.Errorf("name is required"))
	}

	switch s.Kind {
	case KindLocation, KindExit, KindItem, KindCharacter:
	case "":
		el.Add(fmt.Errorf("kind is required"))
	default:
		el.Add(fmt.Errorf("unknown kind %q", s.Kind))
	}

	if _, err := layer.Parse(s.Layers); err != nil {
		el.Add(fmt.Errorf("layers: %w", err))
	}

	if s.Viewer != nil {
		if s.Viewer.Loc == "" {
			el.Add(fmt.Errorf("viewer loc is required"))
		} else if m, err := layer.Parse([]string{s.Viewer.Loc}); err != nil {
			el.Add(fmt.Errorf("viewer loc: %w", err))
		} else if !m.Single() {
			el.Add(fmt.Errorf("viewer loc must name exactly one layer"))
		}
		if _, err := layer.Parse(s.Viewer.See); err != nil {
			el.Add(fmt.Errorf("viewer see: %w", err))
		}
		if _, err := layer.Parse(s.Viewer.Touch); err != nil {
			el.Add(fmt.Errorf("viewer touch: %w", err))
		}
	}

	return el.Err()
}

// Selector labels the spec in interactive pickers.
func (s *EntitySpec) Selector() string {
	return s.Name
}

// materialize resolves the spec into an entity. SEE is widened to cover LOC
// so a freshly created viewer can never violate the perception invariants.
func (s *EntitySpec) materialize(id storage.Identifier) (*Entity, error) {
	layers, err := layer.Parse(s.Layers)
	if err != nil {
		return nil, err
	}

	e := &Entity{
		ID:     id,
		Name:   s.Name,
		Kind:   s.Kind,
		Layers: layers,
		Attrs:  s.Attrs.Clone(),
	}

	if s.Viewer != nil {
		loc, err := layer.Parse([]string{s.Viewer.Loc})
		if err != nil {
			return nil, err
		}
		see, err := layer.Parse(s.Viewer.See)
		if err != nil {
			return nil, err
		}
		touch, err := layer.Parse(s.Viewer.Touch)
		if err != nil {
			return nil, err
		}
		e.Perception = &Perception{
			Loc:       loc,
			SeeBase:   see | loc,
			TouchBase: touch,
		}
	}

	return e, nil
}

// ParseBonusExpiry is a small helper for rule payloads carrying durations.
func ParseBonusExpiry(now time.Time, d string) (time.Time, error) {
	dur, err := time.ParseDuration(d)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing bonus duration: %w", err)
	}
	if dur <= 0 {
		return time.Time{}, fmt.Errorf("bonus duration must be positive")
	}
	return now.Add(dur), nil
}
