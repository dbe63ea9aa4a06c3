package rules

import (
	"encoding/json"

	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// Attempt payloads. These are the wire shapes clients submit; the matching
// fact payloads below are what committed world events carry.

// MovePayload requests travel. Exactly one of Direction or Layer is set:
// Direction names an exit out of the current location, Layer names a
// sideways shift of the travel layer in place.
type MovePayload struct {
	Direction string `json:"direction,omitempty"`
	Layer     string `json:"layer,omitempty"`
}

type SayPayload struct {
	Message string `json:"message"`
}

type PosePayload struct {
	Action string `json:"action"`
}

type InteractPayload struct {
	Target storage.Identifier `json:"target"`
	Verb   string             `json:"verb"`
}

// AttributePayload writes or drops one attribute on an entity.
type AttributePayload struct {
	Entity storage.Identifier `json:"entity"`
	Key    string             `json:"key"`
	Value  json.RawMessage    `json:"value,omitempty"`
	Drop   bool               `json:"drop,omitempty"`
}

type CreatePayload struct {
	ID   storage.Identifier `json:"id"`
	Spec world.EntitySpec   `json:"spec"`
}

type DestroyPayload struct {
	Entity storage.Identifier `json:"entity"`
}

// BonusClearPayload lapses a viewer's time-scoped perception bonus. The
// engine submits these itself when an expiry tick fires; the entity is
// the viewer whose bonus is due.
type BonusClearPayload struct {
	Entity storage.Identifier `json:"entity"`
}

// Fact payloads.

// MoveFact is shared by the departure and arrival events of one travel.
type MoveFact struct {
	From      storage.Identifier `json:"from"`
	To        storage.Identifier `json:"to"`
	Direction string             `json:"direction,omitempty"`
	Layer     string             `json:"layer,omitempty"`
}

type SayFact struct {
	Message string `json:"message"`
}

type PoseFact struct {
	Action string `json:"action"`
}

type InteractFact struct {
	Target     storage.Identifier `json:"target"`
	TargetName string             `json:"target_name"`
	Verb       string             `json:"verb"`
}

type AttributeFact struct {
	Entity storage.Identifier `json:"entity"`
	Key    string             `json:"key"`
	Value  json.RawMessage    `json:"value,omitempty"`
	Drop   bool               `json:"drop,omitempty"`
}

type CreateFact struct {
	ID   storage.Identifier `json:"id"`
	Spec world.EntitySpec   `json:"spec"`
}

type DestroyFact struct {
	Entity storage.Identifier `json:"entity"`
	Name   string             `json:"name"`
}

type BonusClearFact struct {
	Entity storage.Identifier `json:"entity"`
}

func decode(raw json.RawMessage, out any) bool {
	return json.Unmarshal(raw, out) == nil
}
