package world

import (
	"encoding/json"
	"time"

	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/storage"
)

// RelationKind names a typed association between two entities.
type RelationKind string

const (
	// RelLocation places an entity in a location. Functional: an entity
	// occupies at most one location at a time.
	RelLocation RelationKind = "location"
	// RelContains nests an entity inside another (containment).
	RelContains RelationKind = "contains"
	// RelLink is a symmetric social/arbitrary association.
	RelLink RelationKind = "link"
)

// EffectKind tags the closed set of mutation variants. Rule modules emit
// effects; only Store.Apply interprets them. The set is curated on purpose:
// new world behavior means a new tagged variant here, not dynamic dispatch.
type EffectKind string

const (
	EffectCreate     EffectKind = "create"
	EffectDestroy    EffectKind = "destroy"
	EffectSetAttr    EffectKind = "set_attr"
	EffectDropAttr   EffectKind = "drop_attr"
	EffectMove       EffectKind = "move"
	EffectShiftLoc   EffectKind = "shift_loc"
	EffectGrantBonus EffectKind = "grant_bonus"
	EffectClearBonus EffectKind = "clear_bonus"
	EffectRelate     EffectKind = "relate"
	EffectUnrelate   EffectKind = "unrelate"
)

// Effect is one minimal, serializable mutation. World events carry their
// effects in the journal so replay applies them without re-validation.
type Effect struct {
	Kind     EffectKind         `json:"kind"`
	Entity   storage.Identifier `json:"entity,omitempty"`
	Target   storage.Identifier `json:"target,omitempty"`
	Relation RelationKind       `json:"relation,omitempty"`
	Key      string             `json:"key,omitempty"`
	Value    json.RawMessage    `json:"value,omitempty"`

	// Layer-system fields.
	Loc    layer.Mask `json:"loc,omitempty"`
	See    layer.Mask `json:"see,omitempty"`
	Touch  layer.Mask `json:"touch,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`

	// Create payload.
	Spec *EntitySpec `json:"spec,omitempty"`
}

// Convenience constructors keep rule modules terse and uniform.

func Create(id storage.Identifier, spec *EntitySpec) Effect {
	return Effect{Kind: EffectCreate, Entity: id, Spec: spec}
}

func Destroy(id storage.Identifier) Effect {
	return Effect{Kind: EffectDestroy, Entity: id}
}

func SetAttr(id storage.Identifier, key string, value json.RawMessage) Effect {
	return Effect{Kind: EffectSetAttr, Entity: id, Key: key, Value: value}
}

func DropAttr(id storage.Identifier, key string) Effect {
	return Effect{Kind: EffectDropAttr, Entity: id, Key: key}
}

func Move(id, to storage.Identifier) Effect {
	return Effect{Kind: EffectMove, Entity: id, Target: to}
}

func ShiftLoc(id storage.Identifier, loc layer.Mask) Effect {
	return Effect{Kind: EffectShiftLoc, Entity: id, Loc: loc}
}

func GrantBonus(id storage.Identifier, see, touch layer.Mask, expiry time.Time) Effect {
	return Effect{Kind: EffectGrantBonus, Entity: id, See: see, Touch: touch, Expiry: &expiry}
}

func ClearBonus(id storage.Identifier) Effect {
	return Effect{Kind: EffectClearBonus, Entity: id}
}

func Relate(kind RelationKind, from, to storage.Identifier) Effect {
	return Effect{Kind: EffectRelate, Relation: kind, Entity: from, Target: to}
}

func Unrelate(kind RelationKind, from, to storage.Identifier) Effect {
	return Effect{Kind: EffectUnrelate, Relation: kind, Entity: from, Target: to}
}
