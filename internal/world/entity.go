// Package world holds the authoritative entity/relation/attribute graph.
// It is the single source of truth: mutation happens only through
// Store.Apply, invoked by the engine as the committed effect of a world
// event, and reads go through immutable snapshots.
package world

import (
	"time"

	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/storage"
)

// Entity kinds. The set is small and closed; behavior differences hang off
// relations and attributes, not subtypes.
const (
	KindLocation  = "location"
	KindExit      = "exit"
	KindItem      = "item"
	KindCharacter = "character"
)

// Well-known attribute keys.
const (
	AttrDesc      = "desc"
	AttrDirection = "direction" // exit: travel verb ("north", "out", ...)
	AttrExitTo    = "to"        // exit: destination location id
	AttrExitAllow = "allow"     // exit: gating layer names ([]string)
)

// reservedAttrKeys can never be written through the attribute path; the
// layer system is mutated only by its dedicated effects.
var reservedAttrKeys = map[string]bool{
	"layers": true,
	"loc":    true,
	"see":    true,
	"touch":  true,
}

// ReservedAttr reports whether key belongs to the layer system and is
// therefore off limits to attribute writes.
func ReservedAttr(key string) bool {
	return reservedAttrKeys[key]
}

// Entity is a world-resident object: location, exit, item or character.
type Entity struct {
	ID     storage.Identifier
	Name   string
	Kind   string
	Layers layer.Mask
	Attrs  storage.ExtensionState

	// Perception is non-nil only for viewers.
	Perception *Perception
}

// Viewer reports whether the entity has perception capability.
func (e *Entity) Viewer() bool {
	return e.Perception != nil
}

// Clone returns an independent copy safe to hand outside the store.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Attrs = e.Attrs.Clone()
	if e.Perception != nil {
		p := *e.Perception
		out.Perception = &p
	}
	return &out
}

// Perception holds a viewer's layer attributes. LOC is the single travel
// layer; SEE and TOUCH are derived from base and time-scoped bonus masks.
type Perception struct {
	Loc         layer.Mask `json:"loc"`
	SeeBase     layer.Mask `json:"see_base"`
	SeeBonus    layer.Mask `json:"see_bonus,omitempty"`
	TouchBase   layer.Mask `json:"touch_base,omitempty"`
	TouchBonus  layer.Mask `json:"touch_bonus,omitempty"`
	BonusExpiry time.Time  `json:"bonus_expiry,omitempty"`
}

// See is the full visibility mask.
func (p *Perception) See() layer.Mask {
	return p.SeeBase | p.SeeBonus
}

// Touch is the full reach mask. An unset base defaults to LOC.
func (p *Perception) Touch() layer.Mask {
	base := p.TouchBase
	if base == 0 {
		base = p.Loc
	}
	return base | p.TouchBonus
}

// BonusActive reports whether the time-scoped bonus is in force at t.
func (p *Perception) BonusActive(t time.Time) bool {
	return !p.BonusExpiry.IsZero() && t.Before(p.BonusExpiry)
}

// check verifies the viewer invariants. These must hold after every
// committed mutation, never only eventually.
func (p *Perception) check(id storage.Identifier) error {
	if !p.Loc.Single() {
		return invariant(id, "LOC must hold exactly one layer, has %d", p.Loc.Count())
	}
	if !p.See().Has(p.Loc) {
		return invariant(id, "SEE %s does not cover LOC %s", p.See(), p.Loc)
	}
	return nil
}
