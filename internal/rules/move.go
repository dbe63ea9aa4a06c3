package rules

import (
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// moveModule validates travel. Exit travel checks that an exit with the
// requested direction exists at the actor's location and that its allow
// mask intersects the actor's LOC. Layer travel checks that the location
// itself exists on the requested layer. Either way the verdict commits a
// departure/arrival event pair driven by the same effects.
type moveModule struct{}

func (moveModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p MovePayload
	if !decode(a.Payload, &p) || (p.Direction == "") == (p.Layer == "") {
		return Refuse(ReasonBadPayload), nil
	}
	actor, refusal := actorViewer(a, snap)
	if refusal != nil {
		return refusal, nil
	}
	from, ok := snap.LocationOf(actor.ID)
	if !ok {
		return Refuse(ReasonNowhere), nil
	}
	if p.Layer != "" {
		return shiftLayer(a, snap, actor, from, p.Layer)
	}

	exit, ok := snap.ExitFrom(from, p.Direction)
	if !ok {
		return Refuse(ReasonNoExit), nil
	}
	allow, err := exitAllow(exit)
	if err != nil {
		return nil, err
	}
	if !layer.ExitUsable(allow, actor.Perception.Loc) {
		return Refuse(ReasonLayerBlocked), nil
	}
	var to string
	if ok, err := exit.Attrs.Get(world.AttrExitTo, &to); err != nil || !ok {
		return Refuse(ReasonNoExit), nil
	}
	dest, err := snap.Entity(storage.Identifier(to))
	if err != nil {
		return Refuse(ReasonUnknownEntity), nil
	}

	fact := MoveFact{From: from, To: dest.ID, Direction: p.Direction}
	return Accept(
		Fact{
			Type:     event.TypeEntityLeft,
			Location: from,
			Payload:  fact,
			Effects:  []world.Effect{world.Move(actor.ID, dest.ID)},
		},
		Fact{
			Type:     event.TypeEntityEntered,
			Location: dest.ID,
			Payload:  fact,
		},
	), nil
}

// shiftLayer moves the viewer's travel layer while staying put. The
// destination layer must be one the location exists on; shifting resets
// TOUCH to the new layer and, when the perception bonus has lapsed by the
// time of this commit, clears it explicitly so replay never consults a
// clock.
func shiftLayer(a *Attempt, snap *world.Snapshot, actor *world.Entity, from storage.Identifier, name string) (*Outcome, error) {
	target, err := layer.Parse([]string{name})
	if err != nil {
		return Refuse(ReasonBadPayload), nil
	}
	if target == actor.Perception.Loc {
		return Refuse(ReasonLayerBlocked), nil
	}
	place, err := snap.Entity(from)
	if err != nil {
		return Refuse(ReasonNowhere), nil
	}
	if !place.Layers.Has(target) {
		return Refuse(ReasonLayerBlocked), nil
	}

	effects := []world.Effect{world.ShiftLoc(actor.ID, target)}
	if !actor.Perception.BonusExpiry.IsZero() && !actor.Perception.BonusActive(a.Now) {
		effects = append(effects, world.ClearBonus(actor.ID))
	}
	fact := MoveFact{From: from, To: from, Layer: name}
	return Accept(
		Fact{
			Type:     event.TypeEntityLeft,
			Location: from,
			Payload:  fact,
			Effects:  effects,
		},
		Fact{
			Type:     event.TypeEntityEntered,
			Location: from,
			Payload:  fact,
		},
	), nil
}

// exitAllow reads the exit's gating mask. An exit without an allow
// attribute gates on the layers it exists in.
func exitAllow(exit *world.Entity) (layer.Mask, error) {
	var names []string
	ok, err := exit.Attrs.Get(world.AttrExitAllow, &names)
	if err != nil {
		return 0, err
	}
	if !ok {
		return exit.Layers, nil
	}
	return layer.Parse(names)
}
