package rules

import (
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/world"
)

// createModule validates bringing a new entity into the world from a
// spec. The id must be free and the spec's location, when set, must
// already exist. Spec problems are a structural refusal here, not an
// error: a bad create request is the world saying no.
type createModule struct{}

func (createModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p CreatePayload
	if !decode(a.Payload, &p) || p.ID == "" {
		return Refuse(ReasonBadPayload), nil
	}
	if err := p.Spec.Validate(); err != nil {
		return Refuse(ReasonBadPayload), nil
	}
	if _, err := snap.Entity(p.ID); err == nil {
		return Refuse(ReasonAlreadyExists), nil
	}
	if p.Spec.Location != "" {
		if _, err := snap.Entity(p.Spec.Location); err != nil {
			return Refuse(ReasonUnknownEntity), nil
		}
	}

	loc := p.Spec.Location
	if loc == "" {
		loc = p.ID
	}
	spec := p.Spec
	return Accept(Fact{
		Type:     event.TypeObjectCreated,
		Location: loc,
		Payload:  CreateFact{ID: p.ID, Spec: p.Spec},
		Effects:  []world.Effect{world.Create(p.ID, &spec)},
	}), nil
}

// destroyModule validates removing an entity. Destruction cascades over
// relations inside the store; occupants of a destroyed location become
// unlocated rather than destroyed themselves.
type destroyModule struct{}

func (destroyModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p DestroyPayload
	if !decode(a.Payload, &p) || p.Entity == "" {
		return Refuse(ReasonBadPayload), nil
	}
	target, err := snap.Entity(p.Entity)
	if err != nil {
		return Refuse(ReasonUnknownEntity), nil
	}
	if target.ID == a.Actor {
		return Refuse(ReasonBadPayload), nil
	}

	loc, ok := snap.LocationOf(target.ID)
	if !ok {
		loc = target.ID
	}
	return Accept(Fact{
		Type:     event.TypeObjectDestroyed,
		Location: loc,
		Payload:  DestroyFact{Entity: target.ID, Name: target.Name},
		Effects:  []world.Effect{world.Destroy(target.ID)},
	}), nil
}
