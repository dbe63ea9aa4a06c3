package rules

import (
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/world"
)

// interactModule validates touching a co-located entity. Reach requires
// the target to share the actor's location (or be the location itself)
// and its layers to intersect the actor's TOUCH mask.
type interactModule struct{}

func (interactModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p InteractPayload
	if !decode(a.Payload, &p) || p.Verb == "" {
		return Refuse(ReasonBadPayload), nil
	}
	actor, refusal := actorViewer(a, snap)
	if refusal != nil {
		return refusal, nil
	}
	loc, ok := snap.LocationOf(actor.ID)
	if !ok {
		return Refuse(ReasonNowhere), nil
	}
	target, err := snap.Entity(p.Target)
	if err != nil {
		return Refuse(ReasonUnknownEntity), nil
	}
	if target.ID != loc {
		tloc, ok := snap.LocationOf(target.ID)
		if !ok || tloc != loc {
			return Refuse(ReasonOutOfReach), nil
		}
	}
	if !layer.Touchable(actor.Perception.Touch(), target.Layers) {
		return Refuse(ReasonOutOfReach), nil
	}

	effects, err := grantEffects(a, actor, target)
	if err != nil {
		return nil, err
	}
	return Accept(Fact{
		Type:     event.TypeInteract,
		Location: loc,
		Payload:  InteractFact{Target: target.ID, TargetName: target.Name, Verb: p.Verb},
		Effects:  effects,
	}), nil
}

// GrantSpec is the shape of an entity's "grant" attribute: touching such
// an entity confers a time-scoped perception bonus on the toucher.
type GrantSpec struct {
	See      []string `json:"see,omitempty"`
	Touch    []string `json:"touch,omitempty"`
	Duration string   `json:"duration"`
}

// AttrGrant marks an entity that confers a bonus when interacted with.
const AttrGrant = "grant"

// grantEffects turns a target's grant attribute into a bonus effect. The
// expiry deadline is computed here, against the commit clock, and stored
// in the effect so applying it later never consults time.
func grantEffects(a *Attempt, actor, target *world.Entity) ([]world.Effect, error) {
	var g GrantSpec
	ok, err := target.Attrs.Get(AttrGrant, &g)
	if err != nil || !ok {
		return nil, err
	}
	see, err := layer.Parse(g.See)
	if err != nil {
		return nil, err
	}
	touch, err := layer.Parse(g.Touch)
	if err != nil {
		return nil, err
	}
	expiry, err := world.ParseBonusExpiry(a.Now, g.Duration)
	if err != nil {
		return nil, err
	}
	return []world.Effect{world.GrantBonus(actor.ID, see, touch, expiry)}, nil
}
