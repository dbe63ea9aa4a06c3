package rules

import (
	"strings"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/world"
)

// sayModule and poseModule commit pure expression events. They mutate
// nothing; the only checks are that the actor can perceive, is somewhere,
// and actually said or did something.

type sayModule struct{}

func (sayModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p SayPayload
	if !decode(a.Payload, &p) {
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
	if strings.TrimSpace(p.Message) == "" {
		return Refuse(ReasonEmptyMessage), nil
	}
	return Accept(Fact{
		Type:     event.TypeSay,
		Location: loc,
		Payload:  SayFact{Message: p.Message},
	}), nil
}

type poseModule struct{}

func (poseModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p PosePayload
	if !decode(a.Payload, &p) {
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
	if strings.TrimSpace(p.Action) == "" {
		return Refuse(ReasonEmptyAction), nil
	}
	return Accept(Fact{
		Type:     event.TypePose,
		Location: loc,
		Payload:  PoseFact{Action: p.Action},
	}), nil
}
