package rules

import (
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/world"
)

// bonusClearModule lapses a viewer's perception bonus. The engine submits
// these on expiry ticks; clearing is idempotent, so a retry after a crash
// commits a second harmless event rather than refusing. The cleared state
// must satisfy the viewer invariants on the base masks alone, which the
// store verifies at apply time.
type bonusClearModule struct{}

func (bonusClearModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p BonusClearPayload
	if !decode(a.Payload, &p) || p.Entity == "" {
		return Refuse(ReasonBadPayload), nil
	}
	target, err := snap.Entity(p.Entity)
	if err != nil {
		return Refuse(ReasonUnknownEntity), nil
	}
	if !target.Viewer() {
		return Refuse(ReasonNotViewer), nil
	}

	loc, ok := snap.LocationOf(target.ID)
	if !ok {
		loc = target.ID
	}
	return Accept(Fact{
		Type:     event.TypeBonusCleared,
		Location: loc,
		Payload:  BonusClearFact{Entity: target.ID},
		Effects:  []world.Effect{world.ClearBonus(target.ID)},
	}), nil
}
