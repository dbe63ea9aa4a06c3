package rules

import (
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/world"
)

// attributeModule validates one attribute write or drop. Keys owned by
// the layer system are refused: perception and layer membership change
// only through their dedicated effects.
type attributeModule struct{}

func (attributeModule) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	var p AttributePayload
	if !decode(a.Payload, &p) || p.Key == "" || (!p.Drop && len(p.Value) == 0) {
		return Refuse(ReasonBadPayload), nil
	}
	if _, refusal := actorViewer(a, snap); refusal != nil {
		return refusal, nil
	}
	if world.ReservedAttr(p.Key) {
		return Refuse(ReasonReservedAttr), nil
	}
	target, err := snap.Entity(p.Entity)
	if err != nil {
		return Refuse(ReasonUnknownEntity), nil
	}

	var eff world.Effect
	if p.Drop {
		eff = world.DropAttr(target.ID, p.Key)
	} else {
		eff = world.SetAttr(target.ID, p.Key, p.Value)
	}
	// Attribute changes on unlocated entities (locations themselves)
	// anchor at the entity's own id for perception purposes.
	loc, ok := snap.LocationOf(target.ID)
	if !ok {
		loc = target.ID
	}
	return Accept(Fact{
		Type:     event.TypeAttributeChanged,
		Location: loc,
		Payload:  AttributeFact{Entity: target.ID, Key: p.Key, Value: p.Value, Drop: p.Drop},
		Effects:  []world.Effect{eff},
	}), nil
}
