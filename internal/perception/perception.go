// Package perception projects committed events into per-viewer Information
// packets. Projection is a pure function of (event, snapshot, viewer): it
// mutates nothing, rolls no dice, and yields zero or one packet per pair.
// A viewer whose SEE mask misses the acting layers gets nothing at all,
// not a degraded message.
package perception

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/layer"
	"github.com/noesisproject/noesis/internal/rules"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// Information is one viewer's filtered view of one event. PacketID is
// idempotent across redelivery: event seq plus viewer id.
type Information struct {
	PacketID  string             `json:"packet_id"`
	EventSeq  uint64             `json:"event_seq"`
	EventType event.Type         `json:"event_type"`
	Category  event.Category     `json:"category"`
	ViewerID  storage.Identifier `json:"viewer_id"`
	Timestamp time.Time          `json:"ts"`

	// Actor fields are empty when the acting entity is imperceptible to
	// this viewer but the event itself still reaches them.
	Actor     storage.Identifier `json:"actor,omitempty"`
	ActorName string             `json:"actor_name,omitempty"`

	Location     storage.Identifier `json:"location,omitempty"`
	LocationName string             `json:"location_name,omitempty"`

	// Attribution names the layer the perception is credited to when the
	// subject spans several visible layers.
	Attribution string `json:"attribution,omitempty"`

	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// GapBefore marks that earlier packets for this viewer were dropped.
	// Set by the dispatch layer, never by projection.
	GapBefore bool `json:"gap_before,omitempty"`
}

// PacketID builds the idempotent delivery identifier.
func PacketID(seq uint64, viewer storage.Identifier) string {
	return fmt.Sprintf("%d-%s", seq, viewer)
}

// Project decides what, if anything, one viewer learns from one committed
// event against the post-commit snapshot. Nil means silence.
func Project(ev *event.Event, snap *world.Snapshot, viewer *world.Entity) *Information {
	if !viewer.Viewer() {
		return nil
	}
	switch ev.Category {
	case event.CategoryAttempt:
		// Intentions are log-internal; nobody perceives them directly.
		return nil
	case event.CategoryRefusal:
		if ev.Actor == "" || viewer.ID != ev.Actor {
			return nil
		}
		return packet(ev, snap, viewer, ev.Actor, "")
	case event.CategoryWorld:
		return projectWorld(ev, snap, viewer)
	default:
		return nil
	}
}

// ProjectAll fans one event out over every viewer in the snapshot.
func ProjectAll(ev *event.Event, snap *world.Snapshot) []*Information {
	var out []*Information
	for _, v := range snap.Viewers() {
		if info := Project(ev, snap, v); info != nil {
			out = append(out, info)
		}
	}
	return out
}

func projectWorld(ev *event.Event, snap *world.Snapshot, viewer *world.Entity) *Information {
	// A bonus lapse concerns only the affected viewer.
	if ev.Type == event.TypeBonusCleared {
		var fact rules.BonusClearFact
		if json.Unmarshal(ev.Payload, &fact) != nil || viewer.ID != fact.Entity {
			return nil
		}
		return packet(ev, snap, viewer, ev.Actor, "")
	}

	// The actor always receives its own outcome, wherever it ended up.
	if viewer.ID == ev.Actor {
		return packet(ev, snap, viewer, ev.Actor, "")
	}

	loc, ok := snap.LocationOf(viewer.ID)
	if !ok || loc != ev.Location {
		return nil
	}

	switch ev.Type {
	case event.TypeSay, event.TypePose, event.TypeInteract,
		event.TypeEntityLeft, event.TypeEntityEntered:
		// Emanating events: perceptibility follows the acting entity's
		// layers. An imperceptible actor means no packet at all.
		actor, err := snap.Entity(ev.Actor)
		if err != nil || !layer.Visible(viewer.Perception.See(), actor.Layers) {
			return nil
		}
		attribution, _ := (actor.Layers & viewer.Perception.See()).Attribution()
		return packet(ev, snap, viewer, ev.Actor, attribution)

	case event.TypeObjectCreated, event.TypeAttributeChanged, event.TypeObjectDestroyed:
		// Located events: perceptibility follows the place; the actor is
		// redacted independently when imperceptible.
		place, err := snap.Entity(ev.Location)
		if err != nil || !layer.Visible(viewer.Perception.See(), place.Layers) {
			return nil
		}
		actorID := ev.Actor
		if actor, err := snap.Entity(ev.Actor); err != nil || !layer.Visible(viewer.Perception.See(), actor.Layers) {
			actorID = ""
		}
		attribution, _ := (place.Layers & viewer.Perception.See()).Attribution()
		return packet(ev, snap, viewer, actorID, attribution)

	default:
		return nil
	}
}

func packet(ev *event.Event, snap *world.Snapshot, viewer *world.Entity, actor storage.Identifier, attribution string) *Information {
	info := &Information{
		PacketID:    PacketID(ev.Seq, viewer.ID),
		EventSeq:    ev.Seq,
		EventType:   ev.Type,
		Category:    ev.Category,
		ViewerID:    viewer.ID,
		Timestamp:   ev.Timestamp,
		Actor:       actor,
		Location:    ev.Location,
		Attribution: attribution,
		Reason:      ev.Reason,
		Payload:     ev.Payload,
	}
	if actor != "" {
		if e, err := snap.Entity(actor); err == nil {
			info.ActorName = e.Name
		}
	}
	if ev.Location != "" {
		if e, err := snap.Entity(ev.Location); err == nil {
			info.LocationName = e.Name
		}
	}
	return info
}
