package engine

import (
	"fmt"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/perception"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// Replayer reconstructs past world states and perceptions from a
// journaled event stream. Replay applies the recorded effects directly,
// without re-validation: the log already settled what happened.
type Replayer struct {
	events []*event.Event
}

func NewReplayer(events []*event.Event) *Replayer {
	return &Replayer{events: events}
}

// Rebuild returns the world snapshot as of sequence upTo (0 means the
// whole stream).
func (r *Replayer) Rebuild(upTo uint64) (*world.Snapshot, error) {
	store := world.NewStore()
	if err := r.apply(store, upTo); err != nil {
		return nil, err
	}
	return store.Snapshot(), nil
}

// Reperceive re-runs perception for one viewer over [from, to] (to == 0
// means through the end). Every event projects against the world state
// just after its own commit, exactly as live dispatch saw it.
func (r *Replayer) Reperceive(viewer storage.Identifier, from, to uint64) ([]*perception.Information, error) {
	store := world.NewStore()
	var out []*perception.Information

	for _, ev := range r.events {
		if to != 0 && ev.Seq > to {
			break
		}
		if ev.Category == event.CategoryWorld && len(ev.Effects) > 0 {
			if err := store.Apply(ev.Seq, ev.Effects); err != nil {
				return nil, fmt.Errorf("replaying event %d: %w", ev.Seq, err)
			}
		}
		if ev.Seq < from {
			continue
		}

		snap := store.Snapshot()
		v, err := snap.Entity(viewer)
		if err != nil {
			continue
		}
		if info := perception.Project(ev, snap, v); info != nil {
			out = append(out, info)
		}
	}
	return out, nil
}

func (r *Replayer) apply(store *world.Store, upTo uint64) error {
	for _, ev := range r.events {
		if upTo != 0 && ev.Seq > upTo {
			break
		}
		if ev.Category != event.CategoryWorld || len(ev.Effects) == 0 {
			continue
		}
		if err := store.Apply(ev.Seq, ev.Effects); err != nil {
			return fmt.Errorf("replaying event %d: %w", ev.Seq, err)
		}
	}
	return nil
}
