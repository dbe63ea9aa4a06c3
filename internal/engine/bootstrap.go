package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pixil98/go-log"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/rules"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// Bootstrap brings the engine to a consistent running state before the
// loop starts: restore the journaled log, reapply committed effects,
// void any attempt a crash left open, then seed world entities that are
// not already present. Seeding goes through committed create attempts
// like any other mutation, so the journal alone always reconstructs the
// world.
func (e *Engine) Bootstrap(ctx context.Context, journaled []*event.Event, seeds map[string]*world.EntitySpec) error {
	if err := e.log.Restore(journaled); err != nil {
		return fmt.Errorf("restoring log: %w", err)
	}

	for _, ev := range journaled {
		if ev.Category != event.CategoryWorld || len(ev.Effects) == 0 {
			continue
		}
		if err := e.store.Apply(ev.Seq, ev.Effects); err != nil {
			return fmt.Errorf("replaying event %d: %w", ev.Seq, err)
		}
	}

	for _, open := range e.log.Open() {
		log.GetLogger(ctx).Warnf("voiding attempt %d left open by previous run", open.Seq)
		void := &event.Event{
			Category: event.CategoryRefusal,
			Type:     event.TypeAttemptVoided,
			Actor:    open.Actor,
			Location: open.Location,
			Reason:   rules.ReasonVoided,
		}
		if err := e.log.Resolve(open.Seq, []*event.Event{void}, nil); err != nil {
			return fmt.Errorf("voiding attempt %d: %w", open.Seq, err)
		}
	}

	return e.seed(ctx, seeds)
}

// seed creates missing entities in dependency passes: an entity waits
// until its location exists. Anything still unplaced after the passes is
// submitted anyway and resolves as a refusal on its own record.
func (e *Engine) seed(ctx context.Context, seeds map[string]*world.EntitySpec) error {
	remaining := make(map[string]*world.EntitySpec, len(seeds))
	for id, spec := range seeds {
		if !e.store.Has(storage.Identifier(id)) {
			remaining[id] = spec
		}
	}

	for len(remaining) > 0 {
		ready := make([]string, 0, len(remaining))
		for id, spec := range remaining {
			if spec.Location == "" || e.store.Has(spec.Location) {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Unsatisfiable locations; submit the rest so the failure is
			// on the record, then stop.
			for id := range remaining {
				ready = append(ready, id)
			}
		}
		sort.Strings(ready)

		for _, id := range ready {
			if err := e.seedOne(ctx, storage.Identifier(id), remaining[id]); err != nil {
				return err
			}
			delete(remaining, id)
		}
	}
	return nil
}

func (e *Engine) seedOne(ctx context.Context, id storage.Identifier, spec *world.EntitySpec) error {
	payload, err := json.Marshal(rules.CreatePayload{ID: id, Spec: *spec})
	if err != nil {
		return err
	}
	if _, err := e.process(ctx, SystemActor, event.TypeCreateAttempt, payload); err != nil {
		return fmt.Errorf("seeding %s: %w", id, err)
	}
	if !e.store.Has(id) {
		log.GetLogger(ctx).Warnf("seed %s was refused, see the log", id)
	}
	return nil
}
