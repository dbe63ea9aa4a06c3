// Package engine owns world progression. One goroutine serializes the
// whole authoritative path: append the attempt, evaluate it against a
// snapshot, commit the resolution to the log and the store as a single
// step, project perception against the post-commit snapshot, hand the
// packets to dispatch. Nothing else ever mutates the world.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pixil98/go-log"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/perception"
	"github.com/noesisproject/noesis/internal/rules"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// SystemActor owns engine-originated attempts: bonus expiry, bootstrap
// seeding, crash-recovery voiding.
const SystemActor storage.Identifier = "system"

// Offerer is the dispatch half the engine needs.
type Offerer interface {
	Offer(ctx context.Context, infos []*perception.Information)
}

type request struct {
	actor   storage.Identifier
	typ     event.Type
	payload json.RawMessage
	reply   chan result
}

type result struct {
	seq uint64
	err error
}

type Engine struct {
	log      *event.Log
	store    *world.Store
	rules    *rules.Engine
	dispatch Offerer

	requests chan request
	runID    string
	clock    func() time.Time
}

func New(lg *event.Log, store *world.Store, dispatch Offerer, opts ...EngineOpt) *Engine {
	e := &Engine{
		log:      lg,
		store:    store,
		rules:    rules.NewEngine(),
		dispatch: dispatch,
		requests: make(chan request),
		runID:    newRunID(time.Now().UTC()),
		clock:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// newRunID builds a sortable per-boot identifier.
func newRunID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.Format("20060102T150405Z"), uuid.NewString()[:6])
}

func (e *Engine) RunID() string {
	return e.runID
}

// Submit hands an attempt to the serialization loop and waits for its
// appended sequence number. The attempt may still resolve as a refusal;
// an error here means it never entered the log at all.
func (e *Engine) Submit(ctx context.Context, actor storage.Identifier, typ event.Type, payload json.RawMessage) (uint64, error) {
	if !event.IsAttemptType(typ) {
		return 0, fmt.Errorf("%s is not an attempt type", typ)
	}

	req := request{actor: actor, typ: typ, payload: payload, reply: make(chan result, 1)}
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.seq, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Start runs the serialization loop until the context ends. A journal
// failure after commit is fatal: the engine refuses to keep running
// without durability.
func (e *Engine) Start(ctx context.Context) error {
	log.GetLogger(ctx).Infof("engine started, run %s, log at seq %d", e.runID, e.log.Seq())

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-e.requests:
			seq, err := e.process(ctx, req.actor, req.typ, req.payload)
			req.reply <- result{seq: seq, err: err}
			if err != nil && errors.Is(err, event.ErrJournal) {
				return err
			}
		}
	}
}

// process runs one attempt end to end. It only returns an error when the
// attempt could not be appended or durability was lost; every world-level
// "no" is resolved as a refusal event instead.
func (e *Engine) process(ctx context.Context, actor storage.Identifier, typ event.Type, payload json.RawMessage) (uint64, error) {
	snap := e.store.Snapshot()
	loc, _ := snap.LocationOf(actor)

	attempt, err := e.log.Append(typ, actor, loc, payload)
	if err != nil {
		return 0, err
	}

	out, err := e.rules.Evaluate(&rules.Attempt{
		Seq:     attempt.Seq,
		Type:    typ,
		Actor:   actor,
		Payload: payload,
		Now:     e.clock(),
	}, snap)
	if err != nil {
		log.GetLogger(ctx).Errorf("evaluating attempt %d: %v", attempt.Seq, err)
		return attempt.Seq, e.refuse(ctx, attempt, loc, rules.ReasonInvariant)
	}
	if !out.Accepted {
		return attempt.Seq, e.refuse(ctx, attempt, loc, out.Reason)
	}

	batch, effects, err := buildBatch(attempt, out)
	if err != nil {
		log.GetLogger(ctx).Errorf("encoding resolution of attempt %d: %v", attempt.Seq, err)
		return attempt.Seq, e.refuse(ctx, attempt, loc, rules.ReasonInvariant)
	}

	err = e.log.Resolve(attempt.Seq, batch, func(lastSeq uint64) error {
		if len(effects) == 0 {
			return nil
		}
		return e.store.Apply(lastSeq, effects)
	})
	if err != nil {
		if errors.Is(err, event.ErrJournal) {
			return attempt.Seq, err
		}
		// The commit was rejected before anything was appended: the
		// proposed mutation would corrupt the world. The write is thrown
		// away entirely and the attempt resolves as a refusal.
		log.GetLogger(ctx).Errorf("attempt %d rejected at commit: %v", attempt.Seq, err)
		return attempt.Seq, e.refuse(ctx, attempt, loc, rules.ReasonInvariant)
	}

	e.project(ctx, batch)
	return attempt.Seq, nil
}

// refuse settles an attempt with its refusal event. Refusals mutate
// nothing, so no commit callback runs.
func (e *Engine) refuse(ctx context.Context, attempt *event.Event, loc storage.Identifier, reason string) error {
	refusal := &event.Event{
		Category: event.CategoryRefusal,
		Type:     event.RefusalFor(attempt.Type),
		Actor:    attempt.Actor,
		Location: loc,
		Reason:   reason,
	}
	if err := e.log.Resolve(attempt.Seq, []*event.Event{refusal}, nil); err != nil {
		return err
	}
	e.project(ctx, []*event.Event{refusal})
	return nil
}

// buildBatch turns an accepted outcome into resolution events plus the
// flattened effect list the commit applies.
func buildBatch(attempt *event.Event, out *rules.Outcome) ([]*event.Event, []world.Effect, error) {
	batch := make([]*event.Event, 0, len(out.Facts))
	var effects []world.Effect
	for _, fact := range out.Facts {
		raw, err := json.Marshal(fact.Payload)
		if err != nil {
			return nil, nil, err
		}
		batch = append(batch, &event.Event{
			Category: event.CategoryWorld,
			Type:     fact.Type,
			Actor:    attempt.Actor,
			Location: fact.Location,
			Payload:  raw,
			Effects:  fact.Effects,
		})
		effects = append(effects, fact.Effects...)
	}
	return batch, effects, nil
}

// project filters committed events through every viewer's perception and
// hands the packets to dispatch. Projection runs against the post-commit
// snapshot.
func (e *Engine) project(ctx context.Context, batch []*event.Event) {
	if e.dispatch == nil {
		return
	}
	snap := e.store.Snapshot()
	for _, ev := range batch {
		if infos := perception.ProjectAll(ev, snap); len(infos) > 0 {
			e.dispatch.Offer(ctx, infos)
		}
	}
}

// Tick submits bonus-clear attempts for every viewer whose time-scoped
// bonus has lapsed. It runs on the driver's pulse, outside the
// serialization loop, and goes through Submit like any other actor.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.clock()
	snap := e.store.Snapshot()
	for _, v := range snap.Viewers() {
		p := v.Perception
		if p.BonusExpiry.IsZero() || p.BonusActive(now) {
			continue
		}
		payload, err := json.Marshal(rules.BonusClearPayload{Entity: v.ID})
		if err != nil {
			return err
		}
		if _, err := e.Submit(ctx, SystemActor, event.TypeBonusClearAttempt, payload); err != nil {
			return err
		}
	}
	return nil
}
