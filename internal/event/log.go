package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/noesisproject/noesis/internal/storage"
)

var (
	// ErrActorBusy rejects a new attempt while the actor still has an
	// unresolved one. In normal operation the engine resolves each
	// attempt inside the same step that appended it, so this only fires
	// when crash recovery left an open attempt unvoided.
	ErrActorBusy = errors.New("actor has an unresolved attempt")
	// ErrNotOpen rejects a second resolution of the same attempt.
	ErrNotOpen = errors.New("attempt is not open")
	// ErrJournal marks a durable-write failure after a resolution already
	// committed. The in-memory log is ahead of disk; callers treat it as
	// fatal.
	ErrJournal = errors.New("journal write failed")
)

// Journal persists events durably, one at a time, in order.
type Journal interface {
	Write(*Event) error
}

// Log is the single authoritative append point. Sequence numbers are
// strictly increasing with no gaps once committed; events are never
// mutated or deleted after append.
type Log struct {
	mu      sync.RWMutex
	journal Journal // nil in tests: memory only

	events     []*Event
	openSeqs   map[uint64]*Event
	openActors map[storage.Identifier]uint64
}

func NewLog(journal Journal) *Log {
	return &Log{
		journal:    journal,
		openSeqs:   map[uint64]*Event{},
		openActors: map[storage.Identifier]uint64{},
	}
}

// Seq returns the last assigned sequence number.
func (l *Log) Seq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.events))
}

// Append records an attempt and returns it with its sequence number
// assigned. The attempt stays open until exactly one Resolve call settles
// it.
func (l *Log) Append(typ Type, actor storage.Identifier, location storage.Identifier, payload json.RawMessage) (*Event, error) {
	if !IsAttemptType(typ) {
		return nil, fmt.Errorf("%q is not an attempt type", typ)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if open, ok := l.openActors[actor]; ok {
		return nil, fmt.Errorf("attempt %d: %w", open, ErrActorBusy)
	}

	ev := &Event{
		Seq:       uint64(len(l.events)) + 1,
		Timestamp: time.Now().UTC(),
		Category:  CategoryAttempt,
		Type:      typ,
		Actor:     actor,
		Location:  location,
		Payload:   payload,
	}

	if l.journal != nil {
		if err := l.journal.Write(ev); err != nil {
			return nil, fmt.Errorf("journaling attempt: %w", err)
		}
	}

	l.events = append(l.events, ev)
	l.openSeqs[ev.Seq] = ev
	l.openActors[actor] = ev.Seq
	return ev, nil
}

// Resolve settles an open attempt with a batch of world events or a single
// refusal event. The commit callback runs inside the critical section with
// the sequence number the batch ends at; it is where the store mutation
// happens, making append+mutate one serialized step (the Event Pairing
// Invariant). If commit fails nothing is appended and the attempt stays
// open for the caller to refuse instead.
func (l *Log) Resolve(attemptSeq uint64, batch []*Event, commit func(lastSeq uint64) error) error {
	if len(batch) == 0 {
		return fmt.Errorf("resolution batch is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	attempt, ok := l.openSeqs[attemptSeq]
	if !ok {
		return fmt.Errorf("attempt %d: %w", attemptSeq, ErrNotOpen)
	}

	next := uint64(len(l.events)) + 1
	now := time.Now().UTC()
	for i, ev := range batch {
		if ev.Category != CategoryWorld && ev.Category != CategoryRefusal {
			return fmt.Errorf("resolution event %d has category %s", i, ev.Category)
		}
		ev.Seq = next + uint64(i)
		ev.Timestamp = now
		ev.Attempt = attemptSeq
	}
	lastSeq := batch[len(batch)-1].Seq

	if commit != nil {
		if err := commit(lastSeq); err != nil {
			return err
		}
	}

	// Past this point the resolution is fact. A journal failure is
	// reported but the in-memory log still appends: the engine treats it
	// as fatal and halts rather than continue without durability.
	var journalErr error
	if l.journal != nil {
		for _, ev := range batch {
			if err := l.journal.Write(ev); err != nil {
				journalErr = fmt.Errorf("%w: %v", ErrJournal, err)
				break
			}
		}
	}

	l.events = append(l.events, batch...)
	delete(l.openSeqs, attemptSeq)
	delete(l.openActors, attempt.Actor)
	return journalErr
}

// Restore ingests previously journaled events during startup replay. It
// rebuilds the open-attempt bookkeeping without journaling anything.
func (l *Log) Restore(events []*Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ev := range events {
		if ev.Seq != uint64(len(l.events))+1 {
			return fmt.Errorf("restore gap: event seq %d after %d", ev.Seq, len(l.events))
		}
		l.events = append(l.events, ev)

		switch ev.Category {
		case CategoryAttempt:
			l.openSeqs[ev.Seq] = ev
			l.openActors[ev.Actor] = ev.Seq
		case CategoryWorld, CategoryRefusal:
			if open, ok := l.openSeqs[ev.Attempt]; ok {
				delete(l.openSeqs, ev.Attempt)
				delete(l.openActors, open.Actor)
			}
		}
	}
	return nil
}

// Events returns the committed events with seq in [from, to]; to == 0
// means through the end of the log.
func (l *Log) Events(from, to uint64) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if to == 0 || to > uint64(len(l.events)) {
		to = uint64(len(l.events))
	}
	if from < 1 {
		from = 1
	}
	if from > to {
		return nil
	}

	out := make([]*Event, to-from+1)
	copy(out, l.events[from-1:to])
	return out
}

// Open returns the unresolved attempts in sequence order. A non-empty
// result after startup replay means a crash interrupted a resolution; the
// engine voids these before accepting new work.
func (l *Log) Open() []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Event, 0, len(l.openSeqs))
	for _, ev := range l.openSeqs {
		out = append(out, ev)
	}
	slices.SortFunc(out, func(a, b *Event) int {
		return int(a.Seq) - int(b.Seq)
	})
	return out
}
