package world

import (
	"fmt"
	"sync"
	"time"

	"github.com/noesisproject/noesis/internal/storage"
)

type relationSet map[RelationKind]map[storage.Identifier]map[storage.Identifier]struct{}

func (r relationSet) add(kind RelationKind, from, to storage.Identifier) {
	if r[kind] == nil {
		r[kind] = map[storage.Identifier]map[storage.Identifier]struct{}{}
	}
	if r[kind][from] == nil {
		r[kind][from] = map[storage.Identifier]struct{}{}
	}
	r[kind][from][to] = struct{}{}
}

func (r relationSet) remove(kind RelationKind, from, to storage.Identifier) {
	if r[kind] == nil || r[kind][from] == nil {
		return
	}
	delete(r[kind][from], to)
	if len(r[kind][from]) == 0 {
		delete(r[kind], from)
	}
}

// dropEntity cascades removal of every relation touching id.
func (r relationSet) dropEntity(id storage.Identifier) {
	for kind, byFrom := range r {
		delete(byFrom, id)
		for from, tos := range byFrom {
			delete(tos, id)
			if len(tos) == 0 {
				delete(byFrom, from)
			}
		}
		if len(byFrom) == 0 {
			delete(r, kind)
		}
	}
}

func (r relationSet) clone() relationSet {
	out := make(relationSet, len(r))
	for kind, byFrom := range r {
		out[kind] = make(map[storage.Identifier]map[storage.Identifier]struct{}, len(byFrom))
		for from, tos := range byFrom {
			set := make(map[storage.Identifier]struct{}, len(tos))
			for to := range tos {
				set[to] = struct{}{}
			}
			out[kind][from] = set
		}
	}
	return out
}

// Store is the authoritative world state. All mutation goes through Apply,
// called by the engine inside its single serialized commit step; everything
// else reads snapshots.
type Store struct {
	mu        sync.RWMutex
	seq       uint64
	entities  map[storage.Identifier]*Entity
	relations relationSet
}

func NewStore() *Store {
	return &Store{
		entities:  map[storage.Identifier]*Entity{},
		relations: relationSet{},
	}
}

// Seq returns the sequence number of the last applied event.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Has reports whether an entity exists.
func (s *Store) Has(id storage.Identifier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entities[id]
	return ok
}

// IsViewer reports whether id names a registered viewer.
func (s *Store) IsViewer(id storage.Identifier) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return ok && e.Viewer()
}

// Apply commits the effects of the event at seq atomically: either every
// effect lands and the store advances to seq, or nothing changes and the
// error describes the violated constraint. Effects are staged on a copy so
// a mid-batch failure can never tear the authoritative state.
func (s *Store) Apply(seq uint64, effects []Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.seq {
		return invariant("", "apply out of order: seq %d after %d", seq, s.seq)
	}

	entities := make(map[storage.Identifier]*Entity, len(s.entities))
	for id, e := range s.entities {
		entities[id] = e.Clone()
	}
	relations := s.relations.clone()

	for i, eff := range effects {
		if err := applyEffect(entities, relations, eff); err != nil {
			return fmt.Errorf("effect %d (%s): %w", i, eff.Kind, err)
		}
	}

	// Viewer invariants must hold after the whole batch, not just after
	// the effects that touched perception.
	for id, e := range entities {
		if e.Perception == nil {
			continue
		}
		if err := e.Perception.check(id); err != nil {
			return err
		}
	}

	// Relations may only reference live entities.
	for kind, byFrom := range relations {
		for from, tos := range byFrom {
			if _, ok := entities[from]; !ok {
				return invariant(from, "dangling %s relation source", kind)
			}
			for to := range tos {
				if _, ok := entities[to]; !ok {
					return invariant(to, "dangling %s relation target", kind)
				}
			}
		}
	}

	s.entities = entities
	s.relations = relations
	s.seq = seq
	return nil
}

func applyEffect(entities map[storage.Identifier]*Entity, relations relationSet, eff Effect) error {
	get := func(id storage.Identifier) (*Entity, error) {
		e, ok := entities[id]
		if !ok {
			return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
		}
		return e, nil
	}

	switch eff.Kind {
	case EffectCreate:
		if _, ok := entities[eff.Entity]; ok {
			return fmt.Errorf("%q: %w", eff.Entity, ErrExists)
		}
		if eff.Spec == nil {
			return invariant(eff.Entity, "create without a spec")
		}
		e, err := eff.Spec.materialize(eff.Entity)
		if err != nil {
			return err
		}
		entities[eff.Entity] = e
		if eff.Spec.Location != "" {
			if _, err := get(eff.Spec.Location); err != nil {
				return err
			}
			relations.add(RelLocation, eff.Entity, eff.Spec.Location)
		}

	case EffectDestroy:
		if _, err := get(eff.Entity); err != nil {
			return err
		}
		delete(entities, eff.Entity)
		relations.dropEntity(eff.Entity)

	case EffectSetAttr:
		e, err := get(eff.Entity)
		if err != nil {
			return err
		}
		if ReservedAttr(eff.Key) {
			return invariant(eff.Entity, "attribute %q is reserved for the layer system", eff.Key)
		}
		e.Attrs.SetRaw(eff.Key, eff.Value)

	case EffectDropAttr:
		e, err := get(eff.Entity)
		if err != nil {
			return err
		}
		if ReservedAttr(eff.Key) {
			return invariant(eff.Entity, "attribute %q is reserved for the layer system", eff.Key)
		}
		e.Attrs.Delete(eff.Key)

	case EffectMove:
		if _, err := get(eff.Entity); err != nil {
			return err
		}
		if _, err := get(eff.Target); err != nil {
			return err
		}
		for to := range relations[RelLocation][eff.Entity] {
			relations.remove(RelLocation, eff.Entity, to)
		}
		relations.add(RelLocation, eff.Entity, eff.Target)

	case EffectShiftLoc:
		e, err := get(eff.Entity)
		if err != nil {
			return err
		}
		if e.Perception == nil {
			return invariant(eff.Entity, "loc shift on a non-viewer")
		}
		if !eff.Loc.Single() {
			return invariant(eff.Entity, "LOC must hold exactly one layer, has %d", eff.Loc.Count())
		}
		p := e.Perception
		p.Loc = eff.Loc
		// SEE re-derives to cover the new travel layer; TOUCH resets to
		// it. An in-force bonus is the only exception, and the rule
		// module that proposed the shift emits a clear_bonus effect when
		// the bonus has lapsed, keeping replay deterministic.
		p.SeeBase |= eff.Loc
		p.TouchBase = eff.Loc

	case EffectGrantBonus:
		e, err := get(eff.Entity)
		if err != nil {
			return err
		}
		if e.Perception == nil {
			return invariant(eff.Entity, "bonus grant on a non-viewer")
		}
		if eff.Expiry == nil {
			return invariant(eff.Entity, "bonus grant without an expiry")
		}
		p := e.Perception
		p.SeeBonus |= eff.See
		p.TouchBonus |= eff.Touch
		p.BonusExpiry = *eff.Expiry

	case EffectClearBonus:
		e, err := get(eff.Entity)
		if err != nil {
			return err
		}
		if e.Perception == nil {
			return invariant(eff.Entity, "bonus clear on a non-viewer")
		}
		p := e.Perception
		p.SeeBonus = 0
		p.TouchBonus = 0
		p.BonusExpiry = time.Time{}

	case EffectRelate:
		if _, err := get(eff.Entity); err != nil {
			return err
		}
		if _, err := get(eff.Target); err != nil {
			return err
		}
		relations.add(eff.Relation, eff.Entity, eff.Target)

	case EffectUnrelate:
		relations.remove(eff.Relation, eff.Entity, eff.Target)

	default:
		return invariant(eff.Entity, "unknown effect kind %q", eff.Kind)
	}

	return nil
}
