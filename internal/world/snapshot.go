package world

import (
	"fmt"
	"slices"

	"github.com/noesisproject/noesis/internal/storage"
)

// Snapshot is an immutable view of the world as of one sequence number.
// Rule evaluation, perception and diagnostics read snapshots; none of them
// ever sees a half-applied commit. Callers must not mutate returned
// entities.
type Snapshot struct {
	Seq uint64

	entities  map[storage.Identifier]*Entity
	relations relationSet
}

// Snapshot captures the current state. The copy is deep: later commits
// cannot bleed into a snapshot already handed out.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entities := make(map[storage.Identifier]*Entity, len(s.entities))
	for id, e := range s.entities {
		entities[id] = e.Clone()
	}

	return &Snapshot{
		Seq:       s.seq,
		entities:  entities,
		relations: s.relations.clone(),
	}
}

// Entity returns the entity with the given id.
func (s *Snapshot) Entity(id storage.Identifier) (*Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return e, nil
}

// All returns every entity in stable id order.
func (s *Snapshot) All() []*Entity {
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entity) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Viewers returns all viewer entities in stable id order.
func (s *Snapshot) Viewers() []*Entity {
	var out []*Entity
	for _, e := range s.entities {
		if e.Viewer() {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *Entity) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Related returns the targets of kind relations from the given entity, in
// stable order.
func (s *Snapshot) Related(kind RelationKind, from storage.Identifier) []storage.Identifier {
	var out []storage.Identifier
	for to := range s.relations[kind][from] {
		out = append(out, to)
	}
	slices.Sort(out)
	return out
}

// LocationOf returns the location an entity occupies, if any.
func (s *Snapshot) LocationOf(id storage.Identifier) (storage.Identifier, bool) {
	for to := range s.relations[RelLocation][id] {
		return to, true
	}
	return "", false
}

// Occupants returns every entity located in loc, in stable order.
func (s *Snapshot) Occupants(loc storage.Identifier) []*Entity {
	var out []*Entity
	for from, tos := range s.relations[RelLocation] {
		if _, ok := tos[loc]; !ok {
			continue
		}
		if e, ok := s.entities[from]; ok {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b *Entity) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// ExitFrom finds the exit entity in loc whose direction attribute matches.
func (s *Snapshot) ExitFrom(loc storage.Identifier, direction string) (*Entity, bool) {
	for _, e := range s.Occupants(loc) {
		if e.Kind != KindExit {
			continue
		}
		var dir string
		if found, err := e.Attrs.Get(AttrDirection, &dir); err != nil || !found {
			continue
		}
		if dir == direction {
			return e, true
		}
	}
	return nil, false
}
