package world

import (
	"errors"
	"fmt"

	"github.com/noesisproject/noesis/internal/storage"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
)

// InvariantViolationError marks a proposed mutation that would break a
// viewer's LOC/SEE/TOUCH invariants or dangle a relation. The write is
// rejected entirely; nothing is committed.
type InvariantViolationError struct {
	Entity storage.Identifier
	Reason string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation on %q: %s", e.Entity, e.Reason)
}

func invariant(id storage.Identifier, format string, args ...any) error {
	return &InvariantViolationError{Entity: id, Reason: fmt.Sprintf(format, args...)}
}
