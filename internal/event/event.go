// Package event defines the immutable, strictly ordered record of
// attempts, facts and refusals, plus the append-only log and its durable
// journal. The sequence number is the sole source of temporal order in the
// whole system.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// Category separates intentions from facts and refusals.
type Category uint8

const (
	CategoryAttempt Category = iota + 1
	CategoryWorld
	CategoryRefusal
)

func (c Category) String() string {
	switch c {
	case CategoryAttempt:
		return "attempt"
	case CategoryWorld:
		return "world"
	case CategoryRefusal:
		return "refusal"
	default:
		return "unknown"
	}
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "attempt":
		*c = CategoryAttempt
	case "world":
		*c = CategoryWorld
	case "refusal":
		*c = CategoryRefusal
	default:
		return fmt.Errorf("unknown event category %q", s)
	}
	return nil
}

// Type tags the curated event taxonomy.
type Type string

// Attempt types.
const (
	TypeMoveAttempt       Type = "MOVE_ATTEMPT"
	TypeSayAttempt        Type = "SAY_ATTEMPT"
	TypePoseAttempt       Type = "POSE_ATTEMPT"
	TypeInteractAttempt   Type = "INTERACT_ATTEMPT"
	TypeAttributeAttempt  Type = "ATTRIBUTE_ATTEMPT"
	TypeCreateAttempt     Type = "CREATE_ATTEMPT"
	TypeDestroyAttempt    Type = "DESTROY_ATTEMPT"
	TypeBonusClearAttempt Type = "BONUS_CLEAR_ATTEMPT"
)

// World event types.
const (
	TypeEntityLeft       Type = "ENTITY_LEFT"
	TypeEntityEntered    Type = "ENTITY_ENTERED"
	TypeSay              Type = "SAY"
	TypePose             Type = "POSE"
	TypeInteract         Type = "INTERACT"
	TypeAttributeChanged Type = "ATTRIBUTE_CHANGED"
	TypeObjectCreated    Type = "OBJECT_CREATED"
	TypeObjectDestroyed  Type = "OBJECT_DESTROYED"
	TypeBonusCleared     Type = "BONUS_CLEARED"
)

// Refusal event types.
const (
	TypeMoveDenied       Type = "MOVE_DENIED"
	TypeSayDenied        Type = "SAY_DENIED"
	TypePoseDenied       Type = "POSE_DENIED"
	TypeInteractDenied   Type = "INTERACT_DENIED"
	TypeAttributeDenied  Type = "ATTRIBUTE_DENIED"
	TypeCreateDenied     Type = "CREATE_DENIED"
	TypeDestroyDenied    Type = "DESTROY_DENIED"
	TypeBonusClearDenied Type = "BONUS_CLEAR_DENIED"
	TypeAttemptVoided    Type = "ATTEMPT_VOIDED"
)

var refusalFor = map[Type]Type{
	TypeMoveAttempt:       TypeMoveDenied,
	TypeSayAttempt:        TypeSayDenied,
	TypePoseAttempt:       TypePoseDenied,
	TypeInteractAttempt:   TypeInteractDenied,
	TypeAttributeAttempt:  TypeAttributeDenied,
	TypeCreateAttempt:     TypeCreateDenied,
	TypeDestroyAttempt:    TypeDestroyDenied,
	TypeBonusClearAttempt: TypeBonusClearDenied,
}

// RefusalFor maps an attempt type to its refusal counterpart.
func RefusalFor(attempt Type) Type {
	if r, ok := refusalFor[attempt]; ok {
		return r
	}
	return TypeAttemptVoided
}

// IsAttemptType reports whether t belongs to the attempt taxonomy.
func IsAttemptType(t Type) bool {
	_, ok := refusalFor[t]
	return ok
}

// Event is one immutable log record. World and refusal events carry a
// back-reference to the attempt they resolve; world events additionally
// carry the committed effects so replay can reapply them without
// re-validation.
type Event struct {
	Seq       uint64             `json:"seq"`
	Timestamp time.Time          `json:"ts"`
	Category  Category           `json:"category"`
	Type      Type               `json:"type"`
	Actor     storage.Identifier `json:"actor,omitempty"`
	Location  storage.Identifier `json:"location,omitempty"`
	Attempt   uint64             `json:"attempt,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Payload   json.RawMessage    `json:"payload,omitempty"`
	Effects   []world.Effect     `json:"effects,omitempty"`
}
