// Package rules is the validation engine: every intention is evaluated
// against a world snapshot before anything is committed. Modules are a
// closed set keyed by attempt type; they inspect the snapshot and the
// attempt payload only, produce no side effects, and answer with either a
// minimal effect description or a refusal reason. Refusal is data, not
// failure.
package rules

import (
	"encoding/json"
	"time"

	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/storage"
	"github.com/noesisproject/noesis/internal/world"
)

// Refusal reason codes. These travel in refusal events and Information
// packets, so they are short stable identifiers rather than prose.
const (
	ReasonBadPayload     = "BAD_PAYLOAD"
	ReasonUnknownEntity  = "UNKNOWN_ENTITY"
	ReasonNotViewer      = "NOT_A_VIEWER"
	ReasonNowhere        = "NOWHERE"
	ReasonNoExit         = "NO_EXIT"
	ReasonLayerBlocked   = "LAYER_BLOCKED"
	ReasonEmptyMessage   = "EMPTY_MESSAGE"
	ReasonEmptyAction    = "EMPTY_ACTION"
	ReasonOutOfReach     = "OUT_OF_REACH"
	ReasonReservedAttr   = "RESERVED_ATTRIBUTE"
	ReasonAlreadyExists  = "ALREADY_EXISTS"
	ReasonUnknownAttempt = "UNKNOWN_ATTEMPT"
	ReasonInvariant      = "INVARIANT"
	ReasonVoided         = "VOIDED"
)

// Attempt is an appended intention under evaluation. Now is the commit
// step's wall clock, injected so time-dependent decisions (bonus expiry)
// are made once, here, and recorded in the effects rather than re-decided
// at replay time.
type Attempt struct {
	Seq     uint64
	Type    event.Type
	Actor   storage.Identifier
	Payload json.RawMessage
	Now     time.Time
}

// Fact is one world event the module wants committed, with the effects
// that realize it.
type Fact struct {
	Type     event.Type
	Location storage.Identifier
	Payload  any
	Effects  []world.Effect
}

// Outcome is the module's verdict.
type Outcome struct {
	Accepted bool
	Reason   string
	Facts    []Fact
}

func Accept(facts ...Fact) *Outcome {
	return &Outcome{Accepted: true, Facts: facts}
}

func Refuse(reason string) *Outcome {
	return &Outcome{Reason: reason}
}

// Module evaluates one attempt type. Returning an error means an internal
// defect, not a world refusal; the engine aborts the operation and refuses
// the attempt with ReasonInvariant.
type Module interface {
	Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error)
}

// Engine dispatches attempts over the closed module set. The taxonomy is
// deliberately curated: adding behavior means registering a new tagged
// module here, not open-ended dynamic dispatch.
type Engine struct {
	modules map[event.Type]Module
}

func NewEngine() *Engine {
	return &Engine{
		modules: map[event.Type]Module{
			event.TypeMoveAttempt:       &moveModule{},
			event.TypeSayAttempt:        &sayModule{},
			event.TypePoseAttempt:       &poseModule{},
			event.TypeInteractAttempt:   &interactModule{},
			event.TypeAttributeAttempt:  &attributeModule{},
			event.TypeCreateAttempt:     &createModule{},
			event.TypeDestroyAttempt:    &destroyModule{},
			event.TypeBonusClearAttempt: &bonusClearModule{},
		},
	}
}

// Evaluate runs the module for the attempt's type. Unknown attempt types
// are a structural refusal, not a crash.
func (e *Engine) Evaluate(a *Attempt, snap *world.Snapshot) (*Outcome, error) {
	m, ok := e.modules[a.Type]
	if !ok {
		return Refuse(ReasonUnknownAttempt), nil
	}
	return m.Evaluate(a, snap)
}

// actorViewer resolves the acting entity and checks perception capability.
// The bool reports success; the outcome carries the refusal otherwise.
func actorViewer(a *Attempt, snap *world.Snapshot) (*world.Entity, *Outcome) {
	actor, err := snap.Entity(a.Actor)
	if err != nil {
		return nil, Refuse(ReasonUnknownEntity)
	}
	if !actor.Viewer() {
		return nil, Refuse(ReasonNotViewer)
	}
	return actor, nil
}
