package engine

import "time"

type EngineOpt func(*Engine)

// WithClock fixes the commit clock, for tests and deterministic replay
// harnesses.
func WithClock(clock func() time.Time) EngineOpt {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithRunID overrides the generated per-boot identifier.
func WithRunID(id string) EngineOpt {
	return func(e *Engine) {
		e.runID = id
	}
}
