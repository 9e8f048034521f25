// File: internal/recorder/phase.go
package recorder

import "sync/atomic"

type phaseState int32

const (
	phaseIdle phaseState = iota
	phasePerforming
)

// actionPhase is the explicit two-state machine gating committing actions.
// begin is the transition precondition every classification path checks:
// while an action round-trip is outstanding no second one can start, and
// every captured event passes through untouched.
type actionPhase struct {
	v atomic.Int32
}

// begin attempts the Idle -> PerformingAction transition.
func (p *actionPhase) begin() bool {
	return p.v.CompareAndSwap(int32(phaseIdle), int32(phasePerforming))
}

// end returns to Idle. Always called after the round-trip settles, success
// or failure.
func (p *actionPhase) end() {
	p.v.Store(int32(phaseIdle))
}

// performing reports whether a committing round-trip is outstanding.
func (p *actionPhase) performing() bool {
	return phaseState(p.v.Load()) == phasePerforming
}
