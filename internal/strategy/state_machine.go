package strategy

import (
	"fmt"
	"time"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
)

// State is the lifecycle state of one strategy instance. IDLE and a
// fully-unwound EXITING are the only states with no open instructions
// outstanding.
type State string

const (
	StateIdle        State = "IDLE"
	StateEntering    State = "ENTERING"
	StateHolding     State = "HOLDING"
	StateRebalancing State = "REBALANCING"
	StateExiting     State = "EXITING"
)

// TransitionRecord is one state machine transition, kept for the run's
// transition history
type TransitionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	Forced    bool      `json:"forced"`
}

// allowedTransitions encodes the lifecycle edges. The forced
// critical-risk edge to EXITING is handled separately in Force.
var allowedTransitions = map[State][]State{
	StateIdle:        {StateEntering},
	StateEntering:    {StateHolding},
	StateHolding:     {StateRebalancing, StateExiting},
	StateRebalancing: {StateHolding, StateExiting},
	StateExiting:     {StateIdle},
}

// stateMachine tracks and validates lifecycle transitions for one
// strategy instance
type stateMachine struct {
	current State
	history []TransitionRecord
	onEvent func(TransitionRecord)
}

func newStateMachine(onEvent func(TransitionRecord)) *stateMachine {
	return &stateMachine{current: StateIdle, onEvent: onEvent}
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.current
}

// History returns the transitions taken so far
func (m *stateMachine) History() []TransitionRecord {
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves to the target state if the edge is allowed
func (m *stateMachine) Transition(to State, reason string, now time.Time) error {
	for _, allowed := range allowedTransitions[m.current] {
		if allowed == to {
			m.record(to, reason, false, now)
			return nil
		}
	}
	return perrors.NewValidationError("strategy", "Transition",
		fmt.Sprintf("illegal transition %s -> %s", m.current, to))
}

// Force moves to EXITING from any position-holding state. A critical
// risk assessment pre-empts every other transition.
func (m *stateMachine) Force(reason string, now time.Time) {
	if m.current == StateIdle || m.current == StateExiting {
		return
	}
	m.record(StateExiting, reason, true, now)
}

func (m *stateMachine) record(to State, reason string, forced bool, now time.Time) {
	rec := TransitionRecord{
		Timestamp: now,
		From:      m.current,
		To:        to,
		Reason:    reason,
		Forced:    forced,
	}
	m.current = to
	m.history = append(m.history, rec)
	if m.onEvent != nil {
		m.onEvent(rec)
	}
}
