package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"devagent/pkg/logx"
)

// State is a state of the retry loop.
type State string

// Loop states.
const (
	StateStart       State = "START"
	StateGenerate    State = "GENERATE"
	StateValidate    State = "VALIDATE"
	StateExecute     State = "EXECUTE"
	StateRecordError State = "RECORD_ERROR"
	StateDoneSuccess State = "DONE_SUCCESS"
	StateDoneFailure State = "DONE_FAILURE"
)

// ErrInvalidTransition indicates a transition outside the loop's table.
var ErrInvalidTransition = errors.New("invalid state transition")

//nolint:gochecknoglobals // state machine definition
var validTransitions = map[State][]State{
	StateStart:       {StateGenerate, StateDoneFailure},
	StateGenerate:    {StateValidate, StateRecordError, StateDoneFailure},
	StateValidate:    {StateExecute, StateRecordError},
	StateExecute:     {StateDoneSuccess, StateRecordError},
	StateRecordError: {StateGenerate, StateDoneFailure},
	StateDoneSuccess: {},
	StateDoneFailure: {},
}

// IsValidTransition reports whether from → to is allowed.
func IsValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidNextStates returns the states reachable from from.
func ValidNextStates(from State) []State {
	return validTransitions[from]
}

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateDoneSuccess || s == StateDoneFailure
}

// Transition records one state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMachine tracks the loop state for one request.
type StateMachine struct {
	mu          sync.Mutex
	current     State
	transitions []Transition
	logger      *logx.Logger
}

// NewStateMachine starts in StateStart.
func NewStateMachine(logger *logx.Logger) *StateMachine {
	if logger == nil {
		logger = logx.NewLogger("orchestrator")
	}
	return &StateMachine{current: StateStart, logger: logger}
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// TransitionTo moves to next, tagging the transition with attempt.
func (sm *StateMachine) TransitionTo(next State, attempt int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prev := sm.current
	if !IsValidTransition(prev, next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, prev, next)
	}
	sm.transitions = append(sm.transitions, Transition{
		From:      prev,
		To:        next,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
	})
	sm.current = next

	sm.logger.Debug("🔄 State machine transition: %s → %s", prev, next)
	return nil
}

// Transitions returns a copy of the recorded transitions.
func (sm *StateMachine) Transitions() []Transition {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return append([]Transition(nil), sm.transitions...)
}

// GenerateCount returns how many times GENERATE was entered.
func (sm *StateMachine) GenerateCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	n := 0
	for _, t := range sm.transitions {
		if t.To == StateGenerate {
			n++
		}
	}
	return n
}
