package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to State
		valid    bool
	}{
		{StateStart, StateGenerate, true},
		{StateStart, StateDoneFailure, true},
		{StateStart, StateValidate, false},
		{StateGenerate, StateValidate, true},
		{StateGenerate, StateRecordError, true},
		{StateGenerate, StateDoneFailure, true},
		{StateGenerate, StateExecute, false},
		{StateValidate, StateExecute, true},
		{StateValidate, StateRecordError, true},
		{StateValidate, StateDoneFailure, false},
		{StateExecute, StateDoneSuccess, true},
		{StateExecute, StateRecordError, true},
		{StateRecordError, StateGenerate, true},
		{StateRecordError, StateDoneFailure, true},
		{StateRecordError, StateDoneSuccess, false},
		{StateDoneSuccess, StateGenerate, false},
		{StateDoneFailure, StateStart, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for state := range validTransitions {
		if state.IsTerminal() {
			assert.Empty(t, ValidNextStates(state), state)
		} else {
			assert.NotEmpty(t, ValidNextStates(state), state)
		}
	}
}

func TestStateMachineRecordsTransitions(t *testing.T) {
	sm := NewStateMachine(nil)
	assert.Equal(t, StateStart, sm.Current())

	require.NoError(t, sm.TransitionTo(StateGenerate, 0))
	require.NoError(t, sm.TransitionTo(StateRecordError, 0))
	require.NoError(t, sm.TransitionTo(StateGenerate, 1))

	err := sm.TransitionTo(StateDoneSuccess, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateGenerate, sm.Current())

	transitions := sm.Transitions()
	require.Len(t, transitions, 3)
	assert.Equal(t, Transition{From: StateRecordError, To: StateGenerate, Attempt: 1, Timestamp: transitions[2].Timestamp}, transitions[2])
	assert.Equal(t, 2, sm.GenerateCount())
}
