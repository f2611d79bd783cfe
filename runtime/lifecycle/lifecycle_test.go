package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPathTransitions(t *testing.T) {
	m := New()
	assert.Equal(t, StateCreated, m.Current())

	require.NoError(t, m.ProcessEvent(EventFirstInput))
	assert.Equal(t, StateInitializing, m.Current())

	require.NoError(t, m.ProcessEvent(EventInitDone))
	assert.Equal(t, StateRunning, m.Current())

	require.NoError(t, m.ProcessEvent(EventEOF))
	assert.Equal(t, StateDraining, m.Current())

	require.NoError(t, m.ProcessEvent(EventDrained))
	assert.Equal(t, StateClosed, m.Current())
	assert.True(t, m.Current().IsTerminal())
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	path := []Event{EventFirstInput, EventInitDone, EventEOF}
	for n := 0; n <= len(path); n++ {
		m := New()
		for _, ev := range path[:n] {
			require.NoError(t, m.ProcessEvent(ev))
		}
		require.NoError(t, m.ProcessEvent(EventCancel))
		assert.Equal(t, StateCancelled, m.Current())
	}
}

func TestCancelMidDraining(t *testing.T) {
	m := New()
	require.NoError(t, m.ProcessEvent(EventFirstInput))
	require.NoError(t, m.ProcessEvent(EventInitDone))
	require.NoError(t, m.ProcessEvent(EventEOF))
	require.NoError(t, m.ProcessEvent(EventCancel))
	assert.Equal(t, StateCancelled, m.Current())
}

func TestFailFromRunning(t *testing.T) {
	m := New()
	require.NoError(t, m.ProcessEvent(EventFirstInput))
	require.NoError(t, m.ProcessEvent(EventInitDone))
	require.NoError(t, m.ProcessEvent(EventFail))
	assert.Equal(t, StateFailed, m.Current())
}

func TestEventsAreRejectedFromTerminalStates(t *testing.T) {
	m := New()
	require.NoError(t, m.ProcessEvent(EventCancel))
	err := m.ProcessEvent(EventFirstInput)
	require.ErrorIs(t, err, ErrTerminalState)
}

func TestInvalidEventForState(t *testing.T) {
	m := New()
	err := m.ProcessEvent(EventEOF)
	require.ErrorIs(t, err, ErrInvalidEvent)
}

func TestHistoryRecordsEveryTransition(t *testing.T) {
	m := New()
	require.NoError(t, m.ProcessEvent(EventFirstInput))
	require.NoError(t, m.ProcessEvent(EventInitDone))
	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, StateCreated, history[0].From)
	assert.Equal(t, StateInitializing, history[0].To)
}
