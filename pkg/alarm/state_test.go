package alarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointHistoryAddAndPrune(t *testing.T) {
	h := newPointHistory()
	h.add(1, 0)
	h.add(2, 100)
	h.add(3, 2000)

	h.pruneOlderThan(2000, 1000)
	entries := h.entries()
	require.Len(t, entries, 1)
	assert.Equal(t, float64(3), entries[0].value)
}

func TestPointHistoryEvictsOldestWhenFull(t *testing.T) {
	h := newPointHistory()
	for i := 0; i < historyRingCapacity+5; i++ {
		h.add(float64(i), int64(i))
	}
	entries := h.entries()
	require.Len(t, entries, historyRingCapacity)
	assert.Equal(t, float64(5), entries[0].value)
}

func TestStateTableCreatesOnFirstAccess(t *testing.T) {
	st := newStateTable()
	s := st.state(7, 1)
	assert.False(t, s.Active)

	s.Active = true
	s.LastTriggerMs = 42
	again := st.state(7, 1)
	assert.True(t, again.Active)
	assert.Equal(t, int64(42), again.LastTriggerMs)
}

func TestStateTableContextSharesHistoryPerPoint(t *testing.T) {
	st := newStateTable()
	c1 := st.context(7, 1, true)
	c2 := st.context(7, 2, true)
	require.NotNil(t, c1.history)
	require.NotNil(t, c2.history)
	assert.Same(t, c1.history, c2.history)
}

func TestStateTableActiveStates(t *testing.T) {
	st := newStateTable()
	st.state(1, 1).Active = true
	st.state(1, 2).Active = false
	st.state(2, 1).Active = true

	active := st.activeStates()
	assert.Len(t, active, 2)
	assert.True(t, active[stateKey{1, 1}].Active)
	assert.True(t, active[stateKey{2, 1}].Active)
}
