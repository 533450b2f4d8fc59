package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type entry struct {
	name     string
	lastSeen int
}

func TestRingPutFullPrune(t *testing.T) {
	r := New[entry](2)
	require.True(t, r.Put(entry{"a", 1}))
	require.True(t, r.Put(entry{"b", 2}))
	require.True(t, r.Full())
	require.False(t, r.Put(entry{"c", 3}))
	require.Equal(t, 2, r.Len())

	removed := r.Prune(func(e entry) bool { return e.lastSeen < 2 })
	require.Equal(t, 1, removed)
	require.Equal(t, 1, r.Len())
	require.True(t, r.Put(entry{"c", 3}))
	require.Equal(t, 2, r.Len())
}

func TestRingFindUpdateRemove(t *testing.T) {
	r := New[entry](4)
	r.Put(entry{"a", 1})
	r.Put(entry{"b", 2})

	idx := r.Find(func(e entry) bool { return e.name == "b" })
	require.Equal(t, 1, idx)
	r.Update(idx, entry{"b", 99})
	require.Equal(t, 99, r.Entries()[1].lastSeen)

	r.RemoveAt(0)
	require.Equal(t, 1, r.Len())
	require.Equal(t, "b", r.Entries()[0].name)
}
