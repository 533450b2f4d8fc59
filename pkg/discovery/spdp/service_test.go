package spdp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestServiceDiscoversPeer exercises S4: two participants in the same
// domain, sharing one non-default multicast port (test isolation per
// spec.md §9), observe each other, including a topic set on one side
// before it started announcing.
func TestServiceDiscoversPeer(t *testing.T) {
	port := 17400 // isolated from the production default of 7400

	discoveredA := make(chan ParticipantEntry, 4)
	discoveredB := make(chan ParticipantEntry, 4)
	topicsA := make(chan TopicEntry, 4)

	svcA := NewService(Config{
		Domain:           0,
		MulticastPort:    port,
		ParticipantName:  "participant-a",
		AnnounceInterval: 100 * time.Millisecond,
		LeaseDuration:    2 * time.Second,
	}, func(e ParticipantEntry, isNew bool) { discoveredA <- e }, func(e TopicEntry, isNew bool) { topicsA <- e })

	svcB := NewService(Config{
		Domain:           0,
		MulticastPort:    port,
		ParticipantName:  "participant-b",
		AnnounceInterval: 100 * time.Millisecond,
		LeaseDuration:    2 * time.Second,
	}, func(e ParticipantEntry, isNew bool) { discoveredB <- e }, nil)
	svcB.SetTopics([]Topic{{Name: "T1/type1", TypeName: "type1", TopicID: 1}})

	require.NoError(t, svcA.Start())
	defer svcA.Stop()
	require.NoError(t, svcB.Start())
	defer svcB.Stop()

	select {
	case entry := <-discoveredA:
		require.Equal(t, "participant-b", entry.Name)
		require.NotEmpty(t, entry.TransportAddress)
		host, _, err := net.SplitHostPort(entry.TransportAddress)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1", host)
	case <-time.After(3 * time.Second):
		t.Fatal("participant A never discovered participant B")
	}

	select {
	case entry := <-discoveredB:
		require.Equal(t, "participant-a", entry.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("participant B never discovered participant A")
	}

	select {
	case topic := <-topicsA:
		require.Equal(t, "T1/type1", topic.TopicName)
	case <-time.After(3 * time.Second):
		t.Fatal("participant A never observed participant B's topic")
	}
}
