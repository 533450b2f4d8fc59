package spdp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpsertParticipantInsertThenUpdate(t *testing.T) {
	tables := newTables()
	identity := participantIdentity{protocolVersion: 1, hostID: 2, applicationID: 3, instanceID: 4}

	now := time.Unix(1000, 0)
	entry, isNew := tables.upsertParticipant(identity, "driver-1", "10.0.0.1", 10*time.Second, now)
	require.True(t, isNew)
	require.Equal(t, "driver-1", entry.Name)
	require.Equal(t, 1, tables.participants.Len())

	later := now.Add(time.Second)
	entry, isNew = tables.upsertParticipant(identity, "driver-1-renamed", "10.0.0.2", 10*time.Second, later)
	require.False(t, isNew)
	require.Equal(t, "driver-1-renamed", entry.Name)
	require.Equal(t, 1, tables.participants.Len())
}

func TestUpsertParticipantTableFull(t *testing.T) {
	tables := newTables()
	now := time.Unix(1000, 0)
	for i := 0; i < maxParticipants; i++ {
		identity := participantIdentity{instanceID: uint32(i)}
		_, isNew := tables.upsertParticipant(identity, "p", "", 10*time.Second, now)
		require.True(t, isNew)
	}
	_, isNew := tables.upsertParticipant(participantIdentity{instanceID: 9999}, "overflow", "", 10*time.Second, now)
	require.False(t, isNew)
	require.Equal(t, maxParticipants, tables.participants.Len())
}

func TestRemoveParticipantOnLeave(t *testing.T) {
	tables := newTables()
	identity := participantIdentity{instanceID: 1}
	now := time.Unix(1000, 0)
	tables.upsertParticipant(identity, "p", "", 10*time.Second, now)
	require.Equal(t, 1, tables.participants.Len())

	tables.removeParticipant(identity)
	require.Equal(t, 0, tables.participants.Len())
}

func TestPruneExpiredParticipantsAndTopics(t *testing.T) {
	tables := newTables()
	now := time.Unix(1000, 0)
	tables.upsertParticipant(participantIdentity{instanceID: 1}, "p1", "", 2*time.Second, now)
	tables.upsertTopic("/tags/update", "TagUpdate", 42, now)

	later := now.Add(5 * time.Second)
	expiredP, expiredT := tables.pruneExpired(later, 2*time.Second)
	require.Equal(t, 1, expiredP)
	require.Equal(t, 1, expiredT)
	require.Equal(t, 0, tables.participants.Len())
	require.Equal(t, 0, tables.topics.Len())
}

func TestMatchedEndpoints(t *testing.T) {
	tables := newTables()
	now := time.Unix(1000, 0)
	tables.upsertTopic("/tags/update", "TagUpdate", 1, now)
	tables.upsertTopic("/tags/update", "TagUpdate", 2, now)
	tables.upsertTopic("/tags/update", "OtherType", 3, now)

	ids := tables.MatchedEndpoints("/tags/update", "TagUpdate")
	require.ElementsMatch(t, []uint32{1, 2}, ids)
}
