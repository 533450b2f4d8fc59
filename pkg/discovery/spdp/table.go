package spdp

import (
	"time"

	"github.com/lwedge/lwbus/internal/ring"
)

const (
	maxParticipants = 128 // §3: "bounded (128) ring"
	maxTopicEntries = 256 // §3: "bounded (256) ring"
)

// participantIdentity is the tuple that actually identifies a participant
// across restarts of its transient ParticipantID (§4.5's receive cycle).
type participantIdentity struct {
	protocolVersion uint32
	hostID          uint32
	applicationID   uint32
	instanceID      uint32
}

// ParticipantEntry is one row of the discovered-participants table.
type ParticipantEntry struct {
	Identity         participantIdentity
	Name             string
	TransportAddress string
	LastSeen         time.Time
	LeaseDuration    time.Duration
}

// TopicEntry is one row of the discovered-topics table, keyed by
// (topic name, owning participant).
type TopicEntry struct {
	TopicName     string
	TypeName      string
	ParticipantID uint32
	LastSeen      time.Time
}

// Tables holds the per-participant discovery state described in §3: a
// bounded ring of discovered participants and a bounded ring of
// discovered topics, each pruned by lease expiry every receive cycle.
type Tables struct {
	participants *ring.Ring[ParticipantEntry]
	topics       *ring.Ring[TopicEntry]
}

func newTables() *Tables {
	return &Tables{
		participants: ring.New[ParticipantEntry](maxParticipants),
		topics:       ring.New[TopicEntry](maxTopicEntries),
	}
}

// upsertParticipant implements the participant-announce rule of §4.5:
// update last_seen/address if the identity tuple is already present,
// else insert if the table has room. isNew reports whether an insert
// happened (used to decide whether to fire the participant callback).
func (t *Tables) upsertParticipant(identity participantIdentity, name, address string, lease time.Duration, now time.Time) (entry ParticipantEntry, isNew bool) {
	idx := t.participants.Find(func(e ParticipantEntry) bool { return e.Identity == identity })
	if idx >= 0 {
		e := t.participants.Entries()[idx]
		e.Name = name
		e.TransportAddress = address
		e.LastSeen = now
		e.LeaseDuration = lease
		t.participants.Update(idx, e)
		return e, false
	}
	e := ParticipantEntry{Identity: identity, Name: name, TransportAddress: address, LastSeen: now, LeaseDuration: lease}
	if !t.participants.Put(e) {
		return ParticipantEntry{}, false
	}
	return e, true
}

// removeParticipant implements the participant-leave rule: lwbus chooses
// to remove immediately on an explicit leave message, in addition to the
// unconditional lease-expiry prune every cycle (documented open-question
// resolution — see DESIGN.md).
func (t *Tables) removeParticipant(identity participantIdentity) {
	idx := t.participants.Find(func(e ParticipantEntry) bool { return e.Identity == identity })
	if idx >= 0 {
		t.participants.RemoveAt(idx)
	}
}

// upsertTopic implements the topic-announce rule of §4.5: match by
// (topic_name, participant_id), update or insert if room remains.
func (t *Tables) upsertTopic(topicName, typeName string, participantID uint32, now time.Time) (entry TopicEntry, isNew bool) {
	idx := t.topics.Find(func(e TopicEntry) bool {
		return e.TopicName == topicName && e.ParticipantID == participantID
	})
	if idx >= 0 {
		e := t.topics.Entries()[idx]
		e.TypeName = typeName
		e.LastSeen = now
		t.topics.Update(idx, e)
		return e, false
	}
	e := TopicEntry{TopicName: topicName, TypeName: typeName, ParticipantID: participantID, LastSeen: now}
	if !t.topics.Put(e) {
		return TopicEntry{}, false
	}
	return e, true
}

func (t *Tables) removeTopic(topicName string, participantID uint32) {
	idx := t.topics.Find(func(e TopicEntry) bool {
		return e.TopicName == topicName && e.ParticipantID == participantID
	})
	if idx >= 0 {
		t.topics.RemoveAt(idx)
	}
}

// pruneExpired removes every participant and topic whose last_seen is
// older than its lease (participants) or the fixed leaseDuration
// (topics, which have no per-entry lease field of their own).
func (t *Tables) pruneExpired(now time.Time, topicLease time.Duration) (expiredParticipants, expiredTopics int) {
	expiredParticipants = t.participants.Prune(func(e ParticipantEntry) bool {
		return now.Sub(e.LastSeen) > e.LeaseDuration
	})
	expiredTopics = t.topics.Prune(func(e TopicEntry) bool {
		return now.Sub(e.LastSeen) > topicLease
	})
	return expiredParticipants, expiredTopics
}

// Participants returns a snapshot of the currently discovered participants.
func (t *Tables) Participants() []ParticipantEntry {
	return append([]ParticipantEntry(nil), t.participants.Entries()...)
}

// Topics returns a snapshot of the currently discovered topics.
func (t *Tables) Topics() []TopicEntry {
	return append([]TopicEntry(nil), t.topics.Entries()...)
}

// MatchedEndpoints returns the participant ID of every discovered-topic
// entry whose (topic_name, type_name) equals (topicName, typeName); each
// participant appears at most once, since topic entries are keyed by
// (topic_name, participant_id). It matches on the topics table alone: it
// does not check that the owning participants are present in the
// discovered-participants table.
func (t *Tables) MatchedEndpoints(topicName, typeName string) []uint32 {
	var ids []uint32
	for _, topic := range t.topics.Entries() {
		if topic.TopicName != topicName || topic.TypeName != typeName {
			continue
		}
		ids = append(ids, topic.ParticipantID)
	}
	return ids
}
