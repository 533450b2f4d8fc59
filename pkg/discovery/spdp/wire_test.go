package spdp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeParticipantAnnounce(t *testing.T) {
	msg := Message{
		Header: Header{
			Kind:          KindParticipantAnnounce,
			Domain:        7,
			ParticipantID: 42,
			TimestampSec:  1000,
			TimestampNsec: 500,
		},
		Participant: Participant{
			Name:            "driver-1",
			ProtocolVersion: 1,
			VendorID:        2,
			ProductID:       3,
			HostID:          4,
			ApplicationID:   5,
			InstanceID:      6,
			LeaseSec:        10,
		},
		Topics: []Topic{
			{Name: "/tags/update", TypeName: "TagUpdate", TopicID: 1},
			{Name: "/tags/init", TypeName: "TagInit", TopicID: 2},
		},
	}

	buf, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, msg.Header.Kind, decoded.Header.Kind)
	require.Equal(t, msg.Header.Domain, decoded.Header.Domain)
	require.Equal(t, msg.Header.ParticipantID, decoded.Header.ParticipantID)
	require.Equal(t, msg.Participant.Name, decoded.Participant.Name)
	require.Equal(t, msg.Participant.InstanceID, decoded.Participant.InstanceID)
	require.Len(t, decoded.Topics, 2)
	require.Equal(t, "/tags/update", decoded.Topics[0].Name)
	require.Equal(t, "/tags/init", decoded.Topics[1].Name)
}

func TestEncodeDecodeTopicAnnounce(t *testing.T) {
	msg := Message{
		Header: Header{Kind: KindTopicAnnounce, Domain: 1, ParticipantID: 9},
		Topic:  Topic{Name: "/tags/update", TypeName: "TagUpdate", TopicID: 1},
		Endpoint: Endpoint{
			EndpointID:       3,
			IsWriter:         true,
			TransportAddress: "192.168.1.10",
			Port:             9001,
		},
	}
	buf, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, "/tags/update", decoded.Topic.Name)
	require.True(t, decoded.Endpoint.IsWriter)
	require.Equal(t, "192.168.1.10", decoded.Endpoint.TransportAddress)
	require.EqualValues(t, 9001, decoded.Endpoint.Port)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, headerLen)
	copy(buf, "XXXX")
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestEncodeRejectsTooManyTopics(t *testing.T) {
	topics := make([]Topic, maxTopics+1)
	for i := range topics {
		topics[i] = Topic{Name: "t", TypeName: "T", TopicID: uint32(i)}
	}
	_, err := Encode(Message{Header: Header{Kind: KindParticipantAnnounce}, Topics: topics})
	require.Error(t, err)
}
