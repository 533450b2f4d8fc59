// Package spdp implements the DDS-lite discovery plane described in
// spec.md §4.5: multicast participant/topic announcements, a bounded
// last-seen table per kind, and lease-based expiry. It surfaces only the
// discovery tables; the data transport itself is out of band (the
// mesh package).
package spdp

import (
	"encoding/binary"
	"fmt"
)

const (
	magic          = "SPDP"
	wireVersion    = uint16(1)
	nameLen        = 64
	typeNameLen    = 64
	addressLen     = 128
	maxTopics      = 16
	headerLen      = 4 + 2 + 2 + 2 + 4 + 4 + 4 + 4 // 26
	participantLen = nameLen + 4*8                 // 96
	topicLen       = nameLen + typeNameLen + 4      // 132
	endpointLen    = 4 + 1 + addressLen + 2         // 135
)

// MsgKind identifies an SPDP message's payload shape.
type MsgKind uint16

const (
	KindParticipantAnnounce MsgKind = 0
	KindParticipantLeave    MsgKind = 1
	KindTopicAnnounce       MsgKind = 2
	KindTopicRemove         MsgKind = 3
)

// Header is the fixed SPDP preamble common to every message kind.
type Header struct {
	Length        uint16
	Kind          MsgKind
	Domain        uint32
	ParticipantID uint32
	TimestampSec  uint32
	TimestampNsec uint32
}

// Participant describes one SPDP participant record, identified by the
// (ProtocolVersion, HostID, ApplicationID, InstanceID) tuple rather than
// its transient ParticipantID (§3).
type Participant struct {
	Name            string
	ProtocolVersion uint32
	VendorID        uint32
	ProductID       uint32
	HostID          uint32
	ApplicationID   uint32
	InstanceID      uint32
	LeaseSec        uint32
	LeaseNsec       uint32
}

// Topic is an SPDP topic record, embeddable either standalone (kinds 2/3)
// or inside a participant-announce's topic list.
type Topic struct {
	Name     string
	TypeName string
	TopicID  uint32
}

// Endpoint describes a single reader or writer of a topic (§4.5).
type Endpoint struct {
	EndpointID       uint32
	IsWriter         bool
	TransportAddress string
	Port             uint16
}

// Message is a fully decoded SPDP datagram. Participant is populated for
// KindParticipantAnnounce/KindParticipantLeave; Topic/Endpoint for
// KindTopicAnnounce/KindTopicRemove; Topics for the embedded topic list
// carried by every participant-announce.
type Message struct {
	Header      Header
	Participant Participant
	Topic       Topic
	Endpoint    Endpoint
	Topics      []Topic
}

func putFixedString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getFixedString(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

func putParticipant(dst []byte, p Participant) {
	putFixedString(dst[0:nameLen], p.Name)
	o := nameLen
	binary.BigEndian.PutUint32(dst[o:], p.ProtocolVersion)
	binary.BigEndian.PutUint32(dst[o+4:], p.VendorID)
	binary.BigEndian.PutUint32(dst[o+8:], p.ProductID)
	binary.BigEndian.PutUint32(dst[o+12:], p.HostID)
	binary.BigEndian.PutUint32(dst[o+16:], p.ApplicationID)
	binary.BigEndian.PutUint32(dst[o+20:], p.InstanceID)
	binary.BigEndian.PutUint32(dst[o+24:], p.LeaseSec)
	binary.BigEndian.PutUint32(dst[o+28:], p.LeaseNsec)
}

func getParticipant(src []byte) Participant {
	o := nameLen
	return Participant{
		Name:            getFixedString(src[0:nameLen]),
		ProtocolVersion: binary.BigEndian.Uint32(src[o:]),
		VendorID:        binary.BigEndian.Uint32(src[o+4:]),
		ProductID:       binary.BigEndian.Uint32(src[o+8:]),
		HostID:          binary.BigEndian.Uint32(src[o+12:]),
		ApplicationID:   binary.BigEndian.Uint32(src[o+16:]),
		InstanceID:      binary.BigEndian.Uint32(src[o+20:]),
		LeaseSec:        binary.BigEndian.Uint32(src[o+24:]),
		LeaseNsec:       binary.BigEndian.Uint32(src[o+28:]),
	}
}

func putTopic(dst []byte, t Topic) {
	putFixedString(dst[0:nameLen], t.Name)
	putFixedString(dst[nameLen:nameLen+typeNameLen], t.TypeName)
	binary.BigEndian.PutUint32(dst[nameLen+typeNameLen:], t.TopicID)
}

func getTopic(src []byte) Topic {
	return Topic{
		Name:     getFixedString(src[0:nameLen]),
		TypeName: getFixedString(src[nameLen : nameLen+typeNameLen]),
		TopicID:  binary.BigEndian.Uint32(src[nameLen+typeNameLen:]),
	}
}

func putEndpoint(dst []byte, e Endpoint) {
	binary.BigEndian.PutUint32(dst[0:], e.EndpointID)
	if e.IsWriter {
		dst[4] = 1
	} else {
		dst[4] = 0
	}
	putFixedString(dst[5:5+addressLen], e.TransportAddress)
	binary.BigEndian.PutUint16(dst[5+addressLen:], e.Port)
}

func getEndpoint(src []byte) Endpoint {
	return Endpoint{
		EndpointID:       binary.BigEndian.Uint32(src[0:]),
		IsWriter:         src[4] == 1,
		TransportAddress: getFixedString(src[5 : 5+addressLen]),
		Port:             binary.BigEndian.Uint16(src[5+addressLen:]),
	}
}

// Encode serialises m according to its Header.Kind, filling in
// Header.Length with the final byte count.
func Encode(m Message) ([]byte, error) {
	var body []byte
	switch m.Header.Kind {
	case KindParticipantAnnounce, KindParticipantLeave:
		if len(m.Topics) > maxTopics {
			return nil, fmt.Errorf("spdp: too many topics (%d > %d)", len(m.Topics), maxTopics)
		}
		body = make([]byte, participantLen+4+len(m.Topics)*topicLen)
		putParticipant(body, m.Participant)
		o := participantLen
		binary.BigEndian.PutUint32(body[o:], uint32(len(m.Topics)))
		o += 4
		for _, t := range m.Topics {
			putTopic(body[o:o+topicLen], t)
			o += topicLen
		}
	case KindTopicAnnounce, KindTopicRemove:
		body = make([]byte, topicLen+endpointLen)
		putTopic(body, m.Topic)
		putEndpoint(body[topicLen:], m.Endpoint)
	default:
		return nil, fmt.Errorf("spdp: unknown message kind %d", m.Header.Kind)
	}

	buf := make([]byte, headerLen+len(body))
	copy(buf[0:4], magic)
	binary.BigEndian.PutUint16(buf[4:6], wireVersion)
	binary.BigEndian.PutUint16(buf[8:10], uint16(m.Header.Kind))
	binary.BigEndian.PutUint32(buf[10:14], m.Header.Domain)
	binary.BigEndian.PutUint32(buf[14:18], m.Header.ParticipantID)
	binary.BigEndian.PutUint32(buf[18:22], m.Header.TimestampSec)
	binary.BigEndian.PutUint32(buf[22:26], m.Header.TimestampNsec)
	copy(buf[headerLen:], body)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(buf)))
	return buf, nil
}

// Decode parses an SPDP datagram, rejecting a bad magic or version
// outright (§4.5's receive-cycle validation — domain and own-participant
// filtering is the caller's responsibility since Decode has no notion of
// "own").
func Decode(src []byte) (Message, error) {
	if len(src) < headerLen {
		return Message{}, fmt.Errorf("spdp: short datagram (%d bytes)", len(src))
	}
	if string(src[0:4]) != magic {
		return Message{}, fmt.Errorf("spdp: bad magic %q", src[0:4])
	}
	version := binary.BigEndian.Uint16(src[4:6])
	if version != wireVersion {
		return Message{}, fmt.Errorf("spdp: unsupported version %d", version)
	}
	length := binary.BigEndian.Uint16(src[6:8])
	if int(length) > len(src) {
		return Message{}, fmt.Errorf("spdp: length %d exceeds datagram size %d", length, len(src))
	}

	m := Message{Header: Header{
		Length:        length,
		Kind:          MsgKind(binary.BigEndian.Uint16(src[8:10])),
		Domain:        binary.BigEndian.Uint32(src[10:14]),
		ParticipantID: binary.BigEndian.Uint32(src[14:18]),
		TimestampSec:  binary.BigEndian.Uint32(src[18:22]),
		TimestampNsec: binary.BigEndian.Uint32(src[22:26]),
	}}
	body := src[headerLen:length]

	switch m.Header.Kind {
	case KindParticipantAnnounce, KindParticipantLeave:
		if len(body) < participantLen+4 {
			return Message{}, fmt.Errorf("spdp: short participant body")
		}
		m.Participant = getParticipant(body)
		numTopics := int(binary.BigEndian.Uint32(body[participantLen:]))
		o := participantLen + 4
		for i := 0; i < numTopics; i++ {
			if o+topicLen > len(body) {
				return Message{}, fmt.Errorf("spdp: truncated topic list")
			}
			m.Topics = append(m.Topics, getTopic(body[o:o+topicLen]))
			o += topicLen
		}
	case KindTopicAnnounce, KindTopicRemove:
		if len(body) < topicLen+endpointLen {
			return Message{}, fmt.Errorf("spdp: short topic body")
		}
		m.Topic = getTopic(body[0:topicLen])
		m.Endpoint = getEndpoint(body[topicLen:])
	default:
		return Message{}, fmt.Errorf("spdp: unknown message kind %d", m.Header.Kind)
	}
	return m, nil
}
