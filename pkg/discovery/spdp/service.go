package spdp

import (
	"encoding/binary"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lwedge/lwbus/pkg/transport"
)

const (
	// DefaultMulticastAddress is the group SPDP multicasts on (§4.5).
	DefaultMulticastAddress = "239.255.0.1"
	// DefaultMulticastPort is the default SPDP port (§4.5).
	DefaultMulticastPort = 7400
	// DefaultAnnounceInterval is how often a participant re-announces.
	DefaultAnnounceInterval = 3 * time.Second
	// DefaultLeaseDuration is the staleness window after which a
	// participant or topic entry is pruned.
	DefaultLeaseDuration = 10 * time.Second
	// receiveTimeout bounds each receive-cycle read (§4.5: "select with
	// 1-s timeout").
	receiveTimeout = 1 * time.Second
)

// Config parameterises one SPDP domain participant.
type Config struct {
	Domain           uint32
	MulticastAddress string
	MulticastPort    int
	Interface        string
	ParticipantName  string
	ProtocolVersion  uint32
	VendorID         uint32
	ProductID        uint32
	HostID           uint32
	ApplicationID    uint32
	AnnounceInterval time.Duration
	LeaseDuration    time.Duration
	Logger           *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MulticastAddress == "" {
		c.MulticastAddress = DefaultMulticastAddress
	}
	if c.MulticastPort == 0 {
		c.MulticastPort = DefaultMulticastPort
	}
	if c.AnnounceInterval == 0 {
		c.AnnounceInterval = DefaultAnnounceInterval
	}
	if c.LeaseDuration == 0 {
		c.LeaseDuration = DefaultLeaseDuration
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ParticipantCallback fires when a participant is discovered or updated.
type ParticipantCallback func(entry ParticipantEntry, isNew bool)

// TopicCallback fires when a topic is discovered or updated.
type TopicCallback func(entry TopicEntry, isNew bool)

// Service is one SPDP domain participant: it owns the multicast socket,
// periodically announces itself and its current topic list, consumes
// announcements from peers into Tables, and prunes expired entries every
// cycle (§4.5).
type Service struct {
	cfg           Config
	conn          *net.UDPConn
	groupAddr     *net.UDPAddr
	participantID uint32
	instanceID    uint32
	tables        *Tables

	topicsMu sync.Mutex
	topics   []Topic

	onParticipant ParticipantCallback
	onTopic       TopicCallback

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewService constructs a Service; call Start to join the multicast
// group and begin the send/receive cycles.
func NewService(cfg Config, onParticipant ParticipantCallback, onTopic TopicCallback) *Service {
	cfg.applyDefaults()
	id := uuid.New()
	return &Service{
		cfg:           cfg,
		participantID: binary.BigEndian.Uint32(id[0:4]),
		instanceID:    binary.BigEndian.Uint32(id[4:8]),
		tables:        newTables(),
		onParticipant: onParticipant,
		onTopic:       onTopic,
		stopCh:        make(chan struct{}),
	}
}

// Tables exposes the discovered-participant/topic tables for readers
// that want a point-in-time snapshot (e.g. an admin surface) rather than
// the push callbacks.
func (s *Service) Tables() *Tables { return s.tables }

// ParticipantID returns this participant's transient 32-bit id, embedded
// in the header of every message it sends.
func (s *Service) ParticipantID() uint32 { return s.participantID }

// SetTopics replaces the topic list embedded in this participant's next
// announcements — the driver-SDK runtime calls this whenever its topic
// table changes (§4.6).
func (s *Service) SetTopics(topics []Topic) {
	s.topicsMu.Lock()
	s.topics = append([]Topic(nil), topics...)
	s.topicsMu.Unlock()
}

// Start joins the multicast group and launches the send and receive
// goroutines.
func (s *Service) Start() error {
	conn, err := transport.ListenMulticastUDP(s.cfg.Interface, s.cfg.MulticastAddress, s.cfg.MulticastPort)
	if err != nil {
		return err
	}
	s.conn = conn
	s.groupAddr = &net.UDPAddr{IP: net.ParseIP(s.cfg.MulticastAddress), Port: s.cfg.MulticastPort}

	s.wg.Add(2)
	go s.sendLoop()
	go s.receiveLoop()
	return nil
}

// Stop multicasts a single participant-leave (§4.5), then shuts down the
// send/receive goroutines and closes the socket.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.sendLeave()
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
	s.wg.Wait()
}

func (s *Service) sendLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.AnnounceInterval)
	defer ticker.Stop()
	s.sendAnnounce()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sendAnnounce()
		}
	}
}

func (s *Service) sendAnnounce() {
	s.topicsMu.Lock()
	topics := append([]Topic(nil), s.topics...)
	s.topicsMu.Unlock()

	now := time.Now()
	msg := Message{
		Header: Header{
			Kind:          KindParticipantAnnounce,
			Domain:        s.cfg.Domain,
			ParticipantID: s.participantID,
			TimestampSec:  uint32(now.Unix()),
			TimestampNsec: uint32(now.Nanosecond()),
		},
		Participant: Participant{
			Name:            s.cfg.ParticipantName,
			ProtocolVersion: s.cfg.ProtocolVersion,
			VendorID:        s.cfg.VendorID,
			ProductID:       s.cfg.ProductID,
			HostID:          s.cfg.HostID,
			ApplicationID:   s.cfg.ApplicationID,
			InstanceID:      s.instanceID,
			LeaseSec:        uint32(s.cfg.LeaseDuration / time.Second),
		},
		Topics: topics,
	}
	buf, err := Encode(msg)
	if err != nil {
		s.cfg.Logger.Warn("spdp: encode announce failed", "error", err)
		return
	}
	if _, err := s.conn.WriteToUDP(buf, s.groupAddr); err != nil {
		s.cfg.Logger.Warn("spdp: multicast announce failed", "error", err)
	}
}

func (s *Service) sendLeave() {
	now := time.Now()
	msg := Message{
		Header: Header{
			Kind:          KindParticipantLeave,
			Domain:        s.cfg.Domain,
			ParticipantID: s.participantID,
			TimestampSec:  uint32(now.Unix()),
			TimestampNsec: uint32(now.Nanosecond()),
		},
		Participant: Participant{
			ProtocolVersion: s.cfg.ProtocolVersion,
			HostID:          s.cfg.HostID,
			ApplicationID:   s.cfg.ApplicationID,
			InstanceID:      s.instanceID,
		},
	}
	buf, err := Encode(msg)
	if err != nil {
		return
	}
	_, _ = s.conn.WriteToUDP(buf, s.groupAddr)
}

func (s *Service) receiveLoop() {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(receiveTimeout))
		n, senderAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.pruneCycle()
			continue
		}

		msg, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		if msg.Header.Domain != s.cfg.Domain || msg.Header.ParticipantID == s.participantID {
			continue
		}
		s.handleMessage(msg, senderAddr.String())
		s.pruneCycle()
	}
}

func (s *Service) handleMessage(msg Message, senderAddr string) {
	identity := participantIdentity{
		protocolVersion: msg.Participant.ProtocolVersion,
		hostID:          msg.Participant.HostID,
		applicationID:   msg.Participant.ApplicationID,
		instanceID:      msg.Participant.InstanceID,
	}
	now := time.Now()

	switch msg.Header.Kind {
	case KindParticipantAnnounce:
		lease := time.Duration(msg.Participant.LeaseSec) * time.Second
		if lease == 0 {
			lease = s.cfg.LeaseDuration
		}
		entry, isNew := s.tables.upsertParticipant(identity, msg.Participant.Name, senderAddr, lease, now)
		if s.onParticipant != nil {
			s.onParticipant(entry, isNew)
		}
		for _, t := range msg.Topics {
			te, tNew := s.tables.upsertTopic(t.Name, t.TypeName, msg.Header.ParticipantID, now)
			if s.onTopic != nil {
				s.onTopic(te, tNew)
			}
		}
	case KindParticipantLeave:
		s.tables.removeParticipant(identity)
	case KindTopicAnnounce:
		entry, isNew := s.tables.upsertTopic(msg.Topic.Name, msg.Topic.TypeName, msg.Header.ParticipantID, now)
		if s.onTopic != nil {
			s.onTopic(entry, isNew)
		}
	case KindTopicRemove:
		s.tables.removeTopic(msg.Topic.Name, msg.Header.ParticipantID)
	}
}

func (s *Service) pruneCycle() {
	s.tables.pruneExpired(time.Now(), s.cfg.LeaseDuration)
}
