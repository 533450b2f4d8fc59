// Package broadcast implements the legacy, lower-fidelity UDP discovery
// thread of spec.md §4.4: a server periodically broadcasts its presence,
// a client listens and auto-connects to the first server it sees. It is
// used only by the driver-SDK's "auto-discover a hub" shortcut, never as
// a replacement for the SPDP discovery plane.
package broadcast

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lwedge/lwbus/pkg/transport"
)

// DefaultPort is the default legacy discovery port (§4.4).
const DefaultPort = 7400

// DefaultAnnounceInterval matches SPDP's own announce cadence; the
// source does not specify a distinct one for the legacy thread.
const DefaultAnnounceInterval = 3 * time.Second

const (
	recordKindAnnounce uint8 = 0
	recordKindLeave    uint8 = 1

	nameLen  = 64
	topicLen = 64
	// recordLen: kind:u8, name[64], port:u16, topic[64]
	recordLen = 1 + nameLen + 2 + topicLen
)

// Record is one SERVER_ANNOUNCE/SERVER_LEAVE datagram. Host is not part
// of the wire format — the client fills it in from the sender address
// of the UDP packet it arrived in, since that is the only place a
// broadcast record carries the sending host's actual address.
type Record struct {
	Leave bool
	Name  string
	Host  string
	Port  uint16
	Topic string
}

func encodeRecord(r Record) []byte {
	buf := make([]byte, recordLen)
	if r.Leave {
		buf[0] = recordKindLeave
	} else {
		buf[0] = recordKindAnnounce
	}
	putFixed(buf[1:1+nameLen], r.Name)
	binary.BigEndian.PutUint16(buf[1+nameLen:3+nameLen], r.Port)
	putFixed(buf[3+nameLen:3+nameLen+topicLen], r.Topic)
	return buf
}

func decodeRecord(buf []byte) (Record, error) {
	if len(buf) < recordLen {
		return Record{}, fmt.Errorf("broadcast: short record (%d bytes)", len(buf))
	}
	return Record{
		Leave: buf[0] == recordKindLeave,
		Name:  getFixed(buf[1 : 1+nameLen]),
		Port:  binary.BigEndian.Uint16(buf[1+nameLen : 3+nameLen]),
		Topic: getFixed(buf[3+nameLen : 3+nameLen+topicLen]),
	}, nil
}

func putFixed(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getFixed(src []byte) string {
	n := 0
	for n < len(src) && src[n] != 0 {
		n++
	}
	return string(src[:n])
}

// Server periodically broadcasts a Record carrying its real listen port
// (§9's open-question resolution: "treat the real port as authoritative",
// not the source's hard-coded 5555) and broadcasts a leave record once on
// Stop.
type Server struct {
	conn     *net.UDPConn
	addr     *net.UDPAddr
	record   Record
	interval time.Duration
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewServer constructs a broadcast Server. listenPort is this server's
// real messaging listen port, embedded verbatim in the announcement.
func NewServer(name string, listenPort uint16, topic string, port int, interval time.Duration, logger *slog.Logger) (*Server, error) {
	if port == 0 {
		port = DefaultPort
	}
	if interval == 0 {
		interval = DefaultAnnounceInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := transport.ListenBroadcastUDP(port)
	if err != nil {
		return nil, err
	}
	return &Server{
		conn:     conn,
		addr:     &net.UDPAddr{IP: net.IPv4bcast, Port: port},
		record:   Record{Name: name, Port: listenPort, Topic: topic},
		interval: interval,
		logger:   logger.With("service", "[DISCOVERY]"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins broadcasting SERVER_ANNOUNCE on a background goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Server) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.broadcast(s.record)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.broadcast(s.record)
		}
	}
}

func (s *Server) broadcast(r Record) {
	if _, err := s.conn.WriteToUDP(encodeRecord(r), s.addr); err != nil {
		s.logger.Warn("broadcast send failed", "error", err)
	}
}

// Stop broadcasts a single SERVER_LEAVE record, then stops the
// announcement goroutine and closes the socket.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		leave := s.record
		leave.Leave = true
		s.broadcast(leave)
		_ = s.conn.Close()
	})
	s.wg.Wait()
}

// ServerSeenCallback fires whenever the client's cached server record is
// created or updated by a fresh announcement.
type ServerSeenCallback func(r Record)

// Client listens for SERVER_ANNOUNCE/SERVER_LEAVE records and keeps a
// single cached server record, invoking onSeen for every announcement it
// receives
// (§4.4: "updates its cached server record and, if not yet connected,
// auto-connects" — the auto-connect action itself is the caller's
// responsibility via onSeen).
type Client struct {
	conn   *net.UDPConn
	onSeen ServerSeenCallback
	logger *slog.Logger

	mu      sync.Mutex
	current *Record

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewClient constructs a broadcast Client listening on port (0 = DefaultPort).
func NewClient(port int, onSeen ServerSeenCallback, logger *slog.Logger) (*Client, error) {
	if port == 0 {
		port = DefaultPort
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := transport.ListenBroadcastUDP(port)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:   conn,
		onSeen: onSeen,
		logger: logger.With("service", "[DISCOVERY]"),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins the receive loop on a background goroutine.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.loop()
}

func (c *Client) loop() {
	defer c.wg.Done()
	buf := make([]byte, 512)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, senderAddr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		record, err := decodeRecord(buf[:n])
		if err != nil {
			continue
		}
		record.Host = senderAddr.IP.String()

		c.mu.Lock()
		if record.Leave {
			if c.current != nil && c.current.Name == record.Name {
				c.current = nil
			}
			c.mu.Unlock()
			continue
		}
		c.current = &record
		c.mu.Unlock()
		if c.onSeen != nil {
			c.onSeen(record)
		}
	}
}

// Current returns the currently cached server record, if any.
func (c *Client) Current() (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Record{}, false
	}
	return *c.current, true
}

// Stop halts the receive loop and closes the socket.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		_ = c.conn.Close()
	})
	c.wg.Wait()
}
