// Package mesh implements the messaging server and client of the lwbus
// core: URL-routed request/reply RPC plus publish/subscribe fan-out, over
// the framing in the root lwbus package (§4.2, §4.3).
package mesh

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/transport"
)

const listenBacklog = 32 // informational; Go's net package manages its own accept backlog

// ConnectCallback fires once a client completes the servinfo handshake
// (connected=true) and again when that client is destroyed
// (connected=false) — but only if the first call actually fired (§4.2).
type ConnectCallback func(clientID uint32, connected bool)

// DatagramCallback delivers a one-way "datagram" frame's payload.
type DatagramCallback func(clientID uint32, url string, payload []byte)

// AuthCallback validates a username/password pair from an "auth" frame
// and reports whether to accept it. The source treats this message as an
// extension point; lwbus extends it by invoking an optional
// pkg/security.Verifier when one is configured (§0 Domain Stack).
type AuthCallback func(username, password string) bool

type subscription struct {
	url string
}

// serverClient is one accepted connection, from accept() up to handshake
// or destruction.
type serverClient struct {
	id     uint32
	conn   net.Conn
	recv   *lwbus.Receiver
	active bool

	mu            sync.Mutex
	subscriptions []subscription
	onMessage     func(url string, payload []byte)

	handshakeMu      sync.Mutex
	handshakeAliveMs int32
	inHandshakeList  bool

	sendMu sync.Mutex
}

func (c *serverClient) send(f lwbus.Frame) error {
	buf, err := lwbus.Encode(f)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err = c.conn.Write(buf)
	return err
}

// ServerOptions configures a Server at construction time.
type ServerOptions struct {
	Logger        *slog.Logger
	OnConnect     ConnectCallback
	OnDatagram    DatagramCallback
	OnAuth        AuthCallback
	HandshakeMs   int32 // default lwbus/pkg/mesh.HandshakeTimeout if zero
	TimerInterval int64 // nanoseconds; 0 uses DefaultServerTimerInterval; ignored if Timers is set

	// Timers lets several Servers (and Clients) share one sweep goroutine
	// instead of each starting its own. Leave nil and the Server starts
	// and owns a private TimerService at TimerInterval.
	Timers *TimerService
}

// Server accepts connections, runs the handshake timer, dispatches RPCs
// through a Router, and fans publishes out to matching subscribers
// (§4.2). Unlike the source's host-driven get_fds/process_input
// contract, each accepted connection here runs its own read goroutine —
// the idiomatic Go equivalent of "usable both in a blocking loop and
// inside a host's own multiplexer": callers simply don't own a loop at
// all.
type Server struct {
	logger    *slog.Logger
	router    *Router
	timers     *TimerService
	ownsTimers bool
	stopTimer  func()

	onConnect  ConnectCallback
	onDatagram DatagramCallback
	onAuth     AuthCallback

	handshakeMs int32

	mu       sync.Mutex
	clients  map[uint32]*serverClient
	nextID   uint32
	listener net.Listener
	wg       sync.WaitGroup
	closed   bool
}

// NewServer constructs a Server; call Start to begin accepting.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[MESH]")

	handshakeMs := opts.HandshakeMs
	if handshakeMs == 0 {
		handshakeMs = int32(HandshakeTimeout.Milliseconds())
	}
	s := &Server{
		logger:      logger,
		router:      NewRouter(),
		onConnect:   opts.OnConnect,
		onDatagram:  opts.OnDatagram,
		onAuth:      opts.OnAuth,
		handshakeMs: handshakeMs,
		clients:     make(map[uint32]*serverClient),
	}
	if opts.Timers != nil {
		s.timers = opts.Timers
	} else {
		interval := DefaultServerTimerInterval
		if opts.TimerInterval != 0 {
			interval = time.Duration(opts.TimerInterval)
		}
		s.timers = NewTimerService(interval)
		s.ownsTimers = true
	}
	s.stopTimer = s.timers.Register(s.sweepHandshakes)
	return s
}

// Router exposes the RPC routing table for handler registration.
func (s *Server) Router() *Router { return s.router }

// Start opens addr (TCP/UNIX per its kind) with SO_REUSEADDR and begins
// accepting connections in a background goroutine (§4.2).
func (s *Server) Start(addr lwbus.Address) error {
	ln, err := transport.Listen(addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			return
		}
		transport.SetAcceptedNoDelay(conn)
		s.registerClient(conn)
	}
}

func (s *Server) registerClient(conn net.Conn) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	c := &serverClient{
		id:               id,
		conn:             conn,
		recv:             lwbus.NewReceiver(),
		handshakeAliveMs: s.handshakeMs,
		inHandshakeList:  true,
	}
	s.clients[id] = c
	s.mu.Unlock()

	s.wg.Add(1)
	go s.clientReadLoop(c)
}

func (s *Server) clientReadLoop(c *serverClient) {
	defer s.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			cont, ferr := c.recv.Feed(buf[:n], func(frame lwbus.Frame) bool {
				return s.handleFrame(c, frame)
			})
			if ferr != nil || !cont {
				s.destroyClient(c)
				return
			}
		}
		if err != nil {
			// recv returning an error (0-read EOF or any other failure)
			// always destroys the client per §4.2.
			s.destroyClient(c)
			return
		}
	}
}

func (s *Server) handleFrame(c *serverClient, frame lwbus.Frame) bool {
	switch frame.Header.Type {
	case lwbus.MsgServinfo:
		s.handleServinfo(c, frame)
	case lwbus.MsgRPC:
		s.handleRPC(c, frame)
	case lwbus.MsgSubscribe:
		s.handleSubscribe(c, frame)
	case lwbus.MsgUnsubscribe:
		s.handleUnsubscribe(c, frame)
	case lwbus.MsgDatagram:
		if s.onDatagram != nil {
			s.onDatagram(c.id, frame.URL, append([]byte(nil), frame.Payload...))
		}
	case lwbus.MsgAuth:
		s.handleAuth(c, frame)
	case lwbus.MsgPingEcho:
		_ = c.send(lwbus.NewFrame(lwbus.MsgPingEcho, lwbus.StatusSuccess, frame.Header.Seqno, "", nil))
	case lwbus.MsgNoop, lwbus.MsgReplyFlag:
		// ignored per §4.2
	}
	return true
}

func (s *Server) handleServinfo(c *serverClient, frame lwbus.Frame) {
	payload := make([]byte, 4)
	payload[0] = byte(c.id >> 24)
	payload[1] = byte(c.id >> 16)
	payload[2] = byte(c.id >> 8)
	payload[3] = byte(c.id)

	if err := c.send(lwbus.NewFrame(lwbus.MsgServinfo, lwbus.StatusSuccess, frame.Header.Seqno, "", payload)); err != nil {
		s.destroyClient(c)
		return
	}

	c.handshakeMu.Lock()
	c.inHandshakeList = false
	c.handshakeMu.Unlock()
	c.active = true

	if s.onConnect != nil {
		s.onConnect(c.id, true)
	}
}

func (s *Server) handleRPC(c *serverClient, frame lwbus.Frame) {
	handler, ok := s.router.Lookup(frame.URL)
	var reply []byte
	status := lwbus.StatusInvalidURL
	if ok {
		reply, status = handler(frame.URL, frame.Payload)
	}
	_ = c.send(lwbus.NewFrame(lwbus.MsgRPC, status, frame.Header.Seqno, "", reply))
}

func (s *Server) handleSubscribe(c *serverClient, frame lwbus.Frame) {
	c.mu.Lock()
	found := false
	for _, sub := range c.subscriptions {
		if sub.url == frame.URL {
			found = true
			break
		}
	}
	if !found {
		c.subscriptions = append(c.subscriptions, subscription{url: frame.URL})
	}
	c.mu.Unlock()
	_ = c.send(lwbus.NewFrame(lwbus.MsgSubscribe, lwbus.StatusSuccess, frame.Header.Seqno, "", nil))
}

func (s *Server) handleUnsubscribe(c *serverClient, frame lwbus.Frame) {
	c.mu.Lock()
	for i, sub := range c.subscriptions {
		if sub.url == frame.URL {
			c.subscriptions = append(c.subscriptions[:i], c.subscriptions[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	_ = c.send(lwbus.NewFrame(lwbus.MsgUnsubscribe, lwbus.StatusSuccess, frame.Header.Seqno, "", nil))
}

func (s *Server) handleAuth(c *serverClient, frame lwbus.Frame) {
	ok := true
	if s.onAuth != nil {
		parts := splitNUL(frame.Payload)
		username, password := parts[0], parts[1]
		ok = s.onAuth(username, password)
	}
	status := lwbus.StatusSuccess
	if !ok {
		status = lwbus.StatusAuthFailed
	}
	_ = c.send(lwbus.NewFrame(lwbus.MsgAuth, status, frame.Header.Seqno, "", nil))
}

// splitNUL splits a "username\x00password" auth payload, tolerating a
// missing separator by treating the whole payload as the username.
func splitNUL(payload []byte) [2]string {
	for i, b := range payload {
		if b == 0 {
			return [2]string{string(payload[:i]), string(payload[i+1:])}
		}
	}
	return [2]string{string(payload), ""}
}

// Publish fans frame out to every active client whose subscription list
// matches url (§4.2). A send failure destroys that client but does not
// stop the fan-out.
func (s *Server) Publish(url string, payload []byte) {
	s.mu.Lock()
	targets := make([]*serverClient, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	frame := lwbus.NewFrame(lwbus.MsgPublish, lwbus.StatusSuccess, 0, url, payload)
	buf, err := lwbus.Encode(frame)
	if err != nil {
		s.logger.Error("publish encode failed", "url", url, "error", err)
		return
	}

	for _, c := range targets {
		if !c.active {
			continue
		}
		c.mu.Lock()
		matched := false
		for _, sub := range c.subscriptions {
			if MatchesSubscription(sub.url, url) {
				matched = true
				break
			}
		}
		c.mu.Unlock()
		if !matched {
			continue
		}
		c.sendMu.Lock()
		_, werr := c.conn.Write(buf)
		c.sendMu.Unlock()
		if werr != nil {
			s.destroyClient(c)
		}
	}
}

func (s *Server) destroyClient(c *serverClient) {
	s.mu.Lock()
	_, present := s.clients[c.id]
	if present {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()
	if !present {
		return
	}
	_ = c.conn.Close()
	if c.active && s.onConnect != nil {
		s.onConnect(c.id, false)
	}
}

// sweepHandshakes runs on every tick of the server's TimerService
// (DefaultServerTimerInterval unless configured or shared otherwise),
// decrementing each not-yet-handshaken client's budget by the tick
// interval and destroying it on expiry (§4.2's handshake-timer thread).
func (s *Server) sweepHandshakes() {
	s.mu.Lock()
	clients := make([]*serverClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.handshakeMu.Lock()
		if !c.inHandshakeList {
			c.handshakeMu.Unlock()
			continue
		}
		c.handshakeAliveMs -= int32(s.timers.interval.Milliseconds())
		expired := c.handshakeAliveMs <= 0
		c.handshakeMu.Unlock()
		if expired {
			s.logger.Debug("handshake timeout", "client", c.id)
			s.destroyClient(c)
		}
	}
}

// Stop closes the listener, stops the handshake timer and disconnects
// every client, then waits for all server goroutines to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	ln := s.listener
	clients := make([]*serverClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.stopTimer()
	if s.ownsTimers {
		s.timers.Stop()
	}
	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range clients {
		_ = c.conn.Close()
	}
	s.wg.Wait()
}
