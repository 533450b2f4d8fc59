package mesh

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/transport"
)

const connectSendTimeout = 500 * time.Millisecond

// MessageCallback receives every publish matching the client's active
// subscription; DatagramCallback receives every datagram (§4.3).
type MessageCallback func(url string, payload []byte)
type DatagramClientCallback func(url string, payload []byte)

// ClientOptions configures a Client at construction time.
type ClientOptions struct {
	Logger        *slog.Logger
	OnMessage     MessageCallback
	OnDatagram    DatagramClientCallback
	TimerInterval time.Duration // 0 uses DefaultClientTimerInterval; ignored if Timers is set

	// Timers lets several Clients (and Servers) share one sweep goroutine
	// instead of each starting its own. Leave nil and the Client starts
	// and owns a private TimerService at TimerInterval.
	Timers *TimerService
}

// Client implements the messaging client state machine of §4.3: connect,
// allocate sequence numbers for tracked requests out of a fast-pool-plus-
// overflow pending table, and complete them on reply or timeout.
type Client struct {
	logger     *slog.Logger
	onMessage  MessageCallback
	onDatagram DatagramClientCallback

	timers     *TimerService
	ownsTimers bool
	stopTimer  func()

	mu        sync.Mutex
	conn      net.Conn
	recv      *lwbus.Receiver
	connected bool
	pending   *pendingTable
	seqHigh   uint8

	wg   sync.WaitGroup
	done chan struct{}
}

// NewClient constructs a disconnected Client; call Connect to dial.
func NewClient(opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[MESH]")

	c := &Client{
		logger:     logger,
		onMessage:  opts.OnMessage,
		onDatagram: opts.OnDatagram,
		pending:    newPendingTable(),
	}
	if opts.Timers != nil {
		c.timers = opts.Timers
	} else {
		interval := DefaultClientTimerInterval
		if opts.TimerInterval != 0 {
			interval = opts.TimerInterval
		}
		c.timers = NewTimerService(interval)
		c.ownsTimers = true
	}
	c.stopTimer = c.timers.Register(c.sweepTimeouts)
	return c
}

// Connect dials addr, sends a servinfo frame, and waits for its reply
// before returning (§4.3). On any failure the new connection is closed and
// the error returned; entries already in the pending table are left as
// they are.
func (c *Client) Connect(addr lwbus.Address) error {
	conn, err := transport.Dial(addr)
	if err != nil {
		return err
	}
	if tc, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = tc.SetWriteDeadline(time.Now().Add(connectSendTimeout))
	}

	seqno := c.nextBareSeqno()
	frame := lwbus.NewFrame(lwbus.MsgServinfo, lwbus.StatusSuccess, seqno, "", nil)
	buf, err := lwbus.Encode(frame)
	if err != nil {
		conn.Close()
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		conn.Close()
		return fmt.Errorf("mesh: servinfo send: %w", err)
	}
	if tc, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = tc.SetWriteDeadline(time.Time{})
	}

	reply, err := readOneFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("mesh: servinfo reply: %w", err)
	}
	if reply.Header.Type != lwbus.MsgServinfo || reply.Header.Status != lwbus.StatusSuccess {
		conn.Close()
		return fmt.Errorf("mesh: servinfo handshake rejected, status=%d", reply.Header.Status)
	}

	c.mu.Lock()
	c.conn = conn
	c.recv = lwbus.NewReceiver()
	c.connected = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// readOneFrame blocks until a single complete frame has arrived on conn,
// used only for the synchronous servinfo handshake.
func readOneFrame(conn net.Conn) (lwbus.Frame, error) {
	recv := lwbus.NewReceiver()
	buf := make([]byte, 4096)
	var result lwbus.Frame
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			got := false
			_, ferr := recv.Feed(buf[:n], func(f lwbus.Frame) bool {
				result = lwbus.Frame{
					Header:  f.Header,
					URL:     f.URL,
					Payload: append([]byte(nil), f.Payload...),
				}
				got = true
				return false
			})
			if ferr != nil {
				return lwbus.Frame{}, ferr
			}
			if got {
				return result, nil
			}
		}
		if err != nil {
			return lwbus.Frame{}, err
		}
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	buf := make([]byte, 65536)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			recv := c.recv
			c.mu.Unlock()
			_, ferr := recv.Feed(buf[:n], c.handleFrame)
			if ferr != nil {
				c.abort()
				return
			}
		}
		if err != nil {
			c.abort()
			return
		}
	}
}

func (c *Client) handleFrame(frame lwbus.Frame) bool {
	switch frame.Header.Type {
	case lwbus.MsgPublish:
		if c.onMessage != nil {
			c.onMessage(frame.URL, append([]byte(nil), frame.Payload...))
		}
		return true
	case lwbus.MsgDatagram:
		if c.onDatagram != nil {
			c.onDatagram(frame.URL, append([]byte(nil), frame.Payload...))
		}
		return true
	}

	c.mu.Lock()
	entry := c.pending.lookup(frame.Header.Seqno)
	if entry != nil {
		c.pending.release(frame.Header.Seqno)
	}
	c.mu.Unlock()

	if entry != nil && entry.callback != nil {
		entry.callback(frame.Header.Status, append([]byte(nil), frame.Payload...))
	}
	return true
}

// nextBareSeqno allocates a sequence number with no tracked pending slot
// (used for fire-and-forget RPCs and the initial servinfo handshake):
// high byte from an incrementing counter, low byte 0 (§4.3).
func (c *Client) nextBareSeqno() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seqHigh++
	return uint16(c.seqHigh) << 8
}

// allocateSeqno walks the low-byte counter looking for a pending slot
// not currently occupied, matching §4.3's sequence-number allocation
// rule. ok is false if all 256 slots are occupied.
func (c *Client) allocateSeqno(kind pendingKind, cb Callback, timeoutMs int32) (seqno uint16, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seqHigh++
	start := int(c.seqHigh)
	idx := c.pending.findFreeSlot(start)
	if idx < 0 {
		return 0, false
	}
	entry := c.pending.acquire(idx)
	seqno = (uint16(c.seqHigh) << 8) | uint16(idx)
	entry.seqno = seqno
	entry.kind = kind
	entry.aliveMs = timeoutMs
	entry.callback = cb
	return seqno, true
}

// defaultRPCTimeout matches the original's LWDISTCOMM_CLIENT_DEF_TIMEOUT;
// RPCWithTimeout overrides it per call.
const defaultRPCTimeout = 60 * time.Second

// RPC sends an RPC frame to url with payload, invoking cb with the
// reply's status and payload, or StatusNoResponding after defaultRPCTimeout
// or on disconnect. If cb is nil, no pending slot is reserved — the call
// is fire-and-forget (§4.3).
func (c *Client) RPC(url string, payload []byte, cb Callback) error {
	return c.RPCWithTimeout(url, payload, defaultRPCTimeout, cb)
}

// RPCWithTimeout is RPC with a caller-chosen timeout in place of
// defaultRPCTimeout, for calls the caller knows run long (or must fail
// fast).
func (c *Client) RPCWithTimeout(url string, payload []byte, timeout time.Duration, cb Callback) error {
	seqno, err := c.allocateOrBare(pendingRPC, cb, timeout)
	if err != nil {
		return err
	}
	return c.sendTracked(lwbus.MsgRPC, seqno, url, payload, cb)
}

// Subscribe sends a subscribe frame for url. cb (if non-nil) is called
// once with the subscribe acknowledgement; subsequent matching publishes
// are delivered through the client's MessageCallback, not cb (§4.3).
func (c *Client) Subscribe(url string, cb Callback) error {
	seqno, err := c.allocateOrBare(pendingSubscribe, cb, defaultRPCTimeout)
	if err != nil {
		return err
	}
	return c.sendTracked(lwbus.MsgSubscribe, seqno, url, nil, cb)
}

// Unsubscribe sends an unsubscribe frame for url.
func (c *Client) Unsubscribe(url string, cb Callback) error {
	seqno, err := c.allocateOrBare(pendingUnsubscribe, cb, defaultRPCTimeout)
	if err != nil {
		return err
	}
	return c.sendTracked(lwbus.MsgUnsubscribe, seqno, url, nil, cb)
}

// allocateOrBare mirrors §4.3's RPC rule for every tracked message kind:
// with a callback, reserve a pending slot; without one, just mint a bare
// sequence number and track nothing.
func (c *Client) allocateOrBare(kind pendingKind, cb Callback, timeout time.Duration) (uint16, error) {
	if cb == nil {
		return c.nextBareSeqno(), nil
	}
	seqno, ok := c.allocateSeqno(kind, cb, int32(timeout.Milliseconds()))
	if !ok {
		return 0, fmt.Errorf("mesh: too many in-flight requests")
	}
	return seqno, nil
}

// Datagram sends a one-way frame to url; there is no reply (§4.2).
func (c *Client) Datagram(url string, payload []byte) error {
	frame := lwbus.NewFrame(lwbus.MsgDatagram, lwbus.StatusSuccess, c.nextBareSeqno(), url, payload)
	return c.writeFrame(frame)
}

func (c *Client) sendTracked(typ lwbus.MsgType, seqno uint16, url string, payload []byte, cb Callback) error {
	frame := lwbus.NewFrame(typ, lwbus.StatusSuccess, seqno, url, payload)
	if err := c.writeFrame(frame); err != nil {
		if cb != nil {
			c.mu.Lock()
			c.pending.release(seqno)
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

func (c *Client) writeFrame(frame lwbus.Frame) error {
	buf, err := lwbus.Encode(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return fmt.Errorf("mesh: not connected")
	}
	_, err = conn.Write(buf)
	return err
}

// sweepTimeouts runs on every tick of the client's TimerService
// (DefaultClientTimerInterval unless configured otherwise), decrementing
// every pending entry's alive budget by the tick interval and firing
// expired ones with StatusNoResponding (§4.3).
func (c *Client) sweepTimeouts() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	var expired []*pendingEntry
	c.pending.each(func(e *pendingEntry) {
		e.aliveMs -= int32(c.timers.interval.Milliseconds())
		if e.aliveMs <= 0 {
			expired = append(expired, e)
		}
	})
	for _, e := range expired {
		c.pending.release(e.seqno)
	}
	c.mu.Unlock()

	for _, e := range expired {
		if e.callback != nil {
			e.callback(lwbus.StatusNoResponding, nil)
		}
	}
}

// abort fires every outstanding pending callback with StatusNoResponding
// exactly once and marks the client disconnected (§4.3's disconnect
// semantics), then closes the socket.
func (c *Client) abort() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	var entries []*pendingEntry
	c.pending.each(func(e *pendingEntry) { entries = append(entries, e) })
	for _, e := range entries {
		c.pending.release(e.seqno)
	}
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	for _, e := range entries {
		if e.callback != nil {
			e.callback(lwbus.StatusNoResponding, nil)
		}
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		close(done)
	}
}

// Disconnect closes the connection and aborts all pending callbacks, if
// any are outstanding.
func (c *Client) Disconnect() {
	c.abort()
	c.wg.Wait()
}

// Close stops the client's timer-service registration. Call after
// Disconnect when the Client itself is being discarded.
func (c *Client) Close() {
	c.stopTimer()
	if c.ownsTimers {
		c.timers.Stop()
	}
}

// Connected reports whether the client currently has a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
