package mesh

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	lwbus "github.com/lwedge/lwbus"
)

// TestClientRPCTimeout exercises the pending-RPC timeout sweep (§4.3):
// against a server that completes the handshake but never answers an
// RPC, the callback must fire with StatusNoResponding once the pending
// entry's budget expires.
func TestClientRPCTimeout(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		recv := lwbus.NewReceiver()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				recv.Feed(buf[:n], func(f lwbus.Frame) bool {
					if f.Header.Type == lwbus.MsgServinfo {
						reply := lwbus.NewFrame(lwbus.MsgServinfo, lwbus.StatusSuccess, f.Header.Seqno, "", nil)
						if b, err := lwbus.Encode(reply); err == nil {
							conn.Write(b)
						}
					}
					// RPC frames are silently dropped, forcing a timeout.
					return true
				})
			}
			if err != nil {
				return
			}
		}
	}()

	addr, err := lwbus.ParseAddress(ln.Addr().String())
	require.NoError(t, err)

	client := NewClient(ClientOptions{TimerInterval: 5 * time.Millisecond})
	require.NoError(t, client.Connect(addr))
	defer func() { client.Disconnect(); client.Close() }()

	// Shrink the timeout budget directly so the test doesn't wait the full
	// default 60s window.
	done := make(chan lwbus.Status, 1)
	require.NoError(t, client.RPC("/never/answers", nil, func(status lwbus.Status, payload []byte) {
		done <- status
	}))

	client.mu.Lock()
	client.pending.each(func(e *pendingEntry) { e.aliveMs = 10 })
	client.mu.Unlock()

	select {
	case status := <-done:
		require.Equal(t, lwbus.StatusNoResponding, status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for RPC timeout callback")
	}
}

// TestClientDisconnectAbortsPending verifies that tearing down the
// connection fires every outstanding callback with StatusNoResponding
// exactly once.
func TestClientDisconnectAbortsPending(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
		recv := lwbus.NewReceiver()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				recv.Feed(buf[:n], func(f lwbus.Frame) bool {
					if f.Header.Type == lwbus.MsgServinfo {
						reply := lwbus.NewFrame(lwbus.MsgServinfo, lwbus.StatusSuccess, f.Header.Seqno, "", nil)
						if b, err := lwbus.Encode(reply); err == nil {
							conn.Write(b)
						}
					}
					return true
				})
			}
			if err != nil {
				return
			}
		}
	}()

	addr, err := lwbus.ParseAddress(ln.Addr().String())
	require.NoError(t, err)

	client := NewClient(ClientOptions{})
	require.NoError(t, client.Connect(addr))
	defer client.Close()

	done := make(chan lwbus.Status, 1)
	require.NoError(t, client.RPC("/whatever", nil, func(status lwbus.Status, payload []byte) {
		done <- status
	}))

	conn := <-accepted
	conn.Close()

	select {
	case status := <-done:
		require.Equal(t, lwbus.StatusNoResponding, status)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect callback")
	}
	require.False(t, client.Connected())
}
