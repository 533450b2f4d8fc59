package transport

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	lwbus "github.com/lwedge/lwbus"
)

func TestListenDialTCP(t *testing.T) {
	addr, err := lwbus.ParseAddress("127.0.0.1:0")
	require.NoError(t, err)
	ln, err := Listen(addr)
	require.NoError(t, err)
	defer ln.Close()

	dialAddr, err := lwbus.ParseAddress(ln.Addr().String())
	require.NoError(t, err)

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			SetAcceptedNoDelay(conn)
			conn.Close()
		}
		accepted <- err
	}()

	conn, err := Dial(dialAddr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, <-accepted)
}

func TestListenUnixRemovesStalePath(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "lwbus.sock")
	addr := lwbus.UnixAddress(sock)

	ln1, err := Listen(addr)
	require.NoError(t, err)
	ln1.Close()

	// ln1.Close() already unlinks the path on most platforms, but Listen
	// must tolerate a stale path left behind by a crashed peer either way.
	ln2, err := Listen(addr)
	require.NoError(t, err)
	defer ln2.Close()
}
