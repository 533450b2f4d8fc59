// Package transport opens the plain TCP/UNIX/UDP sockets lwbus runs over,
// applying the socket options spec.md §4.2 requires (SO_REUSEADDR,
// TCP_NODELAY). It is the only layer in this module allowed to reach for
// raw socket options.
package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	lwbus "github.com/lwedge/lwbus"
)

// Listen opens a stream listener for addr, setting SO_REUSEADDR (and, for
// UNIX sockets, unlinking any stale path first per §4.2).
func Listen(addr lwbus.Address) (net.Listener, error) {
	if addr.Kind() == lwbus.AddrUnix {
		_ = removeStaleSocket(addr.Path())
	}
	cfg := net.ListenConfig{Control: controlReuseAddr}
	ln, err := cfg.Listen(context.Background(), addr.Network(), addr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return ln, nil
}

// Dial connects to addr and, for TCP, sets TCP_NODELAY per §4.3.
func Dial(addr lwbus.Address) (net.Conn, error) {
	conn, err := net.Dial(addr.Network(), addr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// SetAcceptedNoDelay sets TCP_NODELAY on a socket returned by a
// Listener's Accept, per §4.2 ("set TCP_NODELAY on the accepted socket").
func SetAcceptedNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}

// ListenMulticastUDP joins the multicast group at groupAddr:port on the
// given interface name (empty for the default), used by SPDP (§4.5).
func ListenMulticastUDP(ifaceName, groupAddr string, port int) (*net.UDPConn, error) {
	var iface *net.Interface
	if ifaceName != "" {
		found, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("transport: interface %s: %w", ifaceName, err)
		}
		iface = found
	}
	group := &net.UDPAddr{IP: net.ParseIP(groupAddr), Port: port}
	conn, err := net.ListenMulticastUDP("udp4", iface, group)
	if err != nil {
		return nil, fmt.Errorf("transport: multicast listen %s:%d: %w", groupAddr, port, err)
	}
	return conn, nil
}

// ListenBroadcastUDP opens a UDP socket bound to ":port" suitable for
// sending/receiving broadcast datagrams, used by the legacy discovery
// thread (§4.4).
func ListenBroadcastUDP(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("transport: broadcast listen :%d: %w", port, err)
	}
	return conn, nil
}

func removeStaleSocket(path string) error {
	// Only remove it if nothing is listening there; net.Listen on a
	// live socket path fails on its own and we don't want to race a
	// legitimate peer, but a crash-left-behind path must not block bind.
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return nil
	}
	return os.Remove(path)
}

func controlReuseAddr(network, address string, c syscall.RawConn) error {
	if network == "unix" {
		return nil
	}
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
