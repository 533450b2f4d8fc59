package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/mesh"
)

type recordingHandlers struct {
	NoopHandlers
	connStates []bool
}

func (h *recordingHandlers) OnDeviceConnStateChanged(dev *Device, connected bool) {
	h.connStates = append(h.connStates, connected)
}

func mustAddr(t *testing.T, s string) lwbus.Address {
	t.Helper()
	addr, err := lwbus.ParseAddress(s)
	require.NoError(t, err)
	return addr
}

func newDriverForTest(t *testing.T) *Driver {
	t.Helper()
	return NewDriver("testdrv", "", NoopHandlers{}, lwbus.Address{}, nil)
}

func TestDriverAnnouncesInitOnHubConnect(t *testing.T) {
	initCh := make(chan []byte, 1)
	hub := mesh.NewServer(mesh.ServerOptions{
		OnDatagram: func(clientID uint32, url string, payload []byte) {
			if url == topicInit {
				initCh <- payload
			}
		},
	})
	hubAddr := mustAddr(t, "127.0.0.1:18991")
	require.NoError(t, hub.Start(hubAddr))
	defer hub.Stop()

	h := &recordingHandlers{}
	drv := NewDriver("testdrv", "test driver", h, hubAddr, nil)
	dev := drv.AddDevice("dev1", "", ConnDescriptor{Type: "sim"})
	dev.AddTag(NewTag("t1", "0", TypeInt32, 32, 4))

	require.NoError(t, drv.Start(mustAddr(t, "127.0.0.1:18992")))
	defer drv.Stop()

	select {
	case payload := <-initCh:
		assert.Contains(t, string(payload), "testdrv")
		assert.Contains(t, string(payload), "t1")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for /tags/init")
	}
}

func TestDeviceAddTagAndLookup(t *testing.T) {
	drv := NewDriver("d", "", NoopHandlers{}, lwbus.Address{}, nil)
	dev := drv.AddDevice("dev1", "", ConnDescriptor{})
	tag := NewTag("temp", "40001", TypeFloat32, 32, 4)
	dev.AddTag(tag)

	got, ok := dev.TagByName("temp")
	require.True(t, ok)
	assert.Same(t, tag, got)

	byAddr := dev.TagsByAddress("40001")
	require.Len(t, byAddr, 1)
	assert.Same(t, tag, byAddr[0])
}
