package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/can"
)

type fakeBus struct {
	connected bool
	sent      []can.Frame
	listener  can.FrameListener
}

func (b *fakeBus) Connect(...any) error { b.connected = true; return nil }
func (b *fakeBus) Disconnect() error    { b.connected = false; return nil }
func (b *fakeBus) Send(frame can.Frame) error {
	b.sent = append(b.sent, frame)
	return nil
}
func (b *fakeBus) Subscribe(cb can.FrameListener) error { b.listener = cb; return nil }

func newTestCanDevice(t *testing.T, tags ...*Tag) (*CanDevice, *fakeBus) {
	t.Helper()
	drv := NewDriver("candrv", "", NoopHandlers{}, lwbus.Address{}, nil)
	dev := drv.AddDevice("pdu1", "", ConnDescriptor{Type: "fake", Param: "fake0"})
	for _, tag := range tags {
		dev.AddTag(tag)
	}
	bus := &fakeBus{}
	cd := &CanDevice{dev: dev, bus: bus, byID: make(map[uint32][]*Tag), offID: make(map[*Tag]int)}
	for _, tag := range tags {
		a, err := parseCanAddress(tag.Address)
		require.NoError(t, err)
		cd.byID[a.id] = append(cd.byID[a.id], tag)
		cd.offID[tag] = a.offset
	}
	return cd, bus
}

func TestParseCanAddress(t *testing.T) {
	a, err := parseCanAddress("0x181:2")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x181), a.id)
	assert.Equal(t, 2, a.offset)

	_, err = parseCanAddress("bad")
	assert.Error(t, err)
}

func TestCanDeviceHandleUpdatesMappedTag(t *testing.T) {
	tag := NewTag("speed", "0x181:0", TypeUint16, 16, 2)
	cd, _ := newTestCanDevice(t, tag)

	frame := can.Frame{ID: 0x181, DLC: 8}
	frame.Data[0] = 0x34
	frame.Data[1] = 0x12
	cd.Handle(frame)

	assert.Equal(t, "4660", tag.String()) // 0x1234 little-endian
}

func TestCanDeviceHandleIgnoresUnmappedFrame(t *testing.T) {
	tag := NewTag("speed", "0x181:0", TypeUint16, 16, 2)
	cd, _ := newTestCanDevice(t, tag)

	before := append([]byte(nil), tag.Value...)
	cd.Handle(can.Frame{ID: 0x200, DLC: 8})
	assert.Equal(t, before, tag.Value)
}

func TestCanDeviceWriteEncodesTagValue(t *testing.T) {
	tag := NewTag("setpoint", "0x300:1", TypeUint16, 16, 2)
	require.NoError(t, tag.SetFromString("99"))
	cd, bus := newTestCanDevice(t, tag)

	require.NoError(t, cd.Write(tag))
	require.Len(t, bus.sent, 1)
	assert.Equal(t, uint32(0x300), bus.sent[0].ID)
	assert.Equal(t, tag.Value, bus.sent[0].Data[1:3])
}
