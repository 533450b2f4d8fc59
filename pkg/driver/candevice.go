package driver

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lwedge/lwbus/pkg/can"
)

// CanDevice wires a Device to a CAN bus (§3's "device connection kind"),
// adapting the teacher's socketcan.SocketcanBus usage pattern
// (pkg/can/socketcan/socketcan.go) into the domain of field-device tag
// updates: each tag's Address names a CAN frame ID and byte offset
// within it ("<id>:<offset>", e.g. "0x181:0"), and every received frame
// updates every tag mapped to it. CanDevice does not publish the updated
// tags itself.
type CanDevice struct {
	dev *Device
	bus can.Bus

	mu    sync.Mutex
	byID  map[uint32][]*Tag
	offID map[*Tag]int
}

// canAddress is a parsed Tag.Address of the form "<hex-id>:<byte-offset>".
type canAddress struct {
	id     uint32
	offset int
}

func parseCanAddress(addr string) (canAddress, error) {
	parts := strings.SplitN(addr, ":", 2)
	if len(parts) != 2 {
		return canAddress{}, fmt.Errorf("driver: bad CAN tag address %q, want \"<id>:<offset>\"", addr)
	}
	idStr := strings.TrimPrefix(strings.TrimPrefix(parts[0], "0x"), "0X")
	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return canAddress{}, fmt.Errorf("driver: bad CAN frame id in %q: %w", addr, err)
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return canAddress{}, fmt.Errorf("driver: bad CAN byte offset in %q: %w", addr, err)
	}
	return canAddress{id: uint32(id), offset: offset}, nil
}

// NewCanDevice opens a SocketCAN bus for dev using dev.Conn.Param as the
// channel name (e.g. "can0") and indexes dev's tags by the CAN frame ID
// their address names.
func NewCanDevice(dev *Device) (*CanDevice, error) {
	bus, err := can.NewSocketCAN(dev.Conn.Param)
	if err != nil {
		return nil, fmt.Errorf("driver: device %s: %w", dev.Name, err)
	}

	cd := &CanDevice{
		dev:   dev,
		bus:   bus,
		byID:  make(map[uint32][]*Tag),
		offID: make(map[*Tag]int),
	}
	for _, t := range dev.Tags() {
		a, err := parseCanAddress(t.Address)
		if err != nil {
			return nil, err
		}
		cd.byID[a.id] = append(cd.byID[a.id], t)
		cd.offID[t] = a.offset
	}
	return cd, nil
}

// Start connects the bus and subscribes cd as the frame listener.
func (cd *CanDevice) Start() error {
	if err := cd.bus.Connect(); err != nil {
		return fmt.Errorf("driver: device %s: connect: %w", cd.dev.Name, err)
	}
	return cd.bus.Subscribe(cd)
}

// Stop disconnects the underlying bus.
func (cd *CanDevice) Stop() error {
	return cd.bus.Disconnect()
}

// Handle implements can.FrameListener: every tag mapped to frame.ID has
// its bytes, starting at its configured offset, copied out of the
// frame's data and its TimestampMs set to the time of receipt; Quality is
// left unchanged. Callers observe updated tags via cd.dev.Tags() and
// publish them through Driver.UpdateTags.
func (cd *CanDevice) Handle(frame can.Frame) {
	cd.mu.Lock()
	tags := cd.byID[frame.ID]
	cd.mu.Unlock()

	for _, t := range tags {
		offset := cd.offID[t]
		if offset < 0 || offset+len(t.Value) > int(frame.DLC) || offset+len(t.Value) > len(frame.Data) {
			continue
		}
		copy(t.Value, frame.Data[offset:offset+len(t.Value)])
		t.TimestampMs = time.Now().UnixMilli()
	}
}

// Write encodes tag's current value into a CAN frame at its mapped
// offset and sends it — the CAN-device path OnControl's caller uses
// after SetFromString has updated the tag in place.
func (cd *CanDevice) Write(tag *Tag) error {
	a, err := parseCanAddress(tag.Address)
	if err != nil {
		return err
	}
	frame := can.NewFrame(a.id, 0, uint8(a.offset+len(tag.Value)))
	copy(frame.Data[a.offset:], tag.Value)
	return cd.bus.Send(frame)
}
