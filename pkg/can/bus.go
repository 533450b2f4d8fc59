// Package can wires CanDevice (pkg/driver) to a real CAN bus. Unlike the
// teacher's multi-backend registry (Kvaser, two generations of raw
// socketcan, an in-memory virtual bus selected by string key), this
// module drives exactly one field transport, so the Bus interface has a
// single concrete implementation, NewSocketCAN, instead of a
// string-keyed constructor lookup.
package can

// Frame is a CAN frame exchanged with a field device.
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc}
}

// FrameListener receives every frame a Bus reads off the wire.
type FrameListener interface {
	Handle(frame Frame)
}

// Bus is a CAN transport: connect, send, and subscribe to received
// frames. CanDevice depends on this interface, not on SocketCAN
// directly, so its tests can substitute a fake bus.
type Bus interface {
	Connect(...any) error
	Disconnect() error
	Send(frame Frame) error
	Subscribe(callback FrameListener) error
}
