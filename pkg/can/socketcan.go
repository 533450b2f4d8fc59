package can

import sockcan "github.com/brutella/can"

// SocketCAN implements Bus over a Linux SocketCAN interface via
// github.com/brutella/can.
type SocketCAN struct {
	bus      *sockcan.Bus
	listener FrameListener
}

// NewSocketCAN opens channel (e.g. "can0") as a SocketCAN bus.
func NewSocketCAN(channel string) (*SocketCAN, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, err
	}
	return &SocketCAN{bus: bus}, nil
}

func (s *SocketCAN) Connect(...any) error {
	go s.bus.ConnectAndPublish()
	return nil
}

func (s *SocketCAN) Disconnect() error {
	return s.bus.Disconnect()
}

func (s *SocketCAN) Send(frame Frame) error {
	return s.bus.Publish(sockcan.Frame{
		ID:     frame.ID,
		Length: frame.DLC,
		Flags:  frame.Flags,
		Data:   frame.Data,
	})
}

func (s *SocketCAN) Subscribe(listener FrameListener) error {
	s.listener = listener
	s.bus.Subscribe(s)
	return nil
}

// Handle implements brutella/can's frame-handler interface, translating
// its wire frame into our own Frame before forwarding to the listener.
func (s *SocketCAN) Handle(frame sockcan.Frame) {
	s.listener.Handle(Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data})
}
