package driver

// Handlers mirrors the stable C ABI of §6 as a Go interface: every method
// corresponds 1:1 to a function a compiled driver plugin would export
// (InitDriver, UnInitDriver, InitDevice, ...). A Go-native driver
// implements this interface directly; a cgo bridge to an existing
// compiled driver would implement it by calling through to the C
// functions by those same names, preserving the ABI's semantics as §6
// requires when binary compatibility matters.
type Handlers interface {
	// InitDriver is called once, before any device is initialised.
	InitDriver(d *Driver) error
	// UnInitDriver is called once, after every device has been torn down.
	UnInitDriver(d *Driver) error
	// InitDevice is called once per device, before its timers start.
	InitDevice(dev *Device) error
	// UnInitDevice is called once per device, after its timers stop.
	UnInitDevice(dev *Device) error
	// OnDeviceConnStateChanged reports a device's connection transitions.
	OnDeviceConnStateChanged(dev *Device, connected bool)
	// OnTimer fires on every registered per-device timer tick.
	OnTimer(dev *Device, timerID int)
	// OnControl handles a write-command for tag on dev, with value as the
	// string form of the new value and cmdID reserved for future command
	// kinds (always 0 today per §4.6).
	OnControl(dev *Device, tag *Tag, value string, cmdID int64) error
	// GetVersion reports the driver's version for diagnostics.
	GetVersion() string
}

// NoopHandlers is a Handlers implementation whose methods all succeed
// trivially, useful as an embeddable base for drivers that only care
// about a subset of the lifecycle.
type NoopHandlers struct{}

func (NoopHandlers) InitDriver(*Driver) error                     { return nil }
func (NoopHandlers) UnInitDriver(*Driver) error                   { return nil }
func (NoopHandlers) InitDevice(*Device) error                     { return nil }
func (NoopHandlers) UnInitDevice(*Device) error                   { return nil }
func (NoopHandlers) OnDeviceConnStateChanged(*Device, bool)       {}
func (NoopHandlers) OnTimer(*Device, int)                         {}
func (NoopHandlers) OnControl(*Device, *Tag, string, int64) error { return nil }
func (NoopHandlers) GetVersion() string                           { return "" }
