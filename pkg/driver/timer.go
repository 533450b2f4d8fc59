package driver

import (
	"time"

	"github.com/lwedge/lwbus/pkg/mesh"
)

// deviceTimer binds a user-declared per-device timer to the shared
// TimerService: it fires callback every interval on the service's own
// goroutine (§4.6: "a user timer... fires on a shared timer-service
// thread; the callback receives the owning Device's C-ABI handle").
type deviceTimer struct {
	device     *Device
	interval   time.Duration
	callback   func(dev *Device)
	unregister func()
}

// RegisterTimer starts a new per-device timer on the driver's shared
// TimerService. Callback latency is the caller's responsibility to
// bound: a long callback delays every other timer sharing the service.
func (d *Device) RegisterTimer(ts *mesh.TimerService, interval time.Duration, callback func(dev *Device)) func() {
	dt := &deviceTimer{device: d, interval: interval, callback: callback}
	elapsed := time.Duration(0)
	last := time.Now()
	dt.unregister = ts.Register(func() {
		now := time.Now()
		elapsed += now.Sub(last)
		last = now
		if elapsed >= interval {
			elapsed = 0
			callback(d)
		}
	})
	d.mu.Lock()
	d.timers = append(d.timers, dt)
	d.mu.Unlock()
	return dt.unregister
}

// StopTimers unregisters every timer this device owns; Driver.Stop calls
// it for each device before UnInitDevice.
func (d *Device) StopTimers() {
	d.mu.Lock()
	timers := d.timers
	d.timers = nil
	d.mu.Unlock()
	for _, t := range timers {
		t.unregister()
	}
}
