package driver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/discovery/broadcast"
	"github.com/lwedge/lwbus/pkg/mesh"
)

// topicInit, topicUpdate, topicControl name the hub-facing topics of §6.
const (
	topicInit    = "/tags/init"
	topicUpdate  = "/tags/update"
	topicControl = "/tags/control"
)

// reconnectInterval bounds how often the Driver retries its hub
// connection after a disconnect.
const reconnectInterval = 3 * time.Second

// Driver owns many Devices, a local server publishing on
// "/<name>/data" and handling control RPCs on "/<name>/control", and an
// auto-reconnecting client to the process-wide hub (§4.6).
type Driver struct {
	Name        string
	Description string
	handlers    Handlers
	logger      *slog.Logger

	localServer *mesh.Server
	hubClient   *mesh.Client
	timers      *mesh.TimerService

	hubAddrMu sync.Mutex
	hubAddr   lwbus.Address
	hubReady  chan struct{} // closed once hubAddr is known

	hubDiscovery *broadcast.Client

	mu      sync.RWMutex
	devices []*Device

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDriver constructs a Driver. handlers implements the user-defined
// driver callbacks (§6's C ABI); hubAddr is the process-wide node_server
// this driver connects out to.
func NewDriver(name, description string, handlers Handlers, hubAddr lwbus.Address, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[DRIVER]", "driver", name)

	hubReady := make(chan struct{})
	close(hubReady) // fixed hubAddr is already known; EnableHubDiscovery reopens this gate

	d := &Driver{
		Name:        name,
		Description: description,
		handlers:    handlers,
		logger:      logger,
		hubAddr:     hubAddr,
		hubReady:    hubReady,
		stopCh:      make(chan struct{}),
	}
	d.timers = mesh.NewTimerService(mesh.DefaultClientTimerInterval)
	d.localServer = mesh.NewServer(mesh.ServerOptions{Logger: logger, Timers: d.timers})
	d.localServer.Router().Register(fmt.Sprintf("/%s/control", name), d.handleControlRPC)
	d.hubClient = mesh.NewClient(mesh.ClientOptions{Logger: logger, Timers: d.timers})
	return d
}

// AddDevice constructs and registers a new Device on this driver.
func (d *Driver) AddDevice(name, description string, conn ConnDescriptor) *Device {
	dev := NewDevice(d, name, description, conn)
	d.mu.Lock()
	d.devices = append(d.devices, dev)
	d.mu.Unlock()
	return dev
}

// AdoptDevice registers a Device built independently of AddDevice — the
// path LoadPointsIni's parsed devices take to join a running Driver.
func (d *Driver) AdoptDevice(dev *Device) {
	dev.driver = d
	d.mu.Lock()
	d.devices = append(d.devices, dev)
	d.mu.Unlock()
}

// Devices returns every device owned by this driver.
func (d *Driver) Devices() []*Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Device(nil), d.devices...)
}

// Timers exposes the shared TimerService devices register per-device
// timers on.
func (d *Driver) Timers() *mesh.TimerService { return d.timers }

// EnableHubDiscovery switches the driver from a fixed hub address to
// §4.4's "auto-discover a hub" shortcut: it listens for legacy broadcast
// SERVER_ANNOUNCE records on broadcastPort and connects to the first hub
// it sees instead of whatever hubAddr NewDriver was given. Call before
// Start.
func (d *Driver) EnableHubDiscovery(broadcastPort int) error {
	client, err := broadcast.NewClient(broadcastPort, d.onHubSeen, d.logger)
	if err != nil {
		return fmt.Errorf("driver %s: hub discovery: %w", d.Name, err)
	}
	d.hubDiscovery = client
	d.hubReady = make(chan struct{})
	return nil
}

func (d *Driver) onHubSeen(r broadcast.Record) {
	addr := lwbus.IP4Address(r.Host, r.Port)
	d.hubAddrMu.Lock()
	first := d.hubAddr == (lwbus.Address{})
	d.hubAddr = addr
	d.hubAddrMu.Unlock()
	d.logger.Info("hub discovered via broadcast", "name", r.Name, "addr", addr.String())
	if first {
		close(d.hubReady)
	}
}

// Start calls InitDriver, opens the local server on localAddr, then calls
// InitDevice for each device (a device whose InitDevice fails is logged
// and skipped), starts hub discovery if enabled, and finally begins the
// hub reconnect loop. Start itself starts no timers: no connection-check
// timer is created, and a per-device timer runs from the moment
// Device.RegisterTimer registers it.
func (d *Driver) Start(localAddr lwbus.Address) error {
	if err := d.handlers.InitDriver(d); err != nil {
		return fmt.Errorf("driver %s: InitDriver: %w", d.Name, err)
	}
	if err := d.localServer.Start(localAddr); err != nil {
		return fmt.Errorf("driver %s: local server start: %w", d.Name, err)
	}

	for _, dev := range d.Devices() {
		if err := d.handlers.InitDevice(dev); err != nil {
			d.logger.Error("InitDevice failed", "device", dev.Name, "error", err)
			continue
		}
	}

	if d.hubDiscovery != nil {
		d.hubDiscovery.Start()
	}

	d.wg.Add(1)
	go d.hubConnectLoop()
	return nil
}

func (d *Driver) hubConnectLoop() {
	defer d.wg.Done()
	select {
	case <-d.hubReady:
	case <-d.stopCh:
		return
	}
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		d.hubAddrMu.Lock()
		addr := d.hubAddr
		d.hubAddrMu.Unlock()
		if err := d.hubClient.Connect(addr); err != nil {
			d.logger.Warn("hub connect failed, retrying", "error", err)
			select {
			case <-d.stopCh:
				return
			case <-time.After(reconnectInterval):
				continue
			}
		}
		d.logger.Info("connected to hub")
		d.announceInit()
		d.notifyConnState(true)

		for d.hubClient.Connected() {
			select {
			case <-d.stopCh:
				d.hubClient.Disconnect()
				return
			case <-time.After(500 * time.Millisecond):
			}
		}
		d.notifyConnState(false)
		d.logger.Warn("disconnected from hub, will reconnect")
	}
}

func (d *Driver) notifyConnState(connected bool) {
	for _, dev := range d.Devices() {
		d.handlers.OnDeviceConnStateChanged(dev, connected)
	}
}

// announceInit sends the one-shot /tags/init datagram enumerating every
// (device_name, [tag_name...]) so the hub can build its routing table
// (§4.6).
func (d *Driver) announceInit() {
	type deviceTags struct {
		DeviceName string   `json:"device_name"`
		TagList    []string `json:"taglist"`
	}
	type initPayload struct {
		DriverName string       `json:"driver_name"`
		DevTags    []deviceTags `json:"devtags"`
	}

	payload := initPayload{DriverName: d.Name}
	for _, dev := range d.Devices() {
		names := make([]string, 0)
		for _, t := range dev.Tags() {
			names = append(names, t.Name)
		}
		payload.DevTags = append(payload.DevTags, deviceTags{DeviceName: dev.Name, TagList: names})
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("marshal /tags/init failed", "error", err)
		return
	}
	if err := d.hubClient.Datagram(topicInit, buf); err != nil {
		d.logger.Error("send /tags/init failed", "error", err)
	}
}

// Stop tears down the hub connection, the local server, calls
// UnInitDevice for every device and finally UnInitDriver.
func (d *Driver) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	if d.hubDiscovery != nil {
		d.hubDiscovery.Stop()
	}
	d.hubClient.Close()
	d.localServer.Stop()
	d.timers.Stop()

	for _, dev := range d.Devices() {
		dev.StopTimers()
		if err := d.handlers.UnInitDevice(dev); err != nil {
			d.logger.Error("UnInitDevice failed", "device", dev.Name, "error", err)
		}
	}
	if err := d.handlers.UnInitDriver(d); err != nil {
		d.logger.Error("UnInitDriver failed", "error", err)
	}
}
