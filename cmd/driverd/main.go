// Command driverd loads a driver's tag list from a legacy .points.ini
// file and runs it against a hub, relaying control writes and bus reads
// through the driver-SDK runtime.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/config"
	"github.com/lwedge/lwbus/pkg/driver"
)

// iniHandlers backs every device loaded from a .points.ini file: control
// writes update the tag directly, and are pushed onto the CAN bus when the
// owning device is CAN-connected.
type iniHandlers struct {
	driver.NoopHandlers
	canDevices map[string]*driver.CanDevice
}

func (h *iniHandlers) InitDevice(dev *driver.Device) error {
	if dev.Conn.Type != "socketcan" {
		return nil
	}
	cd, err := driver.NewCanDevice(dev)
	if err != nil {
		return err
	}
	if err := cd.Start(); err != nil {
		return err
	}
	h.canDevices[dev.Name] = cd
	return nil
}

func (h *iniHandlers) UnInitDevice(dev *driver.Device) error {
	if cd, ok := h.canDevices[dev.Name]; ok {
		cd.Stop()
		delete(h.canDevices, dev.Name)
	}
	return nil
}

func (h *iniHandlers) OnControl(dev *driver.Device, tag *driver.Tag, value string, cmdID int64) error {
	if err := tag.SetFromString(value); err != nil {
		return err
	}
	if cd, ok := h.canDevices[dev.Name]; ok {
		return cd.Write(tag)
	}
	return nil
}

func (h *iniHandlers) GetVersion() string { return "driverd/points-ini" }

func main() {
	configDir := flag.String("config-dir", "", "override the config directory (default: $LWBUS_CONFIG_DIR or /etc/lwbus)")
	flag.Parse()
	if *configDir != "" {
		os.Setenv("LWBUS_CONFIG_DIR", *configDir)
	}

	var cfg config.DriverdConfig
	if err := config.Load("driverd", &cfg); err != nil {
		log.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	devices, err := driver.LoadPointsIni(cfg.PointsIniPath)
	if err != nil {
		log.WithError(err).WithField("path", cfg.PointsIniPath).Error("failed to load points.ini")
		os.Exit(1)
	}

	var hubAddr lwbus.Address
	if cfg.HubAddr != "" {
		hubAddr, err = lwbus.ParseAddress(cfg.HubAddr)
		if err != nil {
			log.WithError(err).WithField("addr", cfg.HubAddr).Error("invalid hub_addr")
			os.Exit(1)
		}
	}
	localAddr, err := lwbus.ParseAddress(cfg.LocalAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.LocalAddr).Error("invalid local_addr")
		os.Exit(1)
	}

	handlers := &iniHandlers{canDevices: make(map[string]*driver.CanDevice)}
	drv := driver.NewDriver(cfg.DriverName, cfg.Description, handlers, hubAddr, nil)
	for _, dev := range devices {
		drv.AdoptDevice(dev)
	}

	if cfg.HubAddr == "" {
		if cfg.HubDiscoveryPort == 0 {
			log.Error("config: one of hub_addr or hub_discovery_port is required")
			os.Exit(1)
		}
		if err := drv.EnableHubDiscovery(cfg.HubDiscoveryPort); err != nil {
			log.WithError(err).Error("failed to start hub discovery")
			os.Exit(1)
		}
	}

	if err := drv.Start(localAddr); err != nil {
		log.WithError(err).Error("failed to start driver")
		os.Exit(1)
	}
	defer drv.Stop()

	log.WithField("driver", cfg.DriverName).WithField("devices", len(devices)).Info("driverd running")
	waitForSignal()
	log.Info("driverd shutting down")
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
