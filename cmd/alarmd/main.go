// Command alarmd runs the alarm evaluation engine: it loads rule tables
// from its SQLite store, subscribes to a hub's "/tags/update" feed, and
// publishes AlarmInfo transitions to its own local subscribers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/alarm"
	"github.com/lwedge/lwbus/pkg/config"
	"github.com/lwedge/lwbus/pkg/mesh"
)

func main() {
	configDir := flag.String("config-dir", "", "override the config directory (default: $LWBUS_CONFIG_DIR or /etc/lwbus)")
	flag.Parse()
	if *configDir != "" {
		os.Setenv("LWBUS_CONFIG_DIR", *configDir)
	}

	var cfg config.AlarmdConfig
	if err := config.Load("alarmd", &cfg); err != nil {
		log.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	localAddr, err := lwbus.ParseAddress(cfg.LocalAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.LocalAddr).Error("invalid local_addr")
		os.Exit(1)
	}
	hubAddr, err := lwbus.ParseAddress(cfg.HubAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.HubAddr).Error("invalid hub_addr")
		os.Exit(1)
	}

	store, err := alarm.OpenStore(cfg.StorePath)
	if err != nil {
		log.WithError(err).WithField("path", cfg.StorePath).Error("failed to open alarm store")
		os.Exit(1)
	}
	defer store.Close()

	// alarmd is itself a mesh.Server so its AlarmInfo publications reach
	// its own subscribers, and a mesh.Client against the hub so it can
	// receive the tag updates driverd relays (§4.6's dual-role pattern).
	publisher := mesh.NewServer(mesh.ServerOptions{})
	if err := publisher.Start(localAddr); err != nil {
		log.WithError(err).Error("failed to start alarmd listener")
		os.Exit(1)
	}
	defer publisher.Stop()

	engine := alarm.NewEngine(store, publisher, log.StandardLogger())

	if cfg.CloudMirrorEnabled {
		ctx := context.Background()
		mirror, err := alarm.NewCloudMirror(ctx, cfg.CloudServiceURL, cfg.CloudAccount, cfg.CloudKey, cfg.CloudTableName,
			log.WithField("service", "[ALARM]"))
		if err != nil {
			log.WithError(err).Error("failed to start cloud mirror")
			os.Exit(1)
		}
		engine.WithCloudMirror(mirror)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.LoadRules(ctx); err != nil {
		log.WithError(err).Error("failed to load alarm rules")
		os.Exit(1)
	}
	engine.Start(ctx)
	defer engine.Stop()

	hubClient := mesh.NewClient(mesh.ClientOptions{
		OnMessage: func(url string, payload []byte) {
			if err := engine.HandleTagUpdateDatagram(payload); err != nil {
				log.WithError(err).WithField("url", url).Warn("failed to handle tag update")
			}
		},
	})
	if err := hubClient.Connect(hubAddr); err != nil {
		log.WithError(err).WithField("addr", cfg.HubAddr).Error("failed to connect to hub")
		os.Exit(1)
	}
	defer hubClient.Close()

	if err := engine.SubscribeUpdates(hubClient); err != nil {
		log.WithError(err).Error("failed to subscribe to tag updates")
		os.Exit(1)
	}

	log.WithField("hub", cfg.HubAddr).Info("alarmd running")
	waitForSignal()
	log.Info("alarmd shutting down")
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
