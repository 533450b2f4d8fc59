// Command lwhub runs the messaging hub/node_server: a mesh.Server
// accepting driver and alarm-engine connections, optionally advertising
// itself over SPDP and/or legacy broadcast discovery.
package main

import (
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flynn/noise"
	log "github.com/sirupsen/logrus"

	"github.com/lwedge/lwbus"
	"github.com/lwedge/lwbus/pkg/config"
	"github.com/lwedge/lwbus/pkg/discovery/broadcast"
	"github.com/lwedge/lwbus/pkg/discovery/spdp"
	"github.com/lwedge/lwbus/pkg/mesh"
	"github.com/lwedge/lwbus/pkg/security"
)

// decodeNoiseKeypair decodes a base64 private/public X25519 keypair from
// config; both fields are required together.
func decodeNoiseKeypair(privB64, pubB64 string) (noise.DHKey, error) {
	priv, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("noise_private_key_b64: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("noise_public_key_b64: %w", err)
	}
	return noise.DHKey{Private: priv, Public: pub}, nil
}

func main() {
	configDir := flag.String("config-dir", "", "override the config directory (default: $LWBUS_CONFIG_DIR or /etc/lwbus)")
	flag.Parse()
	if *configDir != "" {
		os.Setenv("LWBUS_CONFIG_DIR", *configDir)
	}

	var cfg config.HubConfig
	if err := config.Load("lwhub", &cfg); err != nil {
		log.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	addr, err := lwbus.ParseAddress(cfg.ListenAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.ListenAddr).Error("invalid listen_addr")
		os.Exit(1)
	}

	var server *mesh.Server
	opts := mesh.ServerOptions{
		// A datagram (driverd's hub-bound tag updates) has no subscriber
		// list of its own; re-publishing it is what gives alarmd and any
		// other subscriber on this hub a single "/tags/update" feed
		// regardless of whether the sender used Publish or Datagram.
		OnDatagram: func(clientID uint32, url string, payload []byte) {
			server.Publish(url, payload)
		},
	}
	if cfg.NoisePrivateKeyB64 != "" {
		keypair, err := decodeNoiseKeypair(cfg.NoisePrivateKeyB64, cfg.NoisePublicKeyB64)
		if err != nil {
			log.WithError(err).Error("invalid noise keypair config")
			os.Exit(1)
		}
		verifier := security.NewVerifier(keypair)
		opts.OnAuth = verifier.AuthCallback()
	}

	server = mesh.NewServer(opts)
	if err := server.Start(addr); err != nil {
		log.WithError(err).Error("failed to start hub listener")
		os.Exit(1)
	}
	defer server.Stop()
	log.WithField("addr", cfg.ListenAddr).Info("lwhub listening")

	if cfg.SPDPEnabled {
		spdpSvc := spdp.NewService(spdp.Config{ParticipantName: cfg.ParticipantName, MulticastPort: cfg.SPDPPort}, nil, nil)
		if err := spdpSvc.Start(); err != nil {
			log.WithError(err).Error("failed to start spdp discovery")
			os.Exit(1)
		}
		defer spdpSvc.Stop()
	}

	if cfg.BroadcastEnabled {
		bcastSrv, err := broadcast.NewServer(cfg.ServerName, addr.Port(), "/tags/update", cfg.BroadcastPort, 0, nil)
		if err != nil {
			log.WithError(err).Error("failed to start broadcast discovery")
			os.Exit(1)
		}
		bcastSrv.Start()
		defer bcastSrv.Stop()
	}

	waitForSignal()
	log.Info("lwhub shutting down")
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}
