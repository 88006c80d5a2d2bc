// btsync - BuildTrack cloud synchronization core
//
// btsync maintains a live mirror of BuildTrack device state and routes
// commands to the devices over the vendor's two cloud channels:
//   - a socket.io event stream for stream-routed controllers
//   - an MQTT-over-WebSocket broker for broker-routed controllers
//
// A best-effort local HTTP fast path cuts latency for controllers
// reachable on the LAN. Credentials and device discovery live outside
// this binary; routing and session identity arrive via configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/buildtrack-sync/internal/device"
	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/config"
	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/logging"
	"github.com/nerrad567/buildtrack-sync/internal/infrastructure/mqtt"
	"github.com/nerrad567/buildtrack-sync/internal/state"
	"github.com/nerrad567/buildtrack-sync/internal/transport/broker"
	"github.com/nerrad567/buildtrack-sync/internal/transport/stream"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// healthCheckInterval is how often the broker connection is probed.
const healthCheckInterval = 30 * time.Second

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting btsync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to the MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d%s", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, cfg.MQTT.Broker.Path),
	)

	// Broker transport; hooks the client's connect callback for
	// subscription replay.
	brokerT := broker.New(mqttClient, byte(cfg.MQTT.QoS))
	brokerT.SetLogger(log)

	// Stream transport; connection established by Run below.
	streamT := stream.New(cfg.Stream, cfg.Session.UserID)
	streamT.SetLogger(log)

	// Synchronization core
	table := state.NewTable()
	manager := device.NewManager(table, streamT, brokerT)
	manager.SetLogger(log)
	if cfg.FastPath.Enabled {
		manager.EnableFastPath(cfg.GetFastPathTimeout())
		log.Info("fast path enabled", "timeout", cfg.GetFastPathTimeout().String())
	}

	// Both transports feed the same merge path.
	streamT.SetOnStatus(manager.OnStatusEvent)
	brokerT.SetOnStatus(manager.OnStatusEvent)

	// Seed routing and interest from configuration. Stream-routed
	// endpoints queue until the stream session is established.
	for _, d := range cfg.Devices {
		manager.SetRoute(d.Endpoint, device.Route{
			Transport:    d.Transport,
			LocalAddress: d.LocalAddress,
		})
		if regErr := manager.RegisterInterest(d.Endpoint); regErr != nil {
			log.Warn("interest registration failed", "endpoint", d.Endpoint, "error", regErr)
		}
	}
	log.Info("devices configured", "count", len(cfg.Devices))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return streamT.Run(gctx)
	})
	g.Go(func() error {
		return healthLoop(gctx, mqttClient, log)
	})

	log.Info("initialisation complete")

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	log.Info("btsync stopped")
	return err
}

// healthLoop probes the broker connection periodically. The paho client
// reconnects on its own; this only surfaces prolonged outages in logs.
func healthLoop(ctx context.Context, client *mqtt.Client, log *logging.Logger) error {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := client.HealthCheck(ctx); err != nil {
				log.Warn("broker health check failed", "error", err)
			}
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses BTSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BTSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
