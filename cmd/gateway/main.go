// Smart Home Gateway
//
// This is the main entry point for the smart home gateway. The gateway
// accepts WebSocket sessions from ESP32 field controllers, pushes their
// telemetry to dashboard clients, forwards lighting commands to devices and
// mirrors readings to an analytics broker and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/smarthome-gateway/internal/api"
	"github.com/nerrad567/smarthome-gateway/internal/broker"
	"github.com/nerrad567/smarthome-gateway/internal/device"
	"github.com/nerrad567/smarthome-gateway/internal/gateway"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/smarthome-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-gateway/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnvVar overrides the configuration file path.
	configEnvVar = "SMARTHOME_CONFIG"

	// startupCheckTimeout bounds the startup health checks.
	startupCheckTimeout = 5 * time.Second

	// apiName is reported by GET /.
	apiName = "Smart Home API"
)

// Metric names written to InfluxDB from the session hooks.
const (
	metricConnected = "connected"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting smart home gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device catalogue
	deviceRegistry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	deviceRegistry.SetLogger(log.Component("device"))

	// Analytics broker (optional, degraded mode when unreachable)
	publisher, err := connectBroker(ctx, cfg, log)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer func() {
			log.Info("closing broker publisher")
			if closeErr := publisher.Close(); closeErr != nil {
				log.Error("error closing broker publisher", "error", closeErr)
			}
		}()
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Gateway core
	opts := gateway.Options{
		Hooks:  newSessionHooks(deviceRegistry, influxClient, log).hooks(),
		Logger: log.Component("gateway"),
	}
	if publisher != nil {
		opts.Publisher = publisher
	}
	gw := gateway.New(opts)
	defer func() {
		log.Info("closing device and client sessions")
		gw.Close()
	}()

	// HTTP API
	deps := api.Deps{
		Name:     apiName,
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Gateway:  gw,
		Devices:  deviceRegistry,
		Broker:   publisher,
		Database: db,
		Version:  version,
	}
	if influxClient != nil {
		deps.InfluxDB = influxClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if publisher != nil {
		// Outages are absorbed by the publisher's queue and breaker.
		if err := publisher.HealthCheck(ctx); err != nil {
			log.Warn("broker health check failed", "error", err)
		}
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"device_path", cfg.WebSocket.DevicePath,
		"client_path", cfg.WebSocket.ClientPath,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Gateway sessions
	// 3. InfluxDB (if enabled)
	// 4. Broker publisher (if connected)
	// 5. Database

	log.Info("smart home gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads the configuration file. A missing file at the default
// path falls back to built-in defaults; an explicitly configured path must
// exist.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if path != defaultConfigPath || !errors.Is(err, fs.ErrNotExist) {
		return nil, path, err
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, "(defaults)", fmt.Errorf("validating default config: %w", err)
	}
	return cfg, "(defaults)", nil
}

// connectBroker returns the analytics publisher, or nil when the broker is
// disabled or unreachable. Only configuration errors are fatal.
func connectBroker(ctx context.Context, cfg *config.Config, log *logging.Logger) (*broker.Publisher, error) {
	if !cfg.Broker.Enabled {
		log.Info("broker disabled")
		return nil, nil
	}

	publisher, err := broker.Connect(ctx, cfg, log.Component("broker"))
	switch {
	case err == nil:
		log.Info("broker connected", "type", publisher.Kind())
		return publisher, nil
	case errors.Is(err, broker.ErrUnavailable):
		log.Warn("broker unavailable, telemetry will not be mirrored", "type", cfg.Broker.Type, "error", err)
		return nil, nil
	default:
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
}

// healthCheck verifies the required infrastructure concurrently and returns
// the first failure. influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client, server *api.Server) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := db.HealthCheck(gctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	})
	if influxClient != nil {
		g.Go(func() error {
			if err := influxClient.HealthCheck(gctx); err != nil {
				return fmt.Errorf("influxdb: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := server.HealthCheck(gctx); err != nil {
			return fmt.Errorf("api: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// sessionHooks connects gateway session events to the device catalogue and
// InfluxDB.
type sessionHooks struct {
	devices *device.Registry
	influx  *influxdb.Client // nil when disabled
	log     *logging.Logger
}

func newSessionHooks(devices *device.Registry, influx *influxdb.Client, log *logging.Logger) *sessionHooks {
	return &sessionHooks{devices: devices, influx: influx, log: log.Component("hooks")}
}

func (h *sessionHooks) hooks() gateway.Hooks {
	return gateway.Hooks{
		OnDeviceConnected:    h.connected,
		OnDeviceDisconnected: h.disconnected,
		OnTelemetry:          h.telemetry,
	}
}

func (h *sessionHooks) connected(ctx context.Context, deviceID string) {
	if err := h.devices.MarkOnline(ctx, deviceID); err != nil {
		h.log.Warn("marking device online failed", "device_id", deviceID, "error", err)
	}
	h.influx.WriteDeviceMetric(deviceID, metricConnected, 1)
}

func (h *sessionHooks) disconnected(ctx context.Context, deviceID string) {
	if err := h.devices.MarkOffline(ctx, deviceID); err != nil {
		h.log.Warn("marking device offline failed", "device_id", deviceID, "error", err)
	}
	h.influx.WriteDeviceMetric(deviceID, metricConnected, 0)
}

func (h *sessionHooks) telemetry(_ context.Context, deviceID, channel string, data map[string]any) {
	h.influx.WriteTelemetry(deviceID, channel, data, time.Now())
}
