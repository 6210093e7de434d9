// Package main is the entry point for the device sync core.
//
// The core registers ESP32 boards against provisioned serial numbers,
// bridges their MQTT telemetry into the realtime store, and serves device
// views and commands over HTTP and WebSocket.
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

	"github.com/nerrad567/devicesync-core/internal/api"
	"github.com/nerrad567/devicesync-core/internal/audit"
	"github.com/nerrad567/devicesync-core/internal/auth"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/database"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/logging"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicesync-core/internal/reconciler"
	"github.com/nerrad567/devicesync-core/internal/registration"
	"github.com/nerrad567/devicesync-core/internal/serial"
	"github.com/nerrad567/devicesync-core/internal/store"

	// Embed SQL migrations.
	_ "github.com/nerrad567/devicesync-core/migrations"
)

// Build-time variables (set via ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// offlineSweepDivisor sets the sweep interval relative to offline_after.
const offlineSweepDivisor = 3

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting device sync core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	// Persistent backends.
	var (
		rt      *store.Realtime
		history device.CommandLogRepository
		trail   *audit.SQLiteRepository
	)
	switch cfg.Store.Driver {
	case "memory":
		rt = store.NewMemory()
		log.Info("using in-memory realtime store; command history and audit disabled")
	default:
		db, openErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database opened", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		rt = store.NewSQLite(db.DB)
		history = device.NewSQLiteCommandLogRepository(db.DB)
		trail = audit.NewSQLiteRepository(db.DB)
	}

	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()

	registry := serial.NewRegistry(rt)
	registry.SetLogger(log.With("component", "serial"))
	if err := provisionSerials(ctx, registry, cfg.Store, log); err != nil {
		return err
	}

	registrar := registration.NewService(rt, registry)
	registrar.SetLogger(log.With("component", "registration"))
	var auditLister api.AuditLister
	if trail != nil {
		registrar.SetAuditor(trail)
		auditLister = trail
	}

	// Broker.
	bridge := mqtt.NewBridge(mqtt.OptionsFromConfig(cfg.MQTT))
	bridge.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("closing MQTT bridge")
		if closeErr := bridge.Close(); closeErr != nil {
			log.Error("error closing MQTT bridge", "error", closeErr)
		}
	}()

	rec := reconciler.New(rt, bridge, reconciler.Options{
		Topics:         bridge.Topics(),
		CommandTimeout: cfg.Reconciler.CommandTimeout(),
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
	})
	rec.SetLogger(log.With("component", "reconciler"))
	if history != nil {
		rec.SetHistory(history)
	}
	defer func() {
		log.Info("stopping reconciler")
		if closeErr := rec.Close(); closeErr != nil {
			log.Error("error stopping reconciler", "error", closeErr)
		}
	}()
	if err := rec.Attach(bridge); err != nil {
		return fmt.Errorf("subscribing telemetry: %w", err)
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		rec.SetSink(influxClient)
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	authenticator, err := auth.NewAuthenticator(cfg.Security.JWT)
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.With("component", "api"),
		Auth:       authenticator,
		Devices:    registrar,
		Reconciler: rec,
		Bridge:     bridge,
		History:    history,
		Audit:      auditLister,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	g.Go(func() error {
		connectBroker(gctx, bridge, cfg.MQTT, log)
		return nil
	})

	if maxAge := cfg.Reconciler.OfflineAfterDuration(); maxAge > 0 {
		g.Go(func() error {
			return rec.RunOfflineSweep(gctx, maxAge/offlineSweepDivisor, maxAge)
		})
	}

	if err := server.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	log.Info("device sync core stopped")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("DEVICESYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// provisionSerials loads the seed file and the sample serials into the
// registry. Serials already in the registry are skipped so a restart keeps
// their claims.
func provisionSerials(ctx context.Context, registry *serial.Registry, cfg config.StoreConfig, log *logging.Logger) error {
	var candidates []serial.Record
	if cfg.SeedFile != "" {
		seeded, err := serial.LoadSeed(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("loading serial seed: %w", err)
		}
		candidates = append(candidates, seeded...)
	}
	if cfg.SampleSerials {
		candidates = append(candidates, serial.SampleRecords()...)
	}
	if len(candidates) == 0 {
		return nil
	}

	existing, err := registry.List(ctx)
	if err != nil {
		return fmt.Errorf("listing serials: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		known[rec.Serial] = struct{}{}
	}

	var records []serial.Record
	for _, rec := range candidates {
		if _, ok := known[rec.Serial]; ok {
			continue
		}
		known[rec.Serial] = struct{}{}
		records = append(records, rec)
	}
	if len(records) == 0 {
		log.Debug("serial numbers already provisioned", "count", len(candidates))
		return nil
	}
	if err := registry.Provision(ctx, records...); err != nil {
		return fmt.Errorf("provisioning serials: %w", err)
	}
	log.Info("serial numbers provisioned", "count", len(records))
	return nil
}

// connectBroker retries the first broker connection until it succeeds or
// ctx is cancelled. Later drops are handled by the bridge itself.
func connectBroker(ctx context.Context, bridge *mqtt.Bridge, cfg config.MQTTConfig, log *logging.Logger) {
	var creds *mqtt.Credentials
	if cfg.Auth.Username != "" {
		creds = &mqtt.Credentials{Username: cfg.Auth.Username, Password: cfg.Auth.Password}
	}
	url := cfg.BrokerURL()
	interval := cfg.ReconnectInterval()

	for {
		err := bridge.Connect(ctx, url, creds)
		if err == nil {
			log.Info("MQTT connected", "broker", url)
			return
		}
		if errors.Is(err, mqtt.ErrConnectInProgress) {
			return
		}
		log.Warn("MQTT connection failed, retrying", "broker", url, "retry_in", interval, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
