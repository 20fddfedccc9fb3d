// HydroCore - hydroponics telemetry and control engine.
//
// HydroCore ingests sensor telemetry and actuator state over MQTT,
// maintains the device/metric registry in SQLite, mirrors readings to
// InfluxDB, rate-limits outbound actuator commands and runs the
// automation rule engine. HTTP routes, analytics and the AI agent loop
// live in external collaborators that consume the event broker and the
// assembled core API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/verdantlabs/hydrocore/migrations"

	"github.com/verdantlabs/hydrocore/internal/automation"
	"github.com/verdantlabs/hydrocore/internal/control"
	"github.com/verdantlabs/hydrocore/internal/core"
	"github.com/verdantlabs/hydrocore/internal/device"
	"github.com/verdantlabs/hydrocore/internal/events"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/config"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/database"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/influxdb"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/logging"
	"github.com/verdantlabs/hydrocore/internal/infrastructure/mqtt"
	"github.com/verdantlabs/hydrocore/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting HydroCore",
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

	// Open database and bring the schema up to date
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.DeviceCount())

	// Event broker for external consumers
	broker := events.NewBroker(events.WithLogger(log))
	defer broker.Close()

	// InfluxDB mirror (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT transport
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
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Telemetry ingestion
	cache := telemetry.NewValueCache()
	ingestorCfg := telemetry.Config{
		Registry:   registry,
		Repository: deviceRepo,
		Cache:      cache,
		Broker:     broker,
		Topics:     mqttClient.Topics(),
		QoS:        byte(cfg.MQTT.QoS),
		Logger:     log,
	}
	if influxClient != nil {
		ingestorCfg.Influx = influxClient
	}
	ingestor := telemetry.NewIngestor(ingestorCfg)

	if warmErr := ingestor.WarmCache(ctx); warmErr != nil {
		return fmt.Errorf("warming value cache: %w", warmErr)
	}

	ingestor.Start(ctx)
	defer ingestor.Stop()

	if attachErr := ingestor.Attach(mqttClient); attachErr != nil {
		return fmt.Errorf("subscribing to telemetry topics: %w", attachErr)
	}
	log.Info("telemetry ingestion started", "subscriptions", mqttClient.SubscriptionCount())

	go ingestor.RunInactivitySweep(ctx, cfg.SweepInterval(), cfg.InactivityTimeout())

	// Actuator control path
	publisher := control.NewPublisher(mqttClient, mqttClient.Topics(),
		byte(cfg.MQTT.QoS), cfg.Control.PublishRateHz, log)
	controller := control.NewController(registry, publisher, log)

	// Assembled core API for external collaborators
	coreAPI := core.New(registry, cache, controller, broker)

	// Automation rule engine drives actuators through the same core
	// surface as human and AI callers.
	ruleStore := automation.NewStore(cfg.Automation.RulesPath, log)
	engine := automation.NewEngine(automation.Config{
		Store:      ruleStore,
		Cache:      cache,
		Controller: coreAPI,
		Interval:   cfg.AutomationInterval(),
		CronGrace:  cfg.CronGraceWindow(),
		Logger:     log,
	})
	go engine.Run(ctx)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HYDROCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HYDROCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
