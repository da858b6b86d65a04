// Gray Logic Sensor Daemon
//
// Polls Xiaomi Mijia Bluetooth thermometers and publishes their readings,
// availability and Home Assistant discovery configs over MQTT. Readings and
// availability transitions are optionally recorded in InfluxDB, and every
// configured device is tracked in a local SQLite registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-sensord/internal/bridges/mithermometer"
	"github.com/nerrad567/gray-logic-sensord/internal/device"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sensord/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sensord/internal/sensor"
	"github.com/nerrad567/gray-logic-sensord/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/sensord.yaml"
	serviceName       = "graylogic-sensord"

	// historyRetention is how long availability transitions are kept.
	historyRetention = 90 * 24 * time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon's lifecycle, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing the startup failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic sensor daemon",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Device registry
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	registry := device.NewSQLiteRepository(db.DB)
	if seedErr := seedRegistry(ctx, registry, cfg.Sensors); seedErr != nil {
		return fmt.Errorf("seeding device registry: %w", seedErr)
	}
	if pruned, pruneErr := registry.Prune(ctx, historyRetention); pruneErr != nil {
		log.Warn("failed to prune availability history", "error", pruneErr)
	} else if pruned > 0 {
		log.Info("pruned availability history", "rows", pruned)
	}

	// MQTT with a retained health topic and LWT
	topics := sensor.Topics{Prefix: cfg.Sensors.TopicPrefix}
	starting, offline, stopping, err := sensor.StatusPayloads(serviceName, version)
	if err != nil {
		return fmt.Errorf("building status payloads: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, &mqtt.StatusMessages{
		Topic:    topics.Health(),
		Online:   starting,
		Offline:  offline,
		Stopping: stopping,
	})
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	observers := []sensor.Observer{&registryObserver{repo: registry, log: log}}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		observers = append(observers, &historyObserver{writer: influxClient})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Poller
	prefixes := sensor.Prefixes{Topics: topics, Discovery: cfg.Sensors.DiscoveryPrefix}
	transport := mithermometer.NewBLETransport(cfg.Sensors.Adapter)
	poller, err := sensor.NewPoller(sensor.PollerConfig{
		Devices:          buildDevices(cfg.Sensors, transport),
		Prefixes:         prefixes,
		Interval:         cfg.GetPollInterval(),
		Timeout:          cfg.GetPerDeviceTimeout(),
		Retries:          cfg.Sensors.UpdateRetries,
		OfflineThreshold: cfg.Sensors.OfflineThreshold,
		Concurrency:      cfg.Sensors.Concurrency,
		QoS:              byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2
		Publisher:        mqttClient,
		Observers:        observers,
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	defer func() {
		if closeErr := poller.Close(); closeErr != nil {
			log.Error("error closing device readers", "error", closeErr)
		}
	}()

	health := sensor.NewHealthReporter(sensor.HealthReporterConfig{
		Service:   serviceName,
		Version:   version,
		Topics:    topics,
		Interval:  cfg.GetHealthInterval(),
		Publisher: mqttClient,
		Source:    poller,
		Logger:    log,
	})

	// Discovery: on startup, on every reconnect and whenever the consumer
	// reports back online.
	announce := func() {
		if announceErr := poller.AnnounceDiscovery(); announceErr != nil {
			log.Warn("failed to publish discovery", "error", announceErr)
		}
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		announce()
		if pubErr := health.PublishNow(); pubErr != nil {
			log.Warn("failed to publish health", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	if subErr := mqttClient.Subscribe(prefixes.StatusTopic(), 1, poller.HandleDiscoveryStatus); subErr != nil {
		return fmt.Errorf("subscribing to discovery status: %w", subErr)
	}
	announce()

	if checkErr := healthCheck(ctx, db, mqttClient); checkErr != nil {
		log.Warn("startup health check failed", "error", checkErr)
	}

	health.Start(ctx)
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if runErr := poller.Run(ctx); runErr != nil {
			log.Error("poller stopped", "error", runErr)
		}
	}()

	log.Info("sensor daemon started",
		"devices", len(cfg.Sensors.Devices),
		"poll_interval", cfg.GetPollInterval(),
		"concurrency", cfg.Sensors.Concurrency,
	)

	<-ctx.Done()
	log.Info("shutting down")

	<-pollDone
	health.Stop()

	log.Info("sensor daemon stopped")
	return nil
}

// getConfigPath returns GRAYLOGIC_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDevices creates one reader per configured device, in name order.
func buildDevices(cfg config.SensorsConfig, transport mithermometer.Transport) []sensor.Device {
	names := cfg.DeviceNames()
	devices := make([]sensor.Device, 0, len(names))
	for _, name := range names {
		mac := cfg.Devices[name]
		devices = append(devices, sensor.Device{
			Name:   name,
			MAC:    mac,
			Reader: mithermometer.NewReader(mac, transport, 0),
		})
	}
	return devices
}

// seedRegistry registers every configured device.
func seedRegistry(ctx context.Context, repo device.Repository, cfg config.SensorsConfig) error {
	for _, name := range cfg.DeviceNames() {
		if err := repo.Register(ctx, name, cfg.Devices[name]); err != nil {
			return err
		}
	}
	return nil
}

// healthCheck verifies the registry database and broker connection.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
