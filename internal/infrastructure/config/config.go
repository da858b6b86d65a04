package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic sensor daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sensors  SensorsConfig  `yaml:"sensors"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
// Readings are only written when Enabled is true.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SensorsConfig contains the polling worker settings and the device list.
type SensorsConfig struct {
	// TopicPrefix is the base for reading, availability and health topics.
	// Default: "graylogic/sensors/mithermometer"
	TopicPrefix string `yaml:"topic_prefix"`

	// DiscoveryPrefix is the base for discovery config topics.
	// Default: "homeassistant"
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// PollInterval is the time between sweeps (seconds).
	// Default: 300
	PollInterval int `yaml:"poll_interval"`

	// PerDeviceTimeout bounds one device update including retries (seconds).
	// Default: 8
	PerDeviceTimeout int `yaml:"per_device_timeout"`

	// UpdateRetries is the number of extra attempts after a communication error.
	// Default: 3
	UpdateRetries int `yaml:"update_retries"`

	// OfflineThreshold is the number of consecutive failures before a device
	// is reported offline.
	// Default: 5
	OfflineThreshold int `yaml:"offline_threshold"`

	// Concurrency is how many devices are read in parallel within a sweep.
	// Default: 1 (sequential)
	Concurrency int `yaml:"concurrency"`

	// HealthInterval is how often worker health is published (seconds).
	// Default: 30
	HealthInterval int `yaml:"health_interval"`

	// Adapter is the Bluetooth adapter used to reach the devices.
	// Default: "hci0"
	Adapter string `yaml:"adapter"`

	// Devices maps a device name to its Bluetooth MAC address.
	Devices map[string]string `yaml:"devices"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_SENSORS_POLL_INTERVAL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/sensord.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-sensord",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Sensors: SensorsConfig{
			TopicPrefix:      "graylogic/sensors/mithermometer",
			DiscoveryPrefix:  "homeassistant",
			PollInterval:     300,
			PerDeviceTimeout: 8,
			UpdateRetries:    3,
			OfflineThreshold: 5,
			Concurrency:      1,
			HealthInterval:   30,
			Adapter:          "hci0",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Sensors. Unparseable numbers are ignored and the file value kept.
	if v := os.Getenv("GRAYLOGIC_SENSORS_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sensors.PollInterval = n
		}
	}
	if v := os.Getenv("GRAYLOGIC_SENSORS_ADAPTER"); v != "" {
		cfg.Sensors.Adapter = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.Sensors.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate returns the problems found in the sensors section.
func (s SensorsConfig) validate() []string {
	var errs []string

	if s.TopicPrefix == "" {
		errs = append(errs, "sensors.topic_prefix is required")
	}
	if s.PollInterval < 1 {
		errs = append(errs, "sensors.poll_interval must be at least 1 second")
	}
	if s.PerDeviceTimeout < 1 {
		errs = append(errs, "sensors.per_device_timeout must be at least 1 second")
	}
	if s.UpdateRetries < 0 {
		errs = append(errs, "sensors.update_retries cannot be negative")
	}
	if s.OfflineThreshold < 1 {
		errs = append(errs, "sensors.offline_threshold must be at least 1")
	}
	if s.Concurrency < 1 {
		errs = append(errs, "sensors.concurrency must be at least 1")
	}
	if len(s.Devices) == 0 {
		errs = append(errs, "sensors.devices must list at least one device")
	}

	for _, name := range s.DeviceNames() {
		mac := s.Devices[name]
		if strings.ContainsAny(name, "/+#") {
			errs = append(errs, fmt.Sprintf("sensors.devices: name %q contains MQTT topic characters", name))
		}
		if _, err := net.ParseMAC(mac); err != nil {
			errs = append(errs, fmt.Sprintf("sensors.devices.%s: invalid MAC address %q", name, mac))
		}
	}

	return errs
}

// DeviceNames returns the configured device names in sorted order.
// Sweeps visit devices in this order so message output is reproducible.
func (s SensorsConfig) DeviceNames() []string {
	names := make([]string, 0, len(s.Devices))
	for name := range s.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPollInterval returns the sweep interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Sensors.PollInterval) * time.Second
}

// GetPerDeviceTimeout returns the per-device update bound as a Duration.
func (c *Config) GetPerDeviceTimeout() time.Duration {
	return time.Duration(c.Sensors.PerDeviceTimeout) * time.Second
}

// GetHealthInterval returns the health publishing interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Sensors.HealthInterval) * time.Second
}
