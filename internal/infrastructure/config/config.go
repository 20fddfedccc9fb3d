package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HydroCore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
	Control    ControlConfig    `yaml:"control"`
	Automation AutomationConfig `yaml:"automation"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
}

// SiteConfig contains installation-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains settings for the optional time-series mirror.
// When disabled, readings are persisted to SQLite only.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTTopicsConfig contains the device topic namespace.
// Base is the prefix field devices publish under (e.g. "esp32" yields
// "esp32/data", "esp32/{device}/discovery", ...).
type MQTTTopicsConfig struct {
	Base string `yaml:"base"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ControlConfig contains actuator command publishing settings.
type ControlConfig struct {
	// PublishRateHz caps outbound control publishes per topic per second.
	// Commands arriving faster are coalesced (last state per actuator wins).
	PublishRateHz float64 `yaml:"publish_rate_hz"`
}

// AutomationConfig contains rule engine settings.
type AutomationConfig struct {
	// RulesPath is the JSON rule document, hot-reloaded on mtime change.
	RulesPath string `yaml:"rules_path"`

	// Interval is the seconds between evaluation cycles.
	Interval int `yaml:"interval"`

	// CronGrace is the seconds after a scheduled cron tick during which the
	// tick still counts as due. Must be at least twice the interval so a
	// tick cannot fall between two evaluation cycles.
	CronGrace int `yaml:"cron_grace"`
}

// DiscoveryConfig contains device liveness settings.
type DiscoveryConfig struct {
	// InactivityTimeout is the seconds without a message before a device is
	// marked inactive.
	InactivityTimeout int `yaml:"inactivity_timeout"`

	// SweepInterval is the seconds between inactivity sweeps.
	SweepInterval int `yaml:"sweep_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HYDROCORE_SECTION_KEY
// For example: HYDROCORE_DATABASE_PATH, HYDROCORE_MQTT_HOST
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
			ID:       "grow-001",
			Name:     "HydroCore",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/hydrocore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hydrocore",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			Topics: MQTTTopicsConfig{
				Base: "esp32",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Control: ControlConfig{
			PublishRateHz: 2,
		},
		Automation: AutomationConfig{
			RulesPath: "./data/automation_rules.json",
			Interval:  30,
			CronGrace: 60,
		},
		Discovery: DiscoveryConfig{
			InactivityTimeout: 300,
			SweepInterval:     60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HYDROCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HYDROCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HYDROCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HYDROCORE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("HYDROCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HYDROCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("HYDROCORE_MQTT_BASE_TOPIC"); v != "" {
		cfg.MQTT.Topics.Base = v
	}

	// InfluxDB
	if v := os.Getenv("HYDROCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Automation
	if v := os.Getenv("HYDROCORE_AUTOMATION_RULES_PATH"); v != "" {
		cfg.Automation.RulesPath = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
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

	if strings.Trim(c.MQTT.Topics.Base, "/") == "" {
		errs = append(errs, "mqtt.topics.base is required")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.Control.PublishRateHz <= 0 {
		errs = append(errs, "control.publish_rate_hz must be positive")
	}

	if c.Automation.Interval <= 0 {
		errs = append(errs, "automation.interval must be positive")
	}

	// A cron tick must not be able to fall between evaluation cycles: the
	// grace window has to cover at least two intervals.
	if c.Automation.CronGrace < 2*c.Automation.Interval {
		errs = append(errs, "automation.cron_grace must be at least twice automation.interval")
	}

	if c.Discovery.InactivityTimeout <= 0 {
		errs = append(errs, "discovery.inactivity_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AutomationInterval returns the rule evaluation interval as a Duration.
func (c *Config) AutomationInterval() time.Duration {
	return time.Duration(c.Automation.Interval) * time.Second
}

// CronGraceWindow returns the cron grace window as a Duration.
func (c *Config) CronGraceWindow() time.Duration {
	return time.Duration(c.Automation.CronGrace) * time.Second
}

// InactivityTimeout returns the device inactivity cutoff as a Duration.
func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.Discovery.InactivityTimeout) * time.Second
}

// SweepInterval returns the inactivity sweep interval as a Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Discovery.SweepInterval) * time.Second
}
