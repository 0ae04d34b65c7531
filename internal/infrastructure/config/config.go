package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for crowlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Crow     CrowConfig     `yaml:"crow"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// CrowConfig contains Crow Cloud API connection settings.
type CrowConfig struct {
	// APIBase is the Crow Cloud API base URL.
	APIBase string `yaml:"api_base"`

	// Email and Password are the Crow Cloud account credentials.
	// Password is sensitive and must never be logged.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`

	// RetryCount is the number of retries after the initial attempt.
	RetryCount int `yaml:"retry_count"`

	Backoff  BackoffConfig  `yaml:"backoff"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// BackoffConfig contains retry backoff settings shared by request
// retries and realtime reconnection.
type BackoffConfig struct {
	// Base is the first retry delay in seconds (fractions allowed).
	Base float64 `yaml:"base"`

	// Multiplier scales the delay per consecutive failure.
	Multiplier float64 `yaml:"multiplier"`

	// Max caps the delay in seconds.
	Max float64 `yaml:"max"`

	// Jitter randomises delays to avoid synchronised retry storms.
	Jitter bool `yaml:"jitter"`
}

// RealtimeConfig contains realtime event feed settings.
type RealtimeConfig struct {
	// Dwell is how long a connection must stay up, in seconds, before
	// the reconnect failure counter resets.
	Dwell int `yaml:"dwell"`
}

// BridgeConfig contains settings for the MQTT mirror daemon.
type BridgeConfig struct {
	// Panels lists the MAC addresses of panels to mirror. Empty means
	// every panel visible to the account.
	Panels []string `yaml:"panels"`

	// PollInterval is the measurement poll interval in seconds.
	PollInterval int `yaml:"poll_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for the
// measurement recorder.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite event journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from the YAML file at path, applies
// environment variable overrides, and validates the result.
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Crow: CrowConfig{
			APIBase:    "https://api.crowcloud.xyz",
			Timeout:    30,
			RetryCount: 3,
			Backoff: BackoffConfig{
				Base:       1,
				Multiplier: 2,
				Max:        60,
				Jitter:     true,
			},
			Realtime: RealtimeConfig{
				Dwell: 60,
			},
		},
		Bridge: BridgeConfig{
			PollInterval: 300,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "crowlink",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/crowlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CROWLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Crow Cloud credentials (preferred over storing them in YAML)
	if v := os.Getenv("CROWLINK_CROW_EMAIL"); v != "" {
		cfg.Crow.Email = v
	}
	if v := os.Getenv("CROWLINK_CROW_PASSWORD"); v != "" {
		cfg.Crow.Password = v
	}
	if v := os.Getenv("CROWLINK_CROW_API_BASE"); v != "" {
		cfg.Crow.APIBase = v
	}

	// MQTT
	if v := os.Getenv("CROWLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CROWLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CROWLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("CROWLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("CROWLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Crow validation
	if c.Crow.APIBase == "" {
		errs = append(errs, "crow.api_base is required")
	}
	if c.Crow.Email == "" {
		errs = append(errs, "crow.email is required (set CROWLINK_CROW_EMAIL environment variable)")
	}
	if c.Crow.Password == "" {
		errs = append(errs, "crow.password is required (set CROWLINK_CROW_PASSWORD environment variable)")
	}
	if c.Crow.RetryCount < 0 {
		errs = append(errs, "crow.retry_count must not be negative")
	}
	if c.Crow.Backoff.Multiplier != 0 && c.Crow.Backoff.Multiplier < 1 {
		errs = append(errs, "crow.backoff.multiplier must be at least 1")
	}

	// Bridge validation
	for _, mac := range c.Bridge.Panels {
		if mac == "" {
			errs = append(errs, "bridge.panels must not contain empty entries")
		}
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTimeout returns the per-request timeout as a Duration.
func (c *CrowConfig) GetTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// GetDwell returns the realtime reconnect dwell as a Duration.
func (c *RealtimeConfig) GetDwell() time.Duration {
	if c.Dwell <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Dwell) * time.Second
}

// GetPollInterval returns the measurement poll interval as a Duration.
func (c *BridgeConfig) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.PollInterval) * time.Second
}
