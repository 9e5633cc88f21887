package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for IceTray.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Build    BuildConfig    `yaml:"build"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BuildConfig controls artifact generation and where artifacts are written.
type BuildConfig struct {
	// TargetFile is the protocol file named in every record's INP/OUT
	// link. It defaults to ProtoFile and must equal it when both are set,
	// so the records resolve against the protocol written beside them.
	TargetFile string `yaml:"target_file"`

	// OutputDir receives one sub-directory per IceCube.
	OutputDir string `yaml:"output_dir"`

	// DBFile and ProtoFile are the artifact file names inside that directory.
	DBFile    string `yaml:"db_file"`
	ProtoFile string `yaml:"proto_file"`

	// DocumentFile is the canonical JSON document written next to the artifacts.
	DocumentFile string `yaml:"document_file"`
}

// DatabaseConfig contains SQLite database settings for the catalogue.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings for build telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Textfile, when set, receives the metric registry after every CLI
	// build, for node_exporter's textfile collector.
	Textfile string `yaml:"textfile"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ICETRAY_SECTION_KEY
// For example: ICETRAY_DATABASE_PATH, ICETRAY_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Build.linkProtocol()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults and environment overrides
// applied. It is used when no configuration file exists.
func Default() *Config {
	cfg := defaults()
	applyEnvOverrides(cfg)
	cfg.Build.linkProtocol()
	return cfg
}

// linkProtocol points records at the protocol file when no target is set.
func (b *BuildConfig) linkProtocol() {
	if b.TargetFile == "" {
		b.TargetFile = b.ProtoFile
	}
}

func defaults() *Config {
	return &Config{
		Build: BuildConfig{
			OutputDir:    "./build",
			DBFile:       "icecube.db",
			ProtoFile:    "arduino.proto",
			DocumentFile: "icecube.json",
		},
		Database: DatabaseConfig{
			Path:        "./data/icetray.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "icetray",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ICETRAY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Build
	if v := os.Getenv("ICETRAY_BUILD_OUTPUT_DIR"); v != "" {
		cfg.Build.OutputDir = v
	}
	if v := os.Getenv("ICETRAY_BUILD_PROTO_FILE"); v != "" {
		cfg.Build.ProtoFile = v
	}

	// Database
	if v := os.Getenv("ICETRAY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ICETRAY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ICETRAY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ICETRAY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ICETRAY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("ICETRAY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("ICETRAY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ICETRAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Build validation
	if c.Build.OutputDir == "" {
		errs = append(errs, "build.output_dir is required")
	}
	if c.Build.TargetFile == "" {
		errs = append(errs, "build.target_file is required")
	} else if strings.ContainsAny(c.Build.TargetFile, "\" \t\\") {
		errs = append(errs, "build.target_file must not contain quotes, spaces or backslashes")
	} else if c.Build.TargetFile != c.Build.ProtoFile {
		errs = append(errs, fmt.Sprintf("build.target_file %q must name build.proto_file %q",
			c.Build.TargetFile, c.Build.ProtoFile))
	}
	for key, name := range map[string]string{
		"build.db_file":       c.Build.DBFile,
		"build.proto_file":    c.Build.ProtoFile,
		"build.document_file": c.Build.DocumentFile,
	} {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errs = append(errs, key+" must be a plain file name")
		}
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required when mqtt is enabled")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
