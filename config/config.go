// Package config loads the bridge configuration from YAML and overlays the
// environment variables the classic container deployment uses, so the same
// binary runs from a config file, pure environment, or a mix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "APRSBRIDGE_CONFIG"

// DefaultPath is tried when EnvConfigPath is unset.
const DefaultPath = "config.yaml"

// Config is the complete bridge configuration.
type Config struct {
	APRS    APRSConfig    `yaml:"aprs"`
	Traccar TraccarConfig `yaml:"traccar"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Archive ArchiveConfig `yaml:"archive"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
	Stats   StatsConfig   `yaml:"stats"`

	LoadedFrom string `yaml:"-"`
}

// APRSConfig describes the APRS-IS feed connection.
type APRSConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Callsign string `yaml:"callsign"`
	Passcode string `yaml:"passcode"`
}

// TraccarConfig describes both Traccar surfaces: the OsmAnd location ingest
// endpoint and the REST API the device registry is polled from.
type TraccarConfig struct {
	OsmAndURL string `yaml:"osmand_url"`
	APIURL    string `yaml:"api_url"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
}

// BridgeConfig tunes the reconciliation loop.
type BridgeConfig struct {
	DeviceKeyword       string `yaml:"device_keyword"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// ArchiveConfig tunes the optional SQLite position archive.
type ArchiveConfig struct {
	Enabled                bool   `yaml:"enabled"`
	DBPath                 string `yaml:"db_path"`
	QueueSize              int    `yaml:"queue_size"`
	BatchSize              int    `yaml:"batch_size"`
	BatchIntervalMS        int    `yaml:"batch_interval_ms"`
	BusyTimeoutMS          int    `yaml:"busy_timeout_ms"`
	RetentionDays          int    `yaml:"retention_days"`
	CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
}

// MQTTConfig tunes the optional MQTT mirror of forwarded positions.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// LoggingConfig controls the optional daily log file sink.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// StatsConfig controls the periodic stats line.
type StatsConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// Load reads the YAML file at path, fills in defaults, and overlays the
// environment. A missing file is not an error: the classic deployment
// configures everything through the environment.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.LoadedFrom = path
	case os.IsNotExist(err):
		cfg.LoadedFrom = "defaults"
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// Path resolves the config file location: EnvConfigPath when set, otherwise
// DefaultPath.
func Path() string {
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	return DefaultPath
}

func defaults() *Config {
	return &Config{
		APRS: APRSConfig{
			Host:     "rotate.aprs.net",
			Port:     14580,
			Passcode: "-1",
		},
		Traccar: TraccarConfig{
			OsmAndURL: "http://traccar:8082",
		},
		Bridge: BridgeConfig{
			DeviceKeyword:       "aprs",
			PollIntervalSeconds: 60,
		},
		Archive: ArchiveConfig{
			DBPath:                 "data/positions.db",
			QueueSize:              1000,
			BatchSize:              50,
			BatchIntervalMS:        2000,
			BusyTimeoutMS:          5000,
			RetentionDays:          30,
			CleanupIntervalSeconds: 3600,
		},
		MQTT: MQTTConfig{
			Port:        1883,
			TopicPrefix: "aprsbridge/positions",
		},
		Logging: LoggingConfig{
			Dir:           "logs",
			RetentionDays: 7,
		},
		Stats: StatsConfig{
			IntervalSeconds: 300,
		},
	}
}

// applyEnv overlays the environment variables the original deployment was
// driven by. Values already present in the file are overridden: environment
// wins, matching container-first operation.
func (c *Config) applyEnv() {
	setString(&c.APRS.Callsign, "CALLSIGN")
	setString(&c.APRS.Host, "APRS_HOST")
	setInt(&c.APRS.Port, "APRS_PORT")
	setString(&c.APRS.Passcode, "APRS_PASSCODE")
	setString(&c.Traccar.OsmAndURL, "TRACCAR_HOST")
	setString(&c.Traccar.APIURL, "TRACCAR_API_URL")
	setString(&c.Traccar.User, "TRACCAR_API_USER")
	setString(&c.Traccar.Password, "TRACCAR_API_PASSWORD")
	setString(&c.Bridge.DeviceKeyword, "APRS_DEVICE_KEYWORD")
	setInt(&c.Bridge.PollIntervalSeconds, "DEVICE_POLL_INTERVAL")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: ignoring invalid %s=%q\n", key, raw)
		return
	}
	*dst = v
}

// Validate checks the startup requirements. The feed login callsign is the
// only hard requirement; the registry API falls back to the OsmAnd base URL
// when unset.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APRS.Callsign) == "" {
		return fmt.Errorf("config: feed callsign is required (set CALLSIGN or aprs.callsign)")
	}
	if c.APRS.Port <= 0 || c.APRS.Port > 65535 {
		return fmt.Errorf("config: invalid aprs port %d", c.APRS.Port)
	}
	if c.Bridge.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: poll interval must be positive")
	}
	if c.Traccar.APIURL == "" {
		c.Traccar.APIURL = c.Traccar.OsmAndURL
	}
	return nil
}

// Print displays the effective configuration.
func (c *Config) Print() {
	fmt.Printf("Feed: %s:%d (as %s)\n", c.APRS.Host, c.APRS.Port, c.APRS.Callsign)
	fmt.Printf("Traccar: ingest %s, registry %s (user %s)\n", c.Traccar.OsmAndURL, c.Traccar.APIURL, c.Traccar.User)
	fmt.Printf("Bridge: keyword %q, poll every %ds\n", c.Bridge.DeviceKeyword, c.Bridge.PollIntervalSeconds)
	if c.Archive.Enabled {
		fmt.Printf("Archive: %s (retention %dd)\n", c.Archive.DBPath, c.Archive.RetentionDays)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT mirror: %s:%d (prefix %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.TopicPrefix)
	}
	if c.Logging.Enabled {
		fmt.Printf("Log files: %s (retention %dd)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
