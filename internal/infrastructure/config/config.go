package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Aduro bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Appliance ApplianceConfig `yaml:"appliance"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies the appliance to the home-automation platform.
// It is embedded in every discovery document.
type DeviceConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
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
	// Password is never logged. Use String() for safe output.
	Password string `yaml:"password"`
}

// String returns a string representation with password masked.
func (a MQTTAuthConfig) String() string {
	password := ""
	if a.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTAuthConfig{Username:%q, Password:%s}", a.Username, password)
}

// MarshalJSON implements json.Marshaler to redact the password.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	type redacted MQTTAuthConfig
	safe := redacted(a)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DiscoveryConfig controls which discovery documents are published and where.
type DiscoveryConfig struct {
	// Prefix is the discovery namespace root, e.g. "homeassistant".
	Prefix string `yaml:"prefix"`

	// BaseTopic is the root of the plain state topics, e.g. "aduro2mqtt".
	BaseTopic string `yaml:"base_topic"`

	// Exclude is a comma-separated list of entity keys or unique ids.
	Exclude string `yaml:"exclude"`

	// Abbreviate selects short document keys (stat_t, uniq_id) over full ones.
	Abbreviate bool `yaml:"abbreviate"`

	Cleanup   CleanupConfig   `yaml:"cleanup"`
	Inference InferenceConfig `yaml:"inference"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// CleanupConfig controls retraction of previously retained documents at startup.
type CleanupConfig struct {
	Enabled bool `yaml:"enabled"`

	// Window bounds how long retained documents are collected before retraction.
	Window time.Duration `yaml:"window"`
}

// InferenceConfig controls runtime entity discovery from live telemetry.
type InferenceConfig struct {
	Enabled bool `yaml:"enabled"`

	// Topics are relative to BaseTopic, e.g. "status" or "consumption/counter".
	Topics []string `yaml:"topics"`
}

// CatalogConfig holds the field mapping choices for catalog sensors whose
// source field differs between appliance firmware variants.
type CatalogConfig struct {
	// RoomTemperatureField is the status field used for room and current temperature.
	RoomTemperatureField string `yaml:"room_temperature_field"`

	// COField is the status field for the CO sensor. Dotted ("drift.co") and
	// indexed ("drift[0]") forms are accepted.
	COField string `yaml:"co_field"`
}

// RefreshConfig controls the debounced state refresh after user commands.
type RefreshConfig struct {
	Enabled bool `yaml:"enabled"`

	// Debounce is the quiet period after the last trigger before a refresh runs.
	Debounce time.Duration `yaml:"debounce"`

	// CommandTopic is the topic user commands arrive on. Defaults to <base>/set.
	CommandTopic string `yaml:"command_topic"`

	// Groups are queried in order on every refresh.
	Groups []RefreshGroupConfig `yaml:"groups"`

	// ForwardCommands executes {"path","value"} command messages against the
	// appliance before scheduling the refresh.
	ForwardCommands bool `yaml:"forward_commands"`
}

// RefreshGroupConfig is one independently queried state group.
type RefreshGroupConfig struct {
	// Name is the group path and the state sub-topic, e.g. "settings/boiler".
	Name string `yaml:"name"`

	// Args are passed to the appliance tool after the connection arguments.
	Args []string `yaml:"args"`
}

// ApplianceConfig describes how to reach the appliance query tool.
type ApplianceConfig struct {
	Binary     string        `yaml:"binary"`
	ModuleArgs []string      `yaml:"module_args"`
	Host       string        `yaml:"host"`
	Serial     string        `yaml:"serial"`
	PIN        string        `yaml:"pin"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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

// HealthConfig controls periodic health reporting.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
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
//  2. YAML file values (skipped when path is empty)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ADURO_SECTION_KEY
// For example: ADURO_MQTT_HOST, ADURO_DISCOVERY_EXCLUDE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without file or environment input.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:           "aduro_h2",
			Name:         "Aduro H2",
			Manufacturer: "Aduro",
			Model:        "via aduro2mqtt",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "core-mosquitto",
				Port:     1883,
				ClientID: "aduro-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Discovery: DiscoveryConfig{
			Prefix:     "homeassistant",
			BaseTopic:  "aduro2mqtt",
			Exclude:    "boiler_pump_state,return_temp",
			Abbreviate: true,
			Cleanup: CleanupConfig{
				Window: 2 * time.Second,
			},
			Inference: InferenceConfig{
				Topics: []string{"status", "operating", "consumption/counter"},
			},
			Catalog: CatalogConfig{
				RoomTemperatureField: "boiler_temp",
				COField:              "drift.co",
			},
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Debounce: 600 * time.Millisecond,
			Groups: []RefreshGroupConfig{
				{Name: "status", Args: []string{"status"}},
				{Name: "settings/regulation", Args: []string{"get", "settings", "regulation.*"}},
				{Name: "settings/boiler", Args: []string{"get", "settings", "boiler.*"}},
			},
		},
		Appliance: ApplianceConfig{
			Binary:     "python3",
			ModuleArgs: []string{"-m", "pyduro"},
			Timeout:    10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/aduro-bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ADURO_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Device
	if v := os.Getenv("ADURO_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("ADURO_DEVICE_NAME"); v != "" {
		cfg.Device.Name = v
	}

	// MQTT
	if v := os.Getenv("ADURO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ADURO_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ADURO_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("ADURO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ADURO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Discovery
	if v := os.Getenv("ADURO_DISCOVERY_PREFIX"); v != "" {
		cfg.Discovery.Prefix = v
	}
	if v := os.Getenv("ADURO_DISCOVERY_BASE_TOPIC"); v != "" {
		cfg.Discovery.BaseTopic = v
	}
	if v, ok := os.LookupEnv("ADURO_DISCOVERY_EXCLUDE"); ok {
		// An explicitly empty value clears the default exclusions.
		cfg.Discovery.Exclude = v
	}
	if v := os.Getenv("ADURO_DISCOVERY_CLEANUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ADURO_DISCOVERY_CLEANUP: %w", err)
		}
		cfg.Discovery.Cleanup.Enabled = b
	}
	if v := os.Getenv("ADURO_INFERENCE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ADURO_INFERENCE_ENABLED: %w", err)
		}
		cfg.Discovery.Inference.Enabled = b
	}
	if v := os.Getenv("ADURO_INFERENCE_TOPICS"); v != "" {
		cfg.Discovery.Inference.Topics = SplitList(v)
	}

	// Refresh
	if v := os.Getenv("ADURO_REFRESH_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ADURO_REFRESH_DEBOUNCE: %w", err)
		}
		cfg.Refresh.Debounce = d
	}

	// Appliance
	if v := os.Getenv("ADURO_APPLIANCE_HOST"); v != "" {
		cfg.Appliance.Host = v
	}
	if v := os.Getenv("ADURO_APPLIANCE_SERIAL"); v != "" {
		cfg.Appliance.Serial = v
	}
	if v := os.Getenv("ADURO_APPLIANCE_PIN"); v != "" {
		cfg.Appliance.PIN = v
	}

	// InfluxDB
	if v := os.Getenv("ADURO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ADURO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}
	if strings.ContainsAny(c.Device.ID, "/#+ ") {
		errs = append(errs, "device.id must not contain '/', '#', '+' or spaces")
	}
	if c.Device.Name == "" {
		errs = append(errs, "device.name is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Discovery.Prefix == "" {
		errs = append(errs, "discovery.prefix is required")
	}
	if c.Discovery.BaseTopic == "" {
		errs = append(errs, "discovery.base_topic is required")
	}
	if c.Discovery.Cleanup.Enabled && c.Discovery.Cleanup.Window <= 0 {
		errs = append(errs, "discovery.cleanup.window must be positive")
	}

	if c.Refresh.Enabled {
		if c.Refresh.Debounce <= 0 {
			errs = append(errs, "refresh.debounce must be positive")
		}
		for i, g := range c.Refresh.Groups {
			if g.Name == "" {
				errs = append(errs, fmt.Sprintf("refresh.groups[%d].name is required", i))
			}
			if len(g.Args) == 0 {
				errs = append(errs, fmt.Sprintf("refresh.groups[%d].args is required", i))
			}
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// CommandTopic returns the configured command topic, defaulting to <base>/set.
func (c *Config) CommandTopic() string {
	if c.Refresh.CommandTopic != "" {
		return c.Refresh.CommandTopic
	}
	return c.Discovery.BaseTopic + "/set"
}

// ExcludeList returns the exclusion entries as a slice.
func (c *Config) ExcludeList() []string {
	return SplitList(c.Discovery.Exclude)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// SplitList splits a comma-separated value, trimming blanks and dropping empties.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
