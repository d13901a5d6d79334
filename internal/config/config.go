// Package config loads the service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

var (
	// ErrInvalidConfig is returned when a required value is missing or out of range.
	ErrInvalidConfig = errors.New("config: invalid configuration")

	// ErrInvalidTiming is returned when the suppression window does not outlast the debounce.
	ErrInvalidTiming = errors.New("config: sync.command_timeout must be greater than sync.debounce")
)

const envPrefix = "PLUGSYNC"

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	DB       DBConfig       `mapstructure:"db"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

// MQTTConfig describes the broker connection and topic layout.
type MQTTConfig struct {
	URL       string `mapstructure:"url"`
	ClientID  string `mapstructure:"client_id"`
	BaseTopic string `mapstructure:"base_topic"`
	Group     string `mapstructure:"group"`
	QoS       int    `mapstructure:"qos"`
}

// SyncConfig holds the reconciliation timings.
type SyncConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// InfluxDBConfig configures the optional command telemetry sink.
type InfluxDBConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	Org           string        `mapstructure:"org"`
	Bucket        string        `mapstructure:"bucket"`
	BatchSize     uint          `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// legacyEnv maps keys to the plain variable names older deployments use.
var legacyEnv = map[string]string{
	"mqtt.url":   "MQTT_CONNECTION_STRING",
	"mqtt.group": "ZIGBEE_GROUP",
	"http.port":  "PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "5000")
	v.SetDefault("db.path", "plugs.db")
	v.SetDefault("mqtt.url", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.base_topic", "zigbee2mqtt")
	v.SetDefault("mqtt.group", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("sync.command_timeout", 2*time.Second)
	v.SetDefault("sync.sweep_interval", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("influxdb.enabled", false)
	v.SetDefault("influxdb.url", "http://localhost:8086")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "plug_sync")
	v.SetDefault("influxdb.batch_size", 100)
	v.SetDefault("influxdb.flush_interval", 10*time.Second)
}

// New returns a viper instance with defaults and environment bindings in place.
// Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		// the prefixed name wins over the legacy one
		_ = v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}
	return v
}

// Load reads file (or configs/config.yml when file is empty and it exists),
// decodes everything and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if err := readFile(v, file); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "plug-sync-" + uuid.NewString()[:8]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: read %s: %w", file, err)
		}
		return nil
	}

	v.AddConfigPath("configs") // configs/config.yml
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read: %w", err)
	}
	return nil
}

// Validate checks required values and timing constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.MQTT.URL) == "":
		return fmt.Errorf("%w: mqtt.url (MQTT_CONNECTION_STRING) is required", ErrInvalidConfig)
	case strings.TrimSpace(c.MQTT.Group) == "":
		return fmt.Errorf("%w: mqtt.group (ZIGBEE_GROUP) is required", ErrInvalidConfig)
	case strings.Contains(c.MQTT.Group, "/") || strings.ContainsAny(c.MQTT.Group, "+#"):
		return fmt.Errorf("%w: mqtt.group must be a single topic level", ErrInvalidConfig)
	case c.MQTT.QoS < 0 || c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	case c.HTTP.Port == "":
		return fmt.Errorf("%w: http.port is required", ErrInvalidConfig)
	case c.DB.Path == "":
		return fmt.Errorf("%w: db.path is required", ErrInvalidConfig)
	case c.Sync.Debounce <= 0 || c.Sync.CommandTimeout <= 0 || c.Sync.SweepInterval <= 0:
		return fmt.Errorf("%w: sync durations must be positive", ErrInvalidConfig)
	case c.Sync.CommandTimeout <= c.Sync.Debounce:
		return ErrInvalidTiming
	case c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == ""):
		return fmt.Errorf("%w: influxdb.url and influxdb.bucket are required when enabled", ErrInvalidConfig)
	}
	return nil
}
