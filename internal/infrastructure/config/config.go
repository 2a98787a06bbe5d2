package config

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors configs/config.yaml. Durations are whole seconds.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
	Defaults  DefaultsConfig  `yaml:"defaults"`
}

// SiteConfig identifies the installation. Timezone is the IANA zone that
// schedules and time conditions are evaluated in.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig is the Solar Assistant broker connection.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// Namespace is the topic root for telemetry and commands,
	// e.g. "solar_assistant_DEYE".
	Namespace string `yaml:"namespace"`

	// Subscribe replaces the default "<namespace>/#" telemetry filter.
	Subscribe string `yaml:"subscribe"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig bounds paho's reconnect backoff.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// StaticDir, when set, is served at "/" (the dashboard build).
	StaticDir string `yaml:"static_dir"`
}

type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

func (t APITimeoutConfig) ReadTimeout() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteTimeout() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleTimeout() time.Duration  { return seconds(t.Idle) }

// CORSConfig lists what the dashboard origin may send. Empty means any.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig is the optional automation audit sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// EngineConfig sets how often rules and schedules are evaluated.
type EngineConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultsConfig seeds the settings store the first time it starts. The
// nodes are plain YAML and decoded by the settings package.
type DefaultsConfig struct {
	UniversalSettings yaml.Node `yaml:"universal_settings"`
	InverterTypes     yaml.Node `yaml:"inverter_types"`
	InverterType      string    `yaml:"inverter_type"`
}

// SubscribeTopic is the telemetry filter: mqtt.subscribe, or the whole
// namespace.
func (c *Config) SubscribeTopic() string {
	if c.MQTT.Subscribe != "" {
		return c.MQTT.Subscribe
	}
	return strings.TrimSuffix(c.MQTT.Namespace, "/") + "/#"
}

// Location is the site timezone, UTC if it does not load. Validate rejects
// zones that do not load.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Site.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

func (c *Config) EngineInterval() time.Duration {
	return seconds(c.Engine.IntervalSeconds)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
