package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envPrefix starts every override variable: SOLARCORE_<SECTION>_<KEY>.
const envPrefix = "SOLARCORE_"

// Load builds the configuration in three layers: built-in defaults, then
// the YAML file at path, then SOLARCORE_* environment variables. The
// result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return finish(cfg)
}

// Default is Load without a file: built-in values plus environment.
func Default() (*Config, error) {
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}

	cfg.Site = SiteConfig{ID: "site-001", Name: "Solar Control", Timezone: "Local"}
	cfg.Database = DatabaseConfig{Path: "./data/solarcore.db", WALMode: true, BusyTimeout: 5}

	cfg.MQTT.Broker = MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "solarcore"}
	cfg.MQTT.QoS = 1
	cfg.MQTT.Reconnect = MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 60}
	cfg.MQTT.Namespace = "solar_assistant_DEYE"

	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 3000
	cfg.API.Timeouts = APITimeoutConfig{Read: 30, Write: 30, Idle: 60}

	cfg.WebSocket = WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	cfg.InfluxDB = InfluxDBConfig{BatchSize: 100, FlushInterval: 10}
	cfg.Engine.IntervalSeconds = 60
	cfg.Logging = LoggingConfig{Level: "info", Format: "json", Output: "stdout"}
	return cfg
}

// envOverride binds one variable (without the prefix) to a setter. A
// setter returning false leaves the current value in place.
type envOverride struct {
	key string
	set func(c *Config, v string) bool
}

func str(field func(c *Config) *string) func(*Config, string) bool {
	return func(c *Config, v string) bool {
		*field(c) = v
		return true
	}
}

func num(field func(c *Config) *int) func(*Config, string) bool {
	return func(c *Config, v string) bool {
		n, err := strconv.Atoi(v)
		if err != nil {
			return false
		}
		*field(c) = n
		return true
	}
}

func flag(field func(c *Config) *bool) func(*Config, string) bool {
	return func(c *Config, v string) bool {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false
		}
		*field(c) = b
		return true
	}
}

var envOverrides = []envOverride{
	{"SITE_ID", str(func(c *Config) *string { return &c.Site.ID })},
	{"SITE_TIMEZONE", str(func(c *Config) *string { return &c.Site.Timezone })},
	{"DATABASE_PATH", str(func(c *Config) *string { return &c.Database.Path })},

	{"MQTT_HOST", str(func(c *Config) *string { return &c.MQTT.Broker.Host })},
	{"MQTT_PORT", num(func(c *Config) *int { return &c.MQTT.Broker.Port })},
	{"MQTT_USERNAME", str(func(c *Config) *string { return &c.MQTT.Auth.Username })},
	{"MQTT_PASSWORD", str(func(c *Config) *string { return &c.MQTT.Auth.Password })},
	{"MQTT_NAMESPACE", str(func(c *Config) *string { return &c.MQTT.Namespace })},

	{"API_HOST", str(func(c *Config) *string { return &c.API.Host })},
	{"API_PORT", num(func(c *Config) *int { return &c.API.Port })},
	{"API_STATIC_DIR", str(func(c *Config) *string { return &c.API.StaticDir })},

	{"INFLUXDB_ENABLED", flag(func(c *Config) *bool { return &c.InfluxDB.Enabled })},
	{"INFLUXDB_URL", str(func(c *Config) *string { return &c.InfluxDB.URL })},
	{"INFLUXDB_TOKEN", str(func(c *Config) *string { return &c.InfluxDB.Token })},

	{"ENGINE_INTERVAL_SECONDS", num(func(c *Config) *int { return &c.Engine.IntervalSeconds })},
	{"LOGGING_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOGGING_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

// applyEnvOverrides applies every set, non-empty override. Values that do
// not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(envPrefix + o.key); v != "" {
			o.set(cfg, v)
		}
	}
}
