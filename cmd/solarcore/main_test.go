package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/solar-control-core/internal/infrastructure/config"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// TestRun_InvalidConfig verifies run fails on an unparseable config file.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SOLARCORE_CONFIG", writeConfig(t, "mqtt: [not, a, map"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want config error", err)
	}
}

// TestRun_InvalidTimezone verifies validation errors stop startup.
func TestRun_InvalidTimezone(t *testing.T) {
	t.Setenv("SOLARCORE_CONFIG", writeConfig(t, `
site:
  timezone: "Mars/Olympus_Mons"
`))

	err := run(context.Background())
	if err == nil {
		t.Fatal("run() should fail with an unknown timezone")
	}
}

// TestRun_BrokerUnavailable verifies startup reaches the MQTT step and fails
// when no broker is listening.
func TestRun_BrokerUnavailable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "solarcore.db")
	t.Setenv("SOLARCORE_CONFIG", writeConfig(t, `
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "solarcore-test"
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 1

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr
`))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Skip("a broker answered on 127.0.0.1:1")
	}
	if !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("run() error = %v, want MQTT connection error", err)
	}

	// Database and migrations ran before the broker step
	if _, statErr := os.Stat(dbPath); statErr != nil {
		t.Errorf("database file not created: %v", statErr)
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, fromFile, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if fromFile {
		t.Error("loadConfig() fromFile = true, want false")
	}
	if cfg.API.Port != 3000 {
		t.Errorf("API.Port = %d, want 3000", cfg.API.Port)
	}
	if cfg.MQTT.Namespace != "solar_assistant_DEYE" {
		t.Errorf("MQTT.Namespace = %q, want solar_assistant_DEYE", cfg.MQTT.Namespace)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 3100
`)
	cfg, fromFile, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if !fromFile {
		t.Error("loadConfig() fromFile = false, want true")
	}
	if cfg.API.Port != 3100 {
		t.Errorf("API.Port = %d, want 3100", cfg.API.Port)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("SOLARCORE_CONFIG", "")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	customPath := "/custom/path/config.yaml"
	t.Setenv("SOLARCORE_CONFIG", customPath)

	if got := getConfigPath(); got != customPath {
		t.Errorf("getConfigPath() = %q, want %q", got, customPath)
	}
}

func TestClosers_ReverseOrder(t *testing.T) {
	var order []string
	var stack closers
	for _, name := range []string{"database", "mqtt", "api"} {
		stack.push(name, func() error {
			order = append(order, name)
			if name == "mqtt" {
				return errors.New("already closed")
			}
			return nil
		})
	}

	stack.closeAll(logging.NewWithWriter(config.LoggingConfig{}, "test", io.Discard))

	if got := strings.Join(order, ","); got != "api,mqtt,database" {
		t.Errorf("close order = %s, want api,mqtt,database", got)
	}
}
