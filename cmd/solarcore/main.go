// Command solarcore is the Solar Control Core service.
//
// It follows Solar Assistant telemetry on the MQTT bus, keeps the live
// device state, and drives inverter settings from operator rules and
// weekly schedules. Operators use the REST API and the /ws event stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/solar-control-core/migrations"

	"github.com/nerrad567/solar-control-core/internal/api"
	"github.com/nerrad567/solar-control-core/internal/automation"
	"github.com/nerrad567/solar-control-core/internal/command"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/config"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/database"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/logging"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/metrics"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/solar-control-core/internal/notify"
	"github.com/nerrad567/solar-control-core/internal/settings"
	"github.com/nerrad567/solar-control-core/internal/state"
	"github.com/nerrad567/solar-control-core/internal/telemetry"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	configEnv         = "SOLARCORE_CONFIG"
	defaultConfigPath = "configs/config.yaml"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "solarcore: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component, blocks until ctx is cancelled, then shuts
// them down in reverse start order.
func run(ctx context.Context) error { //nolint:funlen // startup wiring reads top to bottom
	log := logging.Default()
	log.Info("starting Solar Control Core", "version", version, "commit", commit, "build_date", date)

	path := getConfigPath()
	cfg, fromFile, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	if fromFile {
		log.Info("configuration loaded", "path", path, "level", cfg.Logging.Level)
	} else {
		log.Warn("config file not found, using built-in defaults", "path", path)
	}

	var stack closers
	defer func() { stack.closeAll(log) }()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	stack.push("database", db.Close)

	registry := automation.NewRegistry(automation.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("automation"))
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading automation registry: %w", err)
	}
	log.Info("automation loaded", "rules", registry.RuleCount(), "schedules", registry.ScheduleCount())

	settingsStore, err := loadSettings(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	m := metrics.New()

	audit, err := connectAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	if audit != nil {
		stack.push("influxdb", audit.Close)
	}

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hub.SetGauge(m)
	go hub.Run(ctx)

	// Every observer event reaches WebSocket clients, and the audit when enabled.
	var observers notify.Notifier = hub
	if audit != nil {
		observers = notify.Multi(hub, audit)
	}

	bus, err := connectBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	stack.push("mqtt", bus.Close)

	pubOpts := command.Options{
		QoS:      byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		Notifier: observers,
		Logger:   log.Component("command"),
		Metrics:  m,
	}
	if audit != nil {
		pubOpts.Auditor = audit
	}
	publisher := command.NewPublisher(bus, pubOpts)

	stateStore := state.NewStore(state.WithNotifier(observers))
	if err := subscribeTelemetry(cfg, bus, stateStore, m, log); err != nil {
		return err
	}

	deps := automation.Deps{
		Publisher: publisher,
		Notifier:  observers,
		Namespace: cfg.MQTT.Namespace,
		Logger:    log.Component("automation"),
		Metrics:   m,
	}
	scheduler := automation.NewScheduler(
		automation.NewScheduleEngine(registry, deps),
		automation.NewRuleEngine(registry, automation.NewEvaluator(log.Component("automation")), deps),
		stateStore,
		automation.SchedulerConfig{
			Interval: cfg.EngineInterval(),
			Location: cfg.Location(),
			Logger:   log.Component("scheduler"),
			Observer: m,
		},
	)
	go scheduler.Run(ctx)

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		State:     stateStore,
		Registry:  registry,
		Settings:  settingsStore,
		Publisher: publisher,
		Topics:    bus.Topics(),
		Bus:       bus,
		DB:        db,
		Metrics:   m,
		Hub:       hub,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	stack.push("api", server.Close)

	if err := healthCheck(ctx, db, bus, audit); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("ready", "api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port), "interval", cfg.EngineInterval())

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

type closer struct {
	name string
	fn   func() error
}

// closers runs cleanup functions last-in first-out.
type closers []closer

func (cs *closers) push(name string, fn func() error) {
	*cs = append(*cs, closer{name, fn})
}

func (cs closers) closeAll(log *logging.Logger) {
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].fn(); err != nil {
			log.Error("shutdown step failed", "component", cs[i].name, "error", err)
			continue
		}
		log.Info("stopped", "component", cs[i].name)
	}
}

// getConfigPath is $SOLARCORE_CONFIG or configs/config.yaml.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the file at path. When the file does not exist the
// built-in defaults are used instead and fromFile is false.
func loadConfig(path string) (cfg *config.Config, fromFile bool, err error) {
	cfg, err = config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, false, err
	}
	cfg, err = config.Default()
	return cfg, false, err
}

func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	schema, _ := db.SchemaVersion(ctx) //nolint:errcheck // informational
	log.Info("database ready", "path", cfg.Database.Path, "schema", schema)
	return db, nil
}

// loadSettings opens the settings store, seeding it from the config
// defaults when the database holds no documents yet.
func loadSettings(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*settings.Store, error) {
	defaults, err := settings.DefaultsFromYAML(
		&cfg.Defaults.UniversalSettings,
		&cfg.Defaults.InverterTypes,
		cfg.Defaults.InverterType,
	)
	if err != nil {
		return nil, fmt.Errorf("reading settings defaults: %w", err)
	}

	store := settings.NewStore(settings.NewSQLiteRepository(db.DB))
	store.SetLogger(log.Component("settings"))
	if err := store.Load(ctx, defaults); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	log.Info("settings loaded", "inverter_type", store.Current().Name, "inverter_types", len(store.Types()))
	return store, nil
}

// connectAudit connects the InfluxDB event audit. It returns a nil client
// when the audit is disabled.
func connectAudit(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB audit disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB,
		influxdb.WithDefaultTag("site", cfg.Site.ID),
		influxdb.WithDefaultTag("namespace", cfg.MQTT.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}

	auditLog := log.Component("influxdb")
	client.SetOnError(func(err error) {
		auditLog.Error("batch write failed", "error", err, "failures", client.WriteErrors())
	})
	auditLog.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	return client, nil
}

// connectBus connects to the broker. The broker is required: without it
// there is no telemetry and no way to apply a setting.
func connectBus(ctx context.Context, cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(ctx, cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}

	busLog := log.Component("mqtt")
	client.SetLogger(busLog)
	client.SetOnConnect(func() { busLog.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { busLog.Warn("MQTT disconnected", "error", err) })

	busLog.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"namespace", cfg.MQTT.Namespace,
	)
	return client, nil
}

// subscribeTelemetry routes every message under the namespace into the
// state store, except the core's own status topic.
func subscribeTelemetry(cfg *config.Config, client *mqtt.Client, store *state.Store, m *metrics.Metrics, log *logging.Logger) error {
	ingestor := telemetry.NewIngestor(store)
	ingestor.SetLogger(log.Component("telemetry"))
	ingestor.SetRecorder(m)

	topics := client.Topics()
	handler := func(topic string, payload []byte) error {
		if !topics.IsStatus(topic) {
			// Rejected messages are logged and counted by the ingestor.
			_ = ingestor.Ingest(topic, payload) //nolint:errcheck // see above
		}
		return nil
	}

	filter := cfg.SubscribeTopic()
	if err := client.Subscribe(filter, byte(cfg.MQTT.QoS), handler); err != nil { // #nosec G115 -- validated to 0..2
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	log.Info("telemetry subscribed", "topic", filter)
	return nil
}

// healthCheck returns the first failing dependency. audit may be nil.
func healthCheck(ctx context.Context, db *database.DB, bus *mqtt.Client, audit *influxdb.Client) error {
	type check struct {
		name  string
		check func(context.Context) error
	}
	checks := []check{
		{"database", db.HealthCheck},
		{"mqtt", bus.HealthCheck},
	}
	if audit != nil {
		checks = append(checks, check{"influxdb", audit.HealthCheck})
	}

	for _, c := range checks {
		if err := c.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}
