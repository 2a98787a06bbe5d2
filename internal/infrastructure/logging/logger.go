package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/solar-control-core/internal/infrastructure/config"
)

// ServiceName is the "service" field on every entry.
const ServiceName = "solarcore"

// Logger is a *slog.Logger carrying the service and version fields.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml. Output is
// stderr when cfg.Output says so and stdout otherwise.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter is New with an explicit destination, used by tests.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	return &Logger{
		Logger: slog.New(newHandler(cfg, w)).With(
			slog.String("service", ServiceName),
			slog.String("version", version),
		),
	}
}

// newHandler picks the text or JSON handler; JSON unless format is "text".
func newHandler(cfg config.LoggingConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel accepts anything slog.Level understands ("debug", "WARN",
// "info+2") plus "warning". Unknown input means info.
func parseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child Logger with extra fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child Logger tagged component=name. Each subsystem
// (mqtt, telemetry, automation, api) logs through its own component.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the JSON/info/stdout logger used until config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{}, "dev")
}
