package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solarcore"

// Metrics holds the core's Prometheus collectors.
//
// Thread Safety: all methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	telemetry       *prometheus.CounterVec
	rulesFired      *prometheus.CounterVec
	settingsApplied *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	commands        *prometheus.CounterVec
	tickDuration    prometheus.Histogram
	observers       prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_messages_total",
			Help:      "Telemetry messages received by result (stored, text, rejected).",
		}, []string{"result"}),
		rulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Automation rule firings by rule name.",
		}, []string{"rule"}),
		settingsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_settings_applied_total",
			Help:      "Scheduled settings applied by key.",
		}, []string{"key"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_publish_failures_total",
			Help:      "Failed automation publishes by source (rule, schedule).",
		}, []string{"source"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_published_total",
			Help:      "Command publish attempts by result (sent, rejected, failed).",
		}, []string{"result"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_tick_duration_seconds",
			Help:      "Duration of one schedule and rule evaluation pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers_connected",
			Help:      "Connected WebSocket observers.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.telemetry,
		m.rulesFired,
		m.settingsApplied,
		m.publishFailures,
		m.commands,
		m.tickDuration,
		m.observers,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TelemetryIngested counts one inbound telemetry message.
func (m *Metrics) TelemetryIngested(result string) {
	m.telemetry.WithLabelValues(result).Inc()
}

// RuleFired counts one rule firing.
func (m *Metrics) RuleFired(rule string) {
	m.rulesFired.WithLabelValues(rule).Inc()
}

// SettingApplied counts one applied scheduled setting.
func (m *Metrics) SettingApplied(key string) {
	m.settingsApplied.WithLabelValues(key).Inc()
}

// PublishFailed counts one failed automation publish.
func (m *Metrics) PublishFailed(source string) {
	m.publishFailures.WithLabelValues(source).Inc()
}

// CommandPublished counts one command publish attempt.
func (m *Metrics) CommandPublished(result string) {
	m.commands.WithLabelValues(result).Inc()
}

// TickCompleted records the duration of an evaluation pass.
func (m *Metrics) TickCompleted(d time.Duration) {
	m.tickDuration.Observe(d.Seconds())
}

// ObserversConnected sets the connected observer count.
func (m *Metrics) ObserversConnected(n int) {
	m.observers.Set(float64(n))
}

// HTTPRequest records one served request. route is the matched pattern,
// not the raw path.
func (m *Metrics) HTTPRequest(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
