// Package metrics exposes Prometheus counters for the control core.
//
// Every component depends on a small recorder interface of its own
// (telemetry.Recorder, automation.Recorder, command.Recorder); *Metrics
// satisfies all of them so main can hand the same value to each.
//
// Metrics are registered on a private registry rather than the global
// default, so several instances can coexist in tests. Handler serves that
// registry in the Prometheus text format.
//
// Usage:
//
//	m := metrics.New()
//	ingestor := telemetry.NewIngestor(store)
//	ingestor.SetRecorder(m)
//	router.Handle("/metrics", m.Handler())
package metrics
