// Package logging is the structured logger shared by every subsystem.
//
// It is log/slog with two fixed fields, service and version, and a
// per-subsystem component field:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("telemetry").Debug("ignored value", "topic", topic)
//
// The logging section of config.yaml picks the level, the format (json or
// text) and the output (stdout or stderr). Broker passwords and API
// credentials are never logged; log the username only.
package logging
