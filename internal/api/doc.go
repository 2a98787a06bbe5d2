// Package api implements the HTTP REST API and WebSocket server for Solar
// Control Core.
//
// This package provides:
//   - REST endpoints for universal and inverter settings, automation rules
//     and scheduled settings
//   - A read-only view of the current system state
//   - A raw MQTT publish endpoint for the dashboard
//   - A WebSocket hub that fans core events out to observers
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API sits beside the automation loop, not in front of it. Handlers edit
// the rule and schedule registry and the settings store; the scheduler picks
// up changes on its next tick. Settings edits are published to the bus
// after the response has been written.
//
// # Graceful Degradation
//
// The server operates without MQTT: reads, edits and WebSocket connections
// work, only publishes fail.
package api
