// Package api implements the HTTP REST API and WebSocket server of the
// device sync core.
//
// This package provides:
//   - REST endpoints for device registration, naming, dashboards and commands
//   - command history and the account audit trail
//   - a WebSocket hub pushing per-user device views and bridge status
//   - Bearer JWT authentication with ticket-based WebSocket auth
//   - the middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server sits between dashboards and the device services. Commands go
// to the reconciler, which publishes them over MQTT and shows the expected
// value until telemetry confirms it. View changes reach WebSocket clients
// subscribed to the "views" channel; broker connection changes reach the
// "bridge.status" channel.
//
// # Graceful Degradation
//
// The server runs without a broker connection: reads and WebSocket
// subscriptions work, commands fail with 503. With the memory store the
// command history and audit routes answer 503 as well.
package api
