// Package device holds the per-user device records shared by the
// registration service, the reconciler and the API.
//
// # Records
//
// A physical board identified by a serial number expands into one or more
// logical devices. Multi-channel boards (relay4, relay8) produce one Record
// per channel keyed "<SERIAL>_<channel>"; everything else produces a single
// Record keyed by the serial alone.
//
// Three independent documents describe a device in the store:
//
//	devices/<uid>/<key>       Record        (registration truth, status, network)
//	device_types/<uid>/<key>  dashboard kind (may be absent: "untyped")
//	deviceData/<uid>/<key>    RuntimeValue  (last authoritative value)
//
// View merges them, together with any in-flight optimistic command, into
// what a dashboard renders.
//
// # Command log
//
// CommandLogRepository keeps a local audit trail of commands published to
// devices and how each one ended (confirmed by telemetry, reverted on
// timeout, or failed to publish).
package device
