// Package telemetry decodes the JSON envelopes boards publish.
//
// Every message is validated against an embedded JSON Schema before it is
// decoded into one of the Message variants: RelayStatus, SensorData or
// Heartbeat. Types the schema does not know decode to Unknown so callers
// can ignore them without treating them as errors.
//
//	{"type":"relay_status","device_id":"ESP32-001A","timestamp":1200,
//	 "data":{"relay1":true,"relay2":false},"pins":{"relay1":25,"relay2":26}}
package telemetry
