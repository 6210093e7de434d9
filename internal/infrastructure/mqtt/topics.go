package mqtt

import "strings"

// DefaultNamespace is the first segment of device topics.
const DefaultNamespace = "esp32"

// CoreStatusTopic carries the retained online/offline status of the sync
// core. It sits outside the device namespace so device wildcards never
// see it.
const CoreStatusTopic = "devicesync/core/status"

// Message kinds (the last topic segment).
const (
	KindStatus    = "status"
	KindSensor    = "sensor"
	KindData      = "data"
	KindHeartbeat = "heartbeat"
	KindCommand   = "command"
)

// Topics builds device topics of the form <namespace>/<deviceId>/<kind>.
//
//	topics := mqtt.Topics{Namespace: "esp32"}
//	topics.Command("ESP32-001A")
//	// Returns: "esp32/ESP32-001A/command"
type Topics struct {
	Namespace string
}

func (t Topics) ns() string {
	if t.Namespace == "" {
		return DefaultNamespace
	}
	return t.Namespace
}

func (t Topics) device(id, kind string) string {
	return t.ns() + "/" + id + "/" + kind
}

// Status returns the relay status topic of a device.
func (t Topics) Status(deviceID string) string { return t.device(deviceID, KindStatus) }

// Sensor returns the sensor topic of a device.
func (t Topics) Sensor(deviceID string) string { return t.device(deviceID, KindSensor) }

// Data returns the alternative sensor data topic of a device.
func (t Topics) Data(deviceID string) string { return t.device(deviceID, KindData) }

// Heartbeat returns the heartbeat topic of a device.
func (t Topics) Heartbeat(deviceID string) string { return t.device(deviceID, KindHeartbeat) }

// Command returns the command topic a device listens on.
func (t Topics) Command(deviceID string) string { return t.device(deviceID, KindCommand) }

// AllStatus matches every device's status topic.
func (t Topics) AllStatus() string { return t.device("+", KindStatus) }

// AllSensor matches every device's sensor topic.
func (t Topics) AllSensor() string { return t.device("+", KindSensor) }

// AllData matches every device's data topic.
func (t Topics) AllData() string { return t.device("+", KindData) }

// AllHeartbeat matches every device's heartbeat topic.
func (t Topics) AllHeartbeat() string { return t.device("+", KindHeartbeat) }

// All matches everything in the namespace.
func (t Topics) All() string { return t.ns() + "/#" }

// Telemetry returns the patterns carrying device-to-cloud telemetry.
func (t Topics) Telemetry() []string {
	return []string{t.AllStatus(), t.AllSensor(), t.AllData(), t.AllHeartbeat()}
}

// Parse splits a device topic into device ID and kind. It reports false
// for topics outside the namespace or with the wrong shape.
func (t Topics) Parse(topic string) (deviceID, kind string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != t.ns() || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
