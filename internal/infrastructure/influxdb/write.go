package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/devicesync-core/internal/telemetry"
)

// Measurement is the InfluxDB measurement holding device telemetry.
const Measurement = "device_metrics"

// WriteTelemetry queues the points of one decoded telemetry message.
// Unknown message types and writes after Close are dropped.
func (c *Client) WriteTelemetry(userID, serial string, env telemetry.Envelope, at time.Time) {
	if !c.IsConnected() {
		return
	}
	for _, p := range Points(userID, serial, env, at) {
		c.writer.WritePoint(p)
		c.points.Add(1)
	}
}

// Points converts a telemetry message into device_metrics points.
func Points(userID, serial string, env telemetry.Envelope, at time.Time) []*write.Point {
	tags := func(extra ...string) map[string]string {
		t := map[string]string{"serial": serial, "user_id": userID, "type": string(env.Message.Type())}
		for i := 0; i+1 < len(extra); i += 2 {
			t[extra[i]] = extra[i+1]
		}
		return t
	}

	switch msg := env.Message.(type) {
	case telemetry.RelayStatus:
		points := make([]*write.Point, 0, len(msg.Channels))
		for _, ch := range telemetry.SortedKeys(msg.Channels) {
			state := 0
			if msg.Channels[ch] {
				state = 1
			}
			points = append(points, write.NewPoint(Measurement, tags("channel", ch),
				map[string]interface{}{"state": state}, at))
		}
		return points

	case telemetry.SensorData:
		if len(msg.Readings) == 0 {
			return nil
		}
		fields := make(map[string]interface{}, len(msg.Readings))
		for k, v := range msg.Readings {
			fields[k] = v
		}
		return []*write.Point{write.NewPoint(Measurement, tags(), fields, at)}

	case telemetry.Heartbeat:
		return []*write.Point{write.NewPoint(Measurement, tags(), map[string]interface{}{
			"wifi_rssi": msg.WiFiRSSI,
			"free_heap": msg.FreeHeap,
			"uptime":    msg.Uptime,
		}, at)}

	default:
		return nil
	}
}
