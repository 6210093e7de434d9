// Package influxdb records device telemetry history in InfluxDB v2.
//
// Every point goes to the device_metrics measurement, tagged with the board
// serial and the owning user:
//
//	relay_status  one point per channel, tag channel, field state (0/1)
//	sensor_data   one point, one field per reading
//	heartbeat     one point, fields wifi_rssi, free_heap, uptime
//
// Writes are non-blocking and batched (influxdb.batch_size,
// influxdb.flush_interval). Async write errors reach the SetOnError
// callback; connection and health check errors are returned directly.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteTelemetry("u1", "ESP32-001A", env, time.Now())
package influxdb
