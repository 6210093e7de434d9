// Package mqtt provides the MQTT bridge between ESP32 devices and the sync
// core.
//
// This package manages:
//   - One broker connection per process with an explicit state machine
//   - Fixed-interval reconnection observable through state changes
//   - Wildcard subscriptions with exact segment matching (Match)
//   - Fan-out of each inbound message to every matching handler
//   - Last Will and Testament on devicesync/core/status
//
// # Topics
//
// Devices publish on <namespace>/<deviceId>/status, /sensor (or /data) and
// /heartbeat, and listen on <namespace>/<deviceId>/command. The namespace
// defaults to "esp32".
//
// # Usage
//
//	bridge := mqtt.NewBridge(mqtt.OptionsFromConfig(cfg.MQTT))
//	bridge.SetLogger(log)
//	bridge.OnStateChange(func(s mqtt.State, err error) { ... })
//
//	_ = bridge.Subscribe(bridge.Topics().AllHeartbeat(), handler)
//	if err := bridge.Connect(ctx, cfg.MQTT.BrokerURL(), nil); err != nil {
//	    return err
//	}
//	defer bridge.Disconnect()
//
// # Delivery
//
// Handlers run in receive order on the paho router goroutine. A payload
// that is not JSON is logged and dropped; a panicking handler is recovered
// and does not affect other handlers. Disconnect drops every handler at
// once, and messages already in flight are discarded.
package mqtt
