//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		Namespace: "esp32-it",
		Reconnect: config.MQTTReconnectConfig{Interval: 1},
	}
}

func connectIntegration(t *testing.T, clientID string) *Bridge {
	t.Helper()
	cfg := integrationConfig(clientID)
	b := NewBridge(OptionsFromConfig(cfg))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Connect(ctx, cfg.BrokerURL(), nil))
	t.Cleanup(b.Disconnect)
	return b
}

// TestIntegration_TelemetryRoundtrip publishes device telemetry from one
// bridge and receives it through a wildcard on another.
func TestIntegration_TelemetryRoundtrip(t *testing.T) {
	device := connectIntegration(t, "devicesync-it-device")
	core := connectIntegration(t, "devicesync-it-core")

	received := make(chan string, 1)
	var once sync.Once
	require.NoError(t, core.Subscribe(core.Topics().AllHeartbeat(), func(topic string, p []byte) error {
		once.Do(func() { received <- topic + " " + string(p) })
		return nil
	}))
	time.Sleep(100 * time.Millisecond)

	payload := []byte(`{"type":"heartbeat","device_id":"IT1","wifi_rssi":-61}`)
	require.NoError(t, device.Publish(device.Topics().Heartbeat("IT1"), payload, PublishOptions{QoS: 1}))

	select {
	case msg := <-received:
		assert.Equal(t, "esp32-it/IT1/heartbeat "+string(payload), msg)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for heartbeat")
	}
}

// TestIntegration_SubscriptionTracking verifies handlers are tracked per pattern.
func TestIntegration_SubscriptionTracking(t *testing.T) {
	b := connectIntegration(t, "devicesync-it-subs")

	noop := func(string, []byte) error { return nil }
	patterns := b.Topics().Telemetry()
	for _, p := range patterns {
		require.NoError(t, b.Subscribe(p, noop))
	}
	assert.Equal(t, len(patterns), b.SubscriptionCount())

	require.NoError(t, b.Unsubscribe(patterns[0]))
	assert.False(t, b.HasSubscription(patterns[0]))
	assert.Equal(t, len(patterns)-1, b.SubscriptionCount())
}
