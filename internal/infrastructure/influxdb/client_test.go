package influxdb_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/devicesync-core/internal/telemetry"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "devicesync-dev-token",
		Org:           "devicesync",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(context.Background(), testConfig())
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

func lines(points []*write.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = strings.TrimSpace(write.PointToLineProtocol(p, time.Millisecond))
	}
	return out
}

var at = time.UnixMilli(1_700_000_000_000)

func TestPoints_RelayStatus(t *testing.T) {
	env := telemetry.Envelope{Message: telemetry.RelayStatus{
		Channels: map[string]bool{"relay2": false, "relay1": true},
	}}

	got := lines(influxdb.Points("u1", "SN003", env, at))
	assert.Equal(t, []string{
		"device_metrics,channel=relay1,serial=SN003,type=relay_status,user_id=u1 state=1i 1700000000000",
		"device_metrics,channel=relay2,serial=SN003,type=relay_status,user_id=u1 state=0i 1700000000000",
	}, got)
}

func TestPoints_SensorData(t *testing.T) {
	env := telemetry.Envelope{Message: telemetry.SensorData{
		Readings: map[string]float64{"temperature": 24.5, "humidity": 60},
	}}

	got := lines(influxdb.Points("u1", "SN003", env, at))
	require.Len(t, got, 1)
	assert.Equal(t,
		"device_metrics,serial=SN003,type=sensor_data,user_id=u1 humidity=60,temperature=24.5 1700000000000",
		got[0])

	empty := telemetry.Envelope{Message: telemetry.SensorData{}}
	assert.Empty(t, influxdb.Points("u1", "SN003", empty, at))
}

func TestPoints_Heartbeat(t *testing.T) {
	env := telemetry.Envelope{Message: telemetry.Heartbeat{WiFiRSSI: -61, FreeHeap: 2048, Uptime: 360}}

	got := lines(influxdb.Points("u1", "SN003", env, at))
	require.Len(t, got, 1)
	assert.Equal(t,
		"device_metrics,serial=SN003,type=heartbeat,user_id=u1 free_heap=2048i,uptime=360i,wifi_rssi=-61i 1700000000000",
		got[0])
}

func TestPoints_UnknownWritesNothing(t *testing.T) {
	env := telemetry.Envelope{Message: telemetry.Unknown{Kind: "ota"}}
	assert.Empty(t, influxdb.Points("u1", "SN003", env, at))
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, influxdb.ErrDisabled)
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, influxdb.ErrConnectionFailed)
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	assert.True(t, client.IsConnected())
}

func TestHealthCheck(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, client.HealthCheck(ctx))

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.Error(t, client.HealthCheck(cancelled))
}

func TestWriteTelemetry(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(context.Background(), testConfig())
	require.NoError(t, err)
	defer client.Close()

	var (
		mu     sync.Mutex
		errors []error
	)
	client.SetOnError(func(err error) {
		mu.Lock()
		errors = append(errors, err)
		mu.Unlock()
	})

	env, err := telemetry.Parse([]byte(`{"type":"sensor_data","data":{"temperature":21.5}}`))
	require.NoError(t, err)
	client.WriteTelemetry("it-user", "IT-SERIAL", env, time.Now())
	client.Flush()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, errors)
}

func TestClose(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(context.Background(), testConfig())
	require.NoError(t, err)

	client.WriteTelemetry("u1", "close-test", telemetry.Envelope{Message: telemetry.Heartbeat{}}, time.Now())
	assert.Equal(t, uint64(1), client.Stats().Points)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.False(t, client.IsConnected())
	assert.ErrorIs(t, client.HealthCheck(context.Background()), influxdb.ErrNotConnected)

	// Writes and flushes after close are dropped.
	client.Flush()
	client.WriteTelemetry("u1", "close-test", telemetry.Envelope{Message: telemetry.Heartbeat{}}, time.Now())
	assert.Equal(t, uint64(1), client.Stats().Points)
}
