package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Stats counts what the sink has handled since Connect.
type Stats struct {
	// Points is the number of points handed to the batch writer.
	Points uint64 `json:"points"`

	// WriteErrors is the number of failed batch writes.
	WriteErrors uint64 `json:"writeErrors"`
}

// Client is the telemetry history sink.
//
// Writes never block the caller: points are queued to the batch writer and
// failures arrive on the SetOnError callback. All methods are safe for
// concurrent use.
type Client struct {
	raw    influxdb2.Client
	writer api.WriteAPI

	open    atomic.Bool
	onError atomic.Pointer[func(error)]

	points      atomic.Uint64
	writeErrors atomic.Uint64
}

// Connect pings the server and opens a batched writer for cfg.Bucket.
// It returns ErrDisabled when influxdb.enabled is false.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		raw:    raw,
		writer: raw.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)
	go c.drainErrors(c.writer.Errors())
	return c, nil
}

// writeOptions maps the batch settings, falling back to defaults for
// non-positive values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) //nolint:gosec // positive by construction
}

func ping(ctx context.Context, raw influxdb2.Client) error {
	healthy, err := raw.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// drainErrors counts async write failures and forwards them.
func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError sets the callback for async write failures. Nil removes it.
func (c *Client) SetOnError(fn func(err error)) {
	if fn == nil {
		c.onError.Store(nil)
		return
	}
	c.onError.Store(&fn)
}

// IsConnected reports whether the client is open. It does not ping.
func (c *Client) IsConnected() bool {
	return c.open.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, c.raw); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{Points: c.points.Load(), WriteErrors: c.writeErrors.Load()}
}

// Flush blocks until queued points are written. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes queued points and releases the client. Safe to call twice.
func (c *Client) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writer.Flush()
	c.raw.Close()
	return nil
}
