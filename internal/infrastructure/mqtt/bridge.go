package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler is the callback signature for received messages.
//
// Handlers run sequentially on the receive goroutine and should not block
// for extended periods.
//
// Parameters:
//   - topic: The topic the message was received on (wildcards expanded)
//   - payload: The raw JSON payload
//
// Returns:
//   - error: Logged; does not stop other handlers
type MessageHandler func(topic string, payload []byte) error

// Bridge owns the process-wide broker connection. Every logical
// subscription is multiplexed over it, and every inbound message is
// offered to all handlers whose pattern matches its topic.
//
// Thread Safety: all methods are safe for concurrent use.
type Bridge struct {
	opts   Options
	topics Topics

	// newClient builds the paho client; replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// after schedules reconnect attempts; replaced in tests.
	after func(time.Duration) <-chan time.Time

	mu         sync.Mutex
	state      State
	lastErr    error
	client     pahomqtt.Client
	brokerURL  string
	creds      *Credentials
	generation uint64
	stop       chan struct{}
	subs       []*subscription
	nextSubID  uint64
	listeners  []StateListener
	logger     Logger
}

// subscription is one registered handler.
type subscription struct {
	id      uint64
	pattern string
	handler MessageHandler
}

// NewBridge creates a disconnected bridge.
func NewBridge(opts Options) *Bridge {
	opts = opts.withDefaults()
	return &Bridge{
		opts:      opts,
		topics:    Topics{Namespace: opts.Namespace},
		newClient: pahomqtt.NewClient,
		after:     time.After,
		state:     StateDisconnected,
		logger:    noopLogger{},
	}
}

// Topics returns the topic builder for the bridge's namespace.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// SetLogger sets the logger. A nil logger discards output.
func (b *Bridge) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

func (b *Bridge) log() Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logger
}

// OnStateChange registers a listener for state transitions.
func (b *Bridge) OnStateChange(fn StateListener) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// State returns the current state and the error that caused it, if any.
func (b *Bridge) State() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.lastErr
}

// IsConnected reports whether the bridge is in StateConnected.
func (b *Bridge) IsConnected() bool {
	s, _ := b.State()
	return s == StateConnected
}

// HealthCheck verifies the broker connection.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	state, err := b.State()
	if state != StateConnected {
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNotConnected, state, err)
		}
		return fmt.Errorf("%w: %s", ErrNotConnected, state)
	}
	return nil
}

// Connect establishes the broker connection.
//
// Only one attempt may be outstanding: a second call while connecting
// returns ErrConnectInProgress. Calling Connect while connected is a no-op.
// A failed attempt leaves the bridge in StateError and returns an error
// wrapping ErrConnectionFailed.
func (b *Bridge) Connect(ctx context.Context, brokerURL string, creds *Credentials) error {
	if brokerURL == "" {
		return fmt.Errorf("%w: broker url is required", ErrConnectionFailed)
	}

	b.mu.Lock()
	switch b.state {
	case StateConnecting:
		b.mu.Unlock()
		return ErrConnectInProgress
	case StateConnected:
		b.mu.Unlock()
		return nil
	}

	b.stopReconnectLocked()
	b.generation++
	gen := b.generation
	b.brokerURL = brokerURL
	b.creds = creds
	client := b.newClient(b.clientOptions(gen))
	b.client = client
	b.state = StateConnecting
	b.lastErr = nil
	listeners := append([]StateListener(nil), b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(StateConnecting, nil)
	}

	if err := b.attempt(ctx, client); err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrConnectionFailed, brokerURL, err)
		b.transition(gen, StateError, err)
		return err
	}

	if !b.connected(gen) {
		client.Disconnect(defaultDisconnectQuiesce)
		return fmt.Errorf("%w: disconnected while connecting", ErrConnectionFailed)
	}
	return nil
}

func (b *Bridge) clientOptions(gen uint64) *pahomqtt.ClientOptions {
	opts := buildClientOptions(b.opts, b.brokerURL, b.creds)
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.dispatch(gen, msg.Topic(), msg.Payload())
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.handleConnectionLost(gen, err)
	})
	return opts
}

// attempt runs one paho connect and waits for it.
func (b *Bridge) attempt(ctx context.Context, client pahomqtt.Client) error {
	token := client.Connect()

	timer := time.NewTimer(b.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: after %v", ErrTimeout, b.opts.ConnectTimeout)
	}
}

// connected completes a successful attempt: broker subscriptions are
// restored and the online status published. It reports false when the
// generation was superseded meanwhile.
func (b *Bridge) connected(gen uint64) bool {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return false
	}
	client := b.client
	patterns := b.patternsLocked()
	b.mu.Unlock()

	if !b.transition(gen, StateConnected, nil) {
		return false
	}

	for _, pattern := range patterns {
		if err := b.brokerSubscribe(client, pattern); err != nil {
			b.log().Warn("restoring MQTT subscription failed", "pattern", pattern, "error", err)
		}
	}

	client.Publish(CoreStatusTopic, b.opts.QoS, true, buildStatusPayload(b.opts.ClientID, "online", ""))
	b.log().Info("MQTT connected", "broker", b.brokerURL, "subscriptions", len(patterns))
	return true
}

// transition moves to state if gen is current and notifies listeners.
func (b *Bridge) transition(gen uint64, state State, err error) bool {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return false
	}
	b.state = state
	b.lastErr = err
	listeners := append([]StateListener(nil), b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(state, err)
	}
	return true
}

// handleConnectionLost starts the reconnect loop after an unexpected drop.
func (b *Bridge) handleConnectionLost(gen uint64, cause error) {
	b.mu.Lock()
	if gen != b.generation || b.state != StateConnected {
		b.mu.Unlock()
		return
	}
	b.stopReconnectLocked()
	stop := make(chan struct{})
	b.stop = stop
	client := b.client
	b.mu.Unlock()

	b.log().Warn("MQTT connection lost", "error", cause)
	if !b.transition(gen, StateDisconnected, fmt.Errorf("%w: %w", ErrNotConnected, cause)) {
		return
	}
	go b.reconnect(gen, client, stop)
}

// reconnect retries at a fixed interval until connected, stopped, or the
// attempt budget is exhausted.
func (b *Bridge) reconnect(gen uint64, client pahomqtt.Client, stop <-chan struct{}) {
	for attempts := 1; ; attempts++ {
		select {
		case <-stop:
			return
		case <-b.after(b.opts.ReconnectInterval):
		}

		if !b.transition(gen, StateConnecting, nil) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.opts.ConnectTimeout)
		err := b.attempt(ctx, client)
		cancel()

		if err == nil {
			if !b.connected(gen) {
				client.Disconnect(defaultDisconnectQuiesce)
			}
			return
		}

		if b.opts.MaxReconnectAttempts > 0 && attempts >= b.opts.MaxReconnectAttempts {
			b.log().Error("MQTT reconnect abandoned", "attempts", attempts, "error", err)
			b.transition(gen, StateError,
				fmt.Errorf("%w: gave up after %d attempts: %w", ErrConnectionFailed, attempts, err))
			return
		}

		b.log().Warn("MQTT reconnect failed", "attempt", attempts, "error", err)
		if !b.transition(gen, StateDisconnected, fmt.Errorf("%w: %w", ErrConnectionFailed, err)) {
			return
		}
	}
}

func (b *Bridge) stopReconnectLocked() {
	if b.stop != nil {
		close(b.stop)
		b.stop = nil
	}
}

// Disconnect closes the connection and synchronously drops every handler.
// Messages still in flight are discarded.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	b.stopReconnectLocked()
	b.generation++
	gen := b.generation
	client := b.client
	wasConnected := b.state == StateConnected
	b.client = nil
	b.subs = nil
	b.mu.Unlock()

	b.transition(gen, StateDisconnected, nil)

	if client == nil {
		return
	}
	if wasConnected {
		token := client.Publish(CoreStatusTopic, b.opts.QoS, true,
			buildStatusPayload(b.opts.ClientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(defaultPublishTimeout)
	}
	client.Disconnect(defaultDisconnectQuiesce)
	b.log().Info("MQTT disconnected")
}

// Close disconnects. It exists for io.Closer-style shutdown.
func (b *Bridge) Close() error {
	b.Disconnect()
	return nil
}
