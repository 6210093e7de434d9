package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicesync-core/internal/store"
	"github.com/nerrad567/devicesync-core/internal/telemetry"
)

// DefaultCommandTimeout bounds how long an optimistic value is shown
// without confirmation.
const DefaultCommandTimeout = 3 * time.Second

// handlerTimeout bounds the store work done for one inbound message.
const handlerTimeout = 5 * time.Second

// Publisher sends device commands. *mqtt.Bridge implements it.
type Publisher interface {
	PublishJSON(topic string, v any, opts mqtt.PublishOptions) error
}

// Subscriber registers telemetry handlers. *mqtt.Bridge implements it.
type Subscriber interface {
	Subscribe(pattern string, handler mqtt.MessageHandler) error
}

// Sink receives every decoded telemetry message of a registered board.
type Sink interface {
	WriteTelemetry(userID, serial string, env telemetry.Envelope, at time.Time)
}

// Logger is the logging interface used by the reconciler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Reconciler.
type Options struct {
	// Topics builds command topics and parses telemetry topics.
	Topics mqtt.Topics

	// CommandTimeout is how long a command waits for confirmation.
	CommandTimeout time.Duration

	// QoS is used for published commands.
	QoS byte
}

type timer interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Reconciler owns pending commands and view subscriptions.
//
// Thread Safety: all methods are safe for concurrent use.
type Reconciler struct {
	store store.Store
	pub   Publisher
	opts  Options

	logger  Logger
	sink    Sink
	history device.CommandLogRepository

	now       func() time.Time
	afterFunc func(time.Duration, func()) timer
	newID     func() string

	// writeMu orders telemetry writes (shared) against the offline
	// sweep (exclusive).
	writeMu sync.RWMutex

	mu        sync.Mutex
	pending   map[string]map[string]pendingValue
	commands  map[string]*command
	watchers  map[string]map[uint64]*watcher
	nextWatch uint64
	closed    bool
}

// New creates a reconciler writing to s and publishing through pub.
func New(s store.Store, pub Publisher, opts Options) *Reconciler {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	return &Reconciler{
		store:     s,
		pub:       pub,
		opts:      opts,
		logger:    noopLogger{},
		now:       time.Now,
		afterFunc: realAfterFunc,
		newID:     newCommandID,
		pending:   make(map[string]map[string]pendingValue),
		commands:  make(map[string]*command),
		watchers:  make(map[string]map[uint64]*watcher),
	}
}

// SetLogger sets the logger.
func (r *Reconciler) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// SetSink sets the telemetry history sink. Nil disables it.
func (r *Reconciler) SetSink(sink Sink) {
	r.sink = sink
}

// SetHistory sets the command log. Nil disables it.
func (r *Reconciler) SetHistory(repo device.CommandLogRepository) {
	r.history = repo
}

// Attach subscribes HandleMessage to every telemetry topic.
func (r *Reconciler) Attach(sub Subscriber) error {
	for _, pattern := range r.opts.Topics.Telemetry() {
		if err := sub.Subscribe(pattern, r.HandleMessage); err != nil {
			return fmt.Errorf("subscribing %s: %w", pattern, err)
		}
	}
	return nil
}

// HandleMessage decodes one telemetry message and applies it. Topics
// outside the namespace and command echoes are ignored.
func (r *Reconciler) HandleMessage(topic string, payload []byte) error {
	deviceID, kind, ok := r.opts.Topics.Parse(topic)
	if !ok || kind == mqtt.KindCommand {
		return nil
	}

	env, err := telemetry.Parse(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	return r.ApplyTelemetry(ctx, deviceID, env)
}

// ApplyTelemetry updates the devices built from the board deviceID.
// Telemetry from unregistered boards and unknown message types is ignored.
func (r *Reconciler) ApplyTelemetry(ctx context.Context, deviceID string, env telemetry.Envelope) error {
	if env.Message == nil {
		return nil
	}
	if _, unknown := env.Message.(telemetry.Unknown); unknown {
		r.logger.Debug("ignoring unknown telemetry type", "device_id", deviceID, "type", env.Message.Type())
		return nil
	}

	sn := device.NormaliseSerial(deviceID)
	if !store.ValidKey(sn) {
		return nil
	}

	idx, ok, err := r.ownerOf(ctx, sn)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Debug("telemetry for unregistered board", "serial", sn)
		return nil
	}

	r.writeMu.RLock()
	records, err := r.boardRecords(ctx, idx)
	if err != nil {
		r.writeMu.RUnlock()
		return err
	}

	now := r.now()
	b := board{serial: sn, index: idx, records: records, now: device.NowMillis(now)}

	var plan update
	switch msg := env.Message.(type) {
	case telemetry.RelayStatus:
		plan = b.relayStatus(msg)
	case telemetry.SensorData:
		plan = b.sensorData(msg)
	case telemetry.Heartbeat:
		plan = b.heartbeat(msg)
	}

	if len(plan.writes) > 0 {
		err = r.store.UpdateMany(ctx, plan.writes)
	}
	r.writeMu.RUnlock()
	if err != nil {
		return fmt.Errorf("applying %s from %s: %w", env.Message.Type(), sn, err)
	}
	if len(plan.writes) == 0 {
		r.logger.Debug("telemetry changed nothing", "serial", sn, "type", env.Message.Type())
	}

	r.confirm(idx.UserID, plan.confirms)

	if r.sink != nil {
		r.sink.WriteTelemetry(idx.UserID, sn, env, now)
	}
	return nil
}

// ownerOf reads the owner index of a board.
func (r *Reconciler) ownerOf(ctx context.Context, sn string) (device.OwnerIndex, bool, error) {
	snap, err := r.store.Get(ctx, device.IndexPath(sn))
	if err != nil {
		return device.OwnerIndex{}, false, fmt.Errorf("reading owner of %s: %w", sn, err)
	}
	if !snap.Exists {
		return device.OwnerIndex{}, false, nil
	}
	var idx device.OwnerIndex
	if err := snap.Decode(&idx); err != nil {
		return device.OwnerIndex{}, false, err
	}
	if idx.UserID == "" {
		return device.OwnerIndex{}, false, nil
	}
	return idx, true, nil
}

// boardRecords reads the records listed in the index. Keys whose record
// was removed are skipped.
func (r *Reconciler) boardRecords(ctx context.Context, idx device.OwnerIndex) (map[string]device.Record, error) {
	out := make(map[string]device.Record, len(idx.Keys))
	for key := range idx.Keys {
		snap, err := r.store.Get(ctx, device.RecordPath(idx.UserID, key))
		if err != nil {
			return nil, fmt.Errorf("reading device %s: %w", key, err)
		}
		if !snap.Exists {
			continue
		}
		var rec device.Record
		if err := snap.Decode(&rec); err != nil {
			r.logger.Warn("skipping undecodable device record", "key", key, "error", err)
			continue
		}
		out[key] = rec
	}
	return out, nil
}

// readRecord reads one device record of a user.
func (r *Reconciler) readRecord(ctx context.Context, userID, key string) (device.Record, error) {
	if userID == "" {
		return device.Record{}, ErrUserRequired
	}
	if err := device.ValidateKey(key); err != nil {
		return device.Record{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}
	snap, err := r.store.Get(ctx, device.RecordPath(userID, key))
	if err != nil {
		return device.Record{}, fmt.Errorf("reading device %s: %w", key, err)
	}
	if !snap.Exists {
		return device.Record{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	var rec device.Record
	if err := snap.Decode(&rec); err != nil {
		return device.Record{}, err
	}
	return rec, nil
}

// Close drops every pending command and stops their timers.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for id, cmd := range r.commands {
		cmd.timer.Stop()
		delete(r.commands, id)
	}
	r.pending = make(map[string]map[string]pendingValue)
	return nil
}
