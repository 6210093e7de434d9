package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicesync-core/internal/registration"
	"github.com/nerrad567/devicesync-core/internal/serial"
	"github.com/nerrad567/devicesync-core/internal/store"
	"github.com/nerrad567/devicesync-core/internal/telemetry"
)

type published struct {
	topic   string
	payload string
	qos     byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishJSON(topic string, v any, opts mqtt.PublishOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: string(data), qos: opts.QoS})
	return nil
}

func (p *fakePublisher) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.msgs, "nothing published")
	return p.msgs[len(p.msgs)-1]
}

func (p *fakePublisher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	d       time.Duration
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) timer {
	t := &fakeTimer{f: f, d: d}
	ft.mu.Lock()
	ft.timers = append(ft.timers, t)
	ft.mu.Unlock()
	return t
}

// fireAll runs every timer that is neither stopped nor fired.
func (ft *fakeTimers) fireAll() int {
	ft.mu.Lock()
	timers := append([]*fakeTimer(nil), ft.timers...)
	ft.mu.Unlock()

	n := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if run {
			t.f()
			n++
		}
	}
	return n
}

func (ft *fakeTimers) active() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n := 0
	for _, t := range ft.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

// fakeHistory keeps command outcomes in memory.
type fakeHistory struct {
	mu       sync.Mutex
	entries  map[string]device.CommandLogEntry
	outcomes map[string]string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: map[string]device.CommandLogEntry{}, outcomes: map[string]string{}}
}

func (h *fakeHistory) RecordCommand(_ context.Context, e device.CommandLogEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[e.ID] = e
	h.outcomes[e.ID] = device.OutcomePending
	return nil
}

func (h *fakeHistory) ResolveCommand(_ context.Context, id, outcome string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outcomes[id] != device.OutcomePending {
		return device.ErrCommandNotFound
	}
	h.outcomes[id] = outcome
	return nil
}

func (h *fakeHistory) GetHistory(context.Context, string, string, int) ([]device.CommandLogEntry, error) {
	return nil, nil
}

func (h *fakeHistory) outcome(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcomes[id]
}

// countingStore counts UpdateMany calls. onGet, when set, runs before
// every Get.
type countingStore struct {
	store.Store
	mu      sync.Mutex
	updates int
	onGet   func(path string)
}

func (c *countingStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	c.mu.Lock()
	hook := c.onGet
	c.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return c.Store.Get(ctx, path)
}

func (c *countingStore) setOnGet(fn func(path string)) {
	c.mu.Lock()
	c.onGet = fn
	c.mu.Unlock()
}

func (c *countingStore) UpdateMany(ctx context.Context, updates map[string]any) error {
	c.mu.Lock()
	c.updates++
	c.mu.Unlock()
	return c.Store.UpdateMany(ctx, updates)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}

type sinkCall struct {
	userID string
	serial string
	kind   telemetry.Type
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *fakeSink) WriteTelemetry(userID, sn string, env telemetry.Envelope, _ time.Time) {
	s.mu.Lock()
	s.calls = append(s.calls, sinkCall{userID: userID, serial: sn, kind: env.Message.Type()})
	s.mu.Unlock()
}

type fakeSubscriber struct {
	patterns []string
}

func (s *fakeSubscriber) Subscribe(pattern string, _ mqtt.MessageHandler) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

type fixture struct {
	r       *Reconciler
	store   *countingStore
	pub     *fakePublisher
	timers  *fakeTimers
	history *fakeHistory
	clock   *time.Time
}

var epoch = time.UnixMilli(1_700_000_000_000)

// newFixture registers SN003 (relay4), ESP32-003C (lighting) and SN001
// (temperature sensor) for u1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	serials := serial.NewRegistry(mem)
	records, err := serial.LoadSeed("../serial/testdata/seed.yaml")
	require.NoError(t, err)
	require.NoError(t, serials.Provision(ctx, records...))
	require.NoError(t, serials.Provision(ctx, serial.SampleRecords()...))

	reg := registration.NewService(mem, serials)
	for _, sn := range []string{"SN003", "ESP32-003C", "SN001"} {
		_, err := reg.Register(ctx, "u1", sn)
		require.NoError(t, err)
	}

	cs := &countingStore{Store: mem}
	pub := &fakePublisher{}
	timers := &fakeTimers{}
	clock := epoch

	r := New(cs, pub, Options{Topics: mqtt.Topics{Namespace: "esp32"}, CommandTimeout: time.Second, QoS: 1})
	r.afterFunc = timers.afterFunc
	r.now = func() time.Time { return clock }
	ids := 0
	r.newID = func() string {
		ids++
		return fmt.Sprintf("cmd-%d", ids)
	}
	history := newFakeHistory()
	r.SetHistory(history)
	t.Cleanup(func() { r.Close() })

	return &fixture{r: r, store: cs, pub: pub, timers: timers, history: history, clock: &clock}
}

func (f *fixture) record(t *testing.T, key string) device.Record {
	t.Helper()
	snap, err := f.store.Get(context.Background(), device.RecordPath("u1", key))
	require.NoError(t, err)
	require.True(t, snap.Exists, "no record %s", key)
	var rec device.Record
	require.NoError(t, snap.Decode(&rec))
	return rec
}

func (f *fixture) runtime(t *testing.T, key string) (device.RuntimeValue, bool) {
	t.Helper()
	snap, err := f.store.Get(context.Background(), device.DataPath("u1", key))
	require.NoError(t, err)
	if !snap.Exists {
		return device.RuntimeValue{}, false
	}
	var rv device.RuntimeValue
	require.NoError(t, snap.Decode(&rv))
	return rv, true
}

func (f *fixture) handle(t *testing.T, topic, payload string) {
	t.Helper()
	require.NoError(t, f.r.HandleMessage(topic, []byte(payload)))
}
