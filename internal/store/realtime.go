package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// deliveryTimeout bounds the read a subscription performs per delivery.
const deliveryTimeout = 5 * time.Second

// backend persists leaves. apply must be atomic across all writes.
type backend interface {
	leaves(ctx context.Context, path string) (map[string]any, error)
	apply(ctx context.Context, writes []write) error
}

// Logger is the logging interface used by the store.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Realtime implements Store over a backend and fans out change
// notifications to subscribers.
//
// Thread Safety: all methods are safe for concurrent use.
type Realtime struct {
	backend backend
	logger  Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	path     string
	fn       Listener
	signal   chan struct{}
	done     chan struct{}
	disposed atomic.Bool
	once     sync.Once
}

func newRealtime(b backend) *Realtime {
	return &Realtime{
		backend: b,
		logger:  noopLogger{},
		subs:    make(map[uint64]*subscription),
	}
}

// SetLogger sets the logger for delivery failures.
func (r *Realtime) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

func (r *Realtime) log() Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// Get implements Store.
func (r *Realtime) Get(ctx context.Context, path string) (Snapshot, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	if r.isClosed() {
		return Snapshot{}, fmt.Errorf("%w: closed", ErrUnavailable)
	}

	leaves, err := r.backend.leaves(ctx, clean)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: reading %q: %w", ErrUnavailable, clean, err)
	}

	value, exists := assemble(clean, leaves)
	return Snapshot{Path: clean, Value: value, Exists: exists}, nil
}

// Set implements Store.
func (r *Realtime) Set(ctx context.Context, path string, value any) error {
	w, err := buildWrite(path, value)
	if err != nil {
		return err
	}
	return r.commit(ctx, []write{w})
}

// Remove implements Store.
func (r *Realtime) Remove(ctx context.Context, path string) error {
	return r.Set(ctx, path, nil)
}

// UpdateMany implements Store. The SQLite and memory backends apply the
// whole set atomically, but callers must not rely on that: the boundary
// only promises each path is written or the call fails.
func (r *Realtime) UpdateMany(ctx context.Context, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	writes := make([]write, 0, len(updates))
	for path, value := range updates {
		w, err := buildWrite(path, value)
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}
	sort.Slice(writes, func(i, j int) bool { return writes[i].path < writes[j].path })

	for i := range writes {
		for j := i + 1; j < len(writes); j++ {
			a, b := writes[i].path, writes[j].path
			if underOrAt(b, a) || underOrAt(a, b) {
				return fmt.Errorf("%w: %q and %q", ErrOverlappingPaths, a, b)
			}
		}
	}

	return r.commit(ctx, writes)
}

func (r *Realtime) commit(ctx context.Context, writes []write) error {
	if r.isClosed() {
		return fmt.Errorf("%w: closed", ErrUnavailable)
	}
	if err := r.backend.apply(ctx, writes); err != nil {
		return fmt.Errorf("%w: writing: %w", ErrUnavailable, err)
	}
	r.notify(writes)
	return nil
}

func (r *Realtime) notify(writes []write) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		for _, w := range writes {
			if related(sub.path, w.path) {
				sub.poke()
				break
			}
		}
	}
}

// OnChange implements Store.
func (r *Realtime) OnChange(path string, fn Listener) Unsubscribe {
	clean, err := CleanPath(path)
	if err != nil || fn == nil {
		r.log().Warn("store subscription rejected", "path", path, "error", err)
		return func() {}
	}

	sub := &subscription{
		path:   clean,
		fn:     fn,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.subs[id] = sub
	r.mu.Unlock()

	sub.poke()
	go r.deliver(sub)

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		sub.dispose()
	}
}

// deliver runs one subscription's callbacks in order.
func (r *Realtime) deliver(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.signal:
		}

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		snap, err := r.Get(ctx, sub.path)
		cancel()
		if err != nil {
			r.log().Warn("store subscription read failed", "path", sub.path, "error", err)
			continue
		}

		if sub.disposed.Load() {
			return
		}
		sub.fn(snap)
	}
}

func (s *subscription) poke() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) dispose() {
	s.once.Do(func() {
		s.disposed.Store(true)
		close(s.done)
	})
}

// SubscriberCount returns the number of live subscriptions.
func (r *Realtime) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close stops every subscription. Later reads and writes fail with
// ErrUnavailable.
func (r *Realtime) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[uint64]*subscription)
	r.closed = true
	r.mu.Unlock()

	for _, sub := range subs {
		sub.dispose()
	}
	return nil
}

func (r *Realtime) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
