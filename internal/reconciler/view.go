package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/store"
)

// buildView merges a record, its confirmed runtime value and pending
// values into one view.
func buildView(key string, rec device.Record, dashboard string, confirmed *device.RuntimeValue, pending map[string]any) device.View {
	v := device.View{
		Key:       key,
		Record:    rec,
		Dashboard: dashboard,
		State:     device.CloneState(rec.State),
		Confirmed: confirmed,
	}
	if confirmed != nil {
		v.Value = confirmed.Value
	}
	if len(pending) == 0 {
		return v
	}

	v.Pending = make(map[string]any, len(pending))
	for attr, val := range pending {
		v.State[attr] = val
		v.Pending[attr] = val
	}

	if val, ok := pending["value"]; ok {
		v.Value = val
	} else if on, ok := pending["on"]; ok {
		_, boolValue := v.Value.(bool)
		if boolValue || (v.Value == nil && catalog.DashboardKind(dashboard).DataKind() == catalog.DataBoolean) {
			v.Value = on
		}
	}
	return v
}

// userSnapshots is the store state a user's views are built from.
type userSnapshots struct {
	records store.Snapshot
	types   store.Snapshot
	data    store.Snapshot
}

func (r *Reconciler) compose(userID string, s userSnapshots) []device.View {
	keys := s.records.Keys()
	views := make([]device.View, 0, len(keys))
	for _, key := range keys {
		var rec device.Record
		if err := s.records.Child(key).Decode(&rec); err != nil {
			r.logger.Warn("skipping undecodable device record", "key", key, "error", err)
			continue
		}

		dashboard, _ := s.types.Child(key).Value.(string)

		var confirmed *device.RuntimeValue
		if data := s.data.Child(key); data.Exists {
			var rv device.RuntimeValue
			if err := data.Decode(&rv); err == nil {
				confirmed = &rv
			}
		}

		views = append(views, buildView(key, rec, dashboard, confirmed, r.pendingFor(userID, key)))
	}
	return views
}

// Views returns every device view of a user ordered by key.
func (r *Reconciler) Views(ctx context.Context, userID string) ([]device.View, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	var s userSnapshots
	var err error
	if s.records, err = r.store.Get(ctx, store.Join(device.RecordsRoot, userID)); err != nil {
		return nil, fmt.Errorf("reading devices: %w", err)
	}
	if s.types, err = r.store.Get(ctx, store.Join(device.TypesRoot, userID)); err != nil {
		return nil, fmt.Errorf("reading device types: %w", err)
	}
	if s.data, err = r.store.Get(ctx, store.Join(device.DataRoot, userID)); err != nil {
		return nil, fmt.Errorf("reading device data: %w", err)
	}
	return r.compose(userID, s), nil
}

// View returns one device view.
func (r *Reconciler) View(ctx context.Context, userID, key string) (device.View, error) {
	rec, err := r.readRecord(ctx, userID, key)
	if err != nil {
		return device.View{}, err
	}

	typeSnap, err := r.store.Get(ctx, device.TypePath(userID, key))
	if err != nil {
		return device.View{}, fmt.Errorf("reading device type: %w", err)
	}
	dashboard, _ := typeSnap.Value.(string)

	dataSnap, err := r.store.Get(ctx, device.DataPath(userID, key))
	if err != nil {
		return device.View{}, fmt.Errorf("reading device data: %w", err)
	}
	var confirmed *device.RuntimeValue
	if dataSnap.Exists {
		var rv device.RuntimeValue
		if err := dataSnap.Decode(&rv); err == nil {
			confirmed = &rv
		}
	}

	return buildView(key, rec, dashboard, confirmed, r.pendingFor(userID, key)), nil
}

// ViewFunc receives the complete view set of a user on every change.
type ViewFunc func([]device.View)

// watcher follows the three store subtrees of one user.
type watcher struct {
	r      *Reconciler
	userID string
	fn     ViewFunc

	// mu serialises deliveries.
	mu    sync.Mutex
	snaps userSnapshots
	seen  [3]bool

	disposed atomic.Bool
	unsubs   []store.Unsubscribe
}

// Watch calls fn with the user's full view set once the store has
// delivered all inputs, and again after every store change or pending
// command change. No delivery is running or starts after the returned
// cancel function returns, so it must not be called from inside fn; cancel
// is safe to call more than once.
func (r *Reconciler) Watch(userID string, fn ViewFunc) (cancel func()) {
	w := &watcher{r: r, userID: userID, fn: fn}

	r.mu.Lock()
	r.nextWatch++
	id := r.nextWatch
	if r.watchers[userID] == nil {
		r.watchers[userID] = make(map[uint64]*watcher)
	}
	r.watchers[userID][id] = w
	r.mu.Unlock()

	w.unsubs = []store.Unsubscribe{
		r.store.OnChange(store.Join(device.RecordsRoot, userID), func(s store.Snapshot) { w.update(0, s) }),
		r.store.OnChange(store.Join(device.TypesRoot, userID), func(s store.Snapshot) { w.update(1, s) }),
		r.store.OnChange(store.Join(device.DataRoot, userID), func(s store.Snapshot) { w.update(2, s) }),
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.disposed.Store(true)
			// Wait out a delivery already running.
			w.mu.Lock()
			w.mu.Unlock() //nolint:staticcheck // barrier

			r.mu.Lock()
			delete(r.watchers[userID], id)
			if len(r.watchers[userID]) == 0 {
				delete(r.watchers, userID)
			}
			r.mu.Unlock()

			for _, unsub := range w.unsubs {
				unsub()
			}
		})
	}
}

// WatcherCount returns the number of active view subscriptions.
func (r *Reconciler) WatcherCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ws := range r.watchers {
		n += len(ws)
	}
	return n
}

func (w *watcher) update(slot int, s store.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch slot {
	case 0:
		w.snaps.records = s
	case 1:
		w.snaps.types = s
	case 2:
		w.snaps.data = s
	}
	w.seen[slot] = true
	w.emitLocked()
}

func (w *watcher) refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emitLocked()
}

func (w *watcher) emitLocked() {
	if w.disposed.Load() || !w.seen[0] || !w.seen[1] || !w.seen[2] {
		return
	}
	views := w.r.compose(w.userID, w.snaps)
	if w.disposed.Load() {
		return
	}
	w.fn(views)
}

// notify re-delivers views to a user's watchers after pending changes.
func (r *Reconciler) notify(userID string) {
	r.mu.Lock()
	ws := make([]*watcher, 0, len(r.watchers[userID]))
	for _, w := range r.watchers[userID] {
		ws = append(ws, w)
	}
	r.mu.Unlock()

	for _, w := range ws {
		w.refresh()
	}
}
