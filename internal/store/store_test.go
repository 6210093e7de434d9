package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/infrastructure/database"
	_ "github.com/nerrad567/devicesync-core/migrations"
)

// backends returns one fresh store per backend.
func backends(t *testing.T) map[string]*Realtime {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "store.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	sqlite := NewSQLite(db.DB)
	mem := NewMemory()
	t.Cleanup(func() {
		sqlite.Close()
		mem.Close()
	})
	return map[string]*Realtime{"sqlite": sqlite, "memory": mem}
}

func TestSetGet_Hierarchical(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, "devices/u1/ESP32-001A_relay1", map[string]any{
				"name":  "Relay 1",
				"state": map[string]any{"on": true},
			}))

			snap, err := s.Get(ctx, "devices/u1")
			require.NoError(t, err)
			require.True(t, snap.Exists)
			assert.Equal(t, []string{"ESP32-001A_relay1"}, snap.Keys())

			on, err := s.Get(ctx, "devices/u1/ESP32-001A_relay1/state/on")
			require.NoError(t, err)
			assert.Equal(t, true, on.Value)

			var rec struct {
				Name  string `json:"name"`
				State struct {
					On bool `json:"on"`
				} `json:"state"`
			}
			require.NoError(t, snap.Child("ESP32-001A_relay1").Decode(&rec))
			assert.Equal(t, "Relay 1", rec.Name)
			assert.True(t, rec.State.On)
		})
	}
}

func TestSet_ReplacesSubtreeAndAncestorLeaf(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, "a/b", map[string]any{"x": 1, "y": 2}))
			require.NoError(t, s.Set(ctx, "a/b", map[string]any{"z": 3}))

			snap, err := s.Get(ctx, "a/b")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"z": float64(3)}, snap.Value)

			// A scalar at a/b is replaced by a write beneath it.
			require.NoError(t, s.Set(ctx, "a/b", "leaf"))
			require.NoError(t, s.Set(ctx, "a/b/c", true))
			snap, err = s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"b": map[string]any{"c": true}}, snap.Value)
		})
	}
}

func TestRemove(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Set(ctx, "valid_sn/ESP32-001A", map[string]any{"hardwareType": "relay4"}))
			require.NoError(t, s.Set(ctx, "valid_sn/ESP32-0010", map[string]any{"hardwareType": "lighting"}))
			require.NoError(t, s.Remove(ctx, "valid_sn/ESP32-001A"))

			snap, err := s.Get(ctx, "valid_sn/ESP32-001A")
			require.NoError(t, err)
			assert.False(t, snap.Exists)

			// Siblings sharing a prefix survive.
			snap, err = s.Get(ctx, "valid_sn/ESP32-0010")
			require.NoError(t, err)
			assert.True(t, snap.Exists)
		})
	}
}

func TestUpdateMany(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.UpdateMany(ctx, map[string]any{
				"devices/u1/K1":      map[string]any{"name": "one"},
				"device_types/u1/K1": "switch",
			}))

			snap, err := s.Get(ctx, "device_types/u1/K1")
			require.NoError(t, err)
			assert.Equal(t, "switch", snap.Value)

			err = s.UpdateMany(ctx, map[string]any{
				"a":   1,
				"a-x": 2,
				"a/b": 3,
			})
			assert.ErrorIs(t, err, ErrOverlappingPaths)
		})
	}
}

func TestInvalidPaths(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, "a//b", 1), ErrInvalidPath)
	assert.ErrorIs(t, s.Set(ctx, "a.b", 1), ErrInvalidPath)
	assert.ErrorIs(t, s.Set(ctx, "", 1), ErrInvalidPath)
	assert.ErrorIs(t, s.Set(ctx, "a", map[string]any{"b$": 1}), ErrInvalidPath)
	_, err := s.Get(ctx, "a#")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestClosedStore(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "a")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.Set(context.Background(), "a", 1), ErrUnavailable)
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) listen(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) last() (Snapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

func TestOnChange(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &recorder{}
			unsub := s.OnChange("deviceData/u1", rec.listen)
			defer unsub()

			require.Eventually(t, func() bool {
				snap, n := rec.last()
				return n >= 1 && !snap.Exists
			}, time.Second, 5*time.Millisecond)

			require.NoError(t, s.Set(ctx, "deviceData/u1/K1", map[string]any{"value": 21.5}))
			require.Eventually(t, func() bool {
				snap, _ := rec.last()
				return snap.Exists &&
					assert.ObjectsAreEqual(map[string]any{"K1": map[string]any{"value": 21.5}}, snap.Value)
			}, time.Second, 5*time.Millisecond)

			// Unrelated writes do not notify.
			_, before := rec.last()
			require.NoError(t, s.Set(ctx, "deviceData/u2/K9", 1))
			time.Sleep(50 * time.Millisecond)
			_, after := rec.last()
			assert.Equal(t, before, after)
		})
	}
}

func TestOnChange_AncestorWriteNotifies(t *testing.T) {
	s := NewMemory()
	rec := &recorder{}
	unsub := s.OnChange("devices/u1/K1", rec.listen)
	defer unsub()

	require.NoError(t, s.Set(context.Background(), "devices/u1", map[string]any{"K1": map[string]any{"name": "x"}}))
	require.Eventually(t, func() bool {
		snap, _ := rec.last()
		return snap.Exists
	}, time.Second, 5*time.Millisecond)
}

func TestOnChange_Unsubscribe(t *testing.T) {
	s := NewMemory()
	rec := &recorder{}
	unsub := s.OnChange("x", rec.listen)

	require.Eventually(t, func() bool {
		_, n := rec.last()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.Equal(t, 0, s.SubscriberCount())

	require.NoError(t, s.Set(context.Background(), "x", 1))
	time.Sleep(50 * time.Millisecond)
	_, n := rec.last()
	assert.Equal(t, 1, n)
}

func TestJoinAndRelated(t *testing.T) {
	assert.Equal(t, "devices/u1/K", Join("devices", "/u1/", "", "K"))
	assert.True(t, related("a/b", "a"))
	assert.True(t, related("a", "a/b"))
	assert.False(t, related("a/b", "a/bc"))
	assert.True(t, related("", "x"))
}
