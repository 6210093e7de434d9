package serial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Realtime) {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { s.Close() })

	reg := NewRegistry(s)
	reg.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	require.NoError(t, reg.Provision(context.Background(), SampleRecords()...))
	require.NoError(t, reg.Provision(context.Background(), Record{Serial: "SN001", Type: "temperature_sensor"}))
	return reg, s
}

func TestValidate_ExactMatch(t *testing.T) {
	reg, _ := newTestRegistry(t)

	rec, err := reg.Validate(context.Background(), "ESP32-001A")
	require.NoError(t, err)
	assert.Equal(t, "ESP32-001A", rec.Serial)
	assert.Equal(t, "relay4", rec.Type)
	assert.Len(t, rec.Relays, 4)
	assert.False(t, rec.Claimed)
	assert.Equal(t, int64(1_700_000_000_000), rec.CreatedAt)
}

func TestValidate_CaseInsensitiveFallback(t *testing.T) {
	reg, _ := newTestRegistry(t)

	rec, err := reg.Validate(context.Background(), "sn001")
	require.NoError(t, err)
	assert.Equal(t, "SN001", rec.Serial)
	assert.Equal(t, "temperature_sensor", rec.Type)
}

func TestValidate_NotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for _, sn := range []string{"NOPE", "", "  ", "a/b", "a.b"} {
		_, err := reg.Validate(context.Background(), sn)
		assert.ErrorIs(t, err, ErrNotFound, sn)
	}
}

func TestValidate_HasNoSideEffect(t *testing.T) {
	reg, s := newTestRegistry(t)
	before, err := s.Get(context.Background(), Root)
	require.NoError(t, err)

	_, err = reg.Validate(context.Background(), "esp32-003c")
	require.NoError(t, err)

	after, err := s.Get(context.Background(), Root)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMarkClaimed(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.MarkClaimed(ctx, "ESP32-001A", "u1"))

	rec, err := reg.Validate(ctx, "ESP32-001A")
	require.NoError(t, err)
	assert.True(t, rec.Claimed)
	assert.Equal(t, "u1", rec.ClaimedBy)
	assert.NotZero(t, rec.ClaimedAt)

	// Same user: idempotent.
	assert.NoError(t, reg.MarkClaimed(ctx, "ESP32-001A", "u1"))

	// Another user: rejected.
	assert.ErrorIs(t, reg.MarkClaimed(ctx, "ESP32-001A", "u2"), ErrAlreadyClaimed)
	assert.ErrorIs(t, reg.MarkClaimed(ctx, "ESP32-USED1", "u1"), ErrAlreadyClaimed)
	assert.ErrorIs(t, reg.MarkClaimed(ctx, "MISSING", "u1"), ErrNotFound)
	assert.Error(t, reg.MarkClaimed(ctx, "ESP32-002B", ""))
}

func TestMarkClaimed_ConcurrentUsers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for _, uid := range []string{"u1", "u2", "u3", "u4"} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			if err := reg.MarkClaimed(ctx, "ESP32-002B", uid); err == nil {
				mu.Lock()
				winners = append(winners, uid)
				mu.Unlock()
			}
		}(uid)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	rec, err := reg.Validate(ctx, "ESP32-002B")
	require.NoError(t, err)
	assert.Equal(t, winners[0], rec.ClaimedBy)
}

func TestRelease(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.MarkClaimed(ctx, "ESP32-003C", "u1"))
	assert.ErrorIs(t, reg.Release(ctx, "ESP32-003C", "u2"), ErrNotClaimed)
	require.NoError(t, reg.Release(ctx, "ESP32-003C", "u1"))

	rec, err := reg.Validate(ctx, "ESP32-003C")
	require.NoError(t, err)
	assert.False(t, rec.Claimed)
	assert.Empty(t, rec.ClaimedBy)

	require.NoError(t, reg.MarkClaimed(ctx, "ESP32-003C", "u2"))
}

func TestProvision_RejectsInvalid(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.Provision(context.Background(), Record{Serial: "OK1", Type: "plug"}, Record{Serial: "bad serial", Type: "plug"})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = reg.Validate(context.Background(), "OK1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, reg.Provision(context.Background(), Record{Serial: "NOTYPE"}), ErrInvalidRecord)
}

func TestList(t *testing.T) {
	reg, _ := newTestRegistry(t)

	recs, err := reg.List(context.Background())
	require.NoError(t, err)
	serials := make([]string, 0, len(recs))
	for _, r := range recs {
		serials = append(serials, r.Serial)
	}
	assert.Equal(t, []string{"ESP32-001A", "ESP32-002B", "ESP32-003C", "ESP32-USED1", "SN001"}, serials)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Greenhouse", Record{Serial: "SN1", Name: "Greenhouse"}.DisplayName())
	assert.Equal(t, "relay4 32-001", Record{Serial: "ESP32-001", Type: "relay4"}.DisplayName())
	assert.Equal(t, "plug SN1", Record{Serial: "SN1", Type: "plug"}.DisplayName())
}

func TestLoadSeed(t *testing.T) {
	recs, err := LoadSeed("testdata/seed.yaml")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "SN003", recs[0].Serial)
	assert.Equal(t, "Relay 3", recs[0].Relays["relay3"])
	assert.Equal(t, "Greenhouse sensor", recs[1].Name)

	_, err = LoadSeed("testdata/bad_seed.yaml")
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = LoadSeed("testdata/missing.yaml")
	assert.Error(t, err)
}
