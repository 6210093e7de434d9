package registration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/serial"
	"github.com/nerrad567/devicesync-core/internal/store"
)

var errInjected = errors.New("injected write failure")

// faultyStore fails UpdateMany calls selected by fail.
type faultyStore struct {
	store.Store

	mu   sync.Mutex
	fail func(updates map[string]any) bool
}

func (f *faultyStore) UpdateMany(ctx context.Context, updates map[string]any) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail != nil && fail(updates) {
		return errInjected
	}
	return f.Store.UpdateMany(ctx, updates)
}

func (f *faultyStore) setFail(fn func(map[string]any) bool) {
	f.mu.Lock()
	f.fail = fn
	f.mu.Unlock()
}

type fixture struct {
	svc     *Service
	serials *serial.Registry
	store   *faultyStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })
	fs := &faultyStore{Store: mem}

	serials := serial.NewRegistry(mem)
	records, err := serial.LoadSeed("../serial/testdata/seed.yaml")
	require.NoError(t, err)
	require.NoError(t, serials.Provision(context.Background(), records...))
	require.NoError(t, serials.Provision(context.Background(), serial.SampleRecords()...))

	svc := NewService(fs, serials)
	svc.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	svc.SetRetry(2, 0)
	return &fixture{svc: svc, serials: serials, store: fs}
}

// batchOnly matches the multi-device batch, not per-device writes.
func batchOnly(updates map[string]any) bool { return len(updates) > 2 }

func touches(suffixes ...string) func(map[string]any) bool {
	return func(updates map[string]any) bool {
		for path := range updates {
			for _, s := range suffixes {
				if strings.HasSuffix(path, s) {
					return true
				}
			}
		}
		return false
	}
}

func TestRegister_FourRelayBoard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)

	assert.Equal(t, "SN003", res.Serial)
	assert.Equal(t, catalog.HardwareRelay4, res.HardwareType)
	assert.False(t, res.Resumed)
	assert.Equal(t, []string{"SN003_relay1", "SN003_relay2", "SN003_relay3", "SN003_relay4"}, res.Keys())

	devices, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 4)
	for i, d := range devices {
		assert.Equal(t, "SN003", d.Record.Serial)
		assert.Equal(t, res.Devices[i].ChannelKey, d.ChannelKey)
		assert.Equal(t, device.State{"on": false}, d.Record.State)
		assert.False(t, d.Record.Online)
		assert.Equal(t, catalog.DashboardSwitch, d.Dashboard)
	}
	assert.Equal(t, 25, devices[0].Record.Pin)
	assert.Equal(t, 14, devices[3].Record.Pin)

	rec, err := f.serials.Validate(ctx, "SN003")
	require.NoError(t, err)
	assert.True(t, rec.Claimed)
	assert.Equal(t, "u1", rec.ClaimedBy)

	snap, err := f.store.Get(ctx, device.IndexPath("SN003"))
	require.NoError(t, err)
	var idx device.OwnerIndex
	require.NoError(t, snap.Decode(&idx))
	assert.Equal(t, "u1", idx.UserID)
	assert.Equal(t, "relay4", idx.HardwareType)
	assert.Equal(t, "relay3", idx.Keys["SN003_relay3"])
}

func TestRegister_SingleChannel(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), "u1", "SN001")
	require.NoError(t, err)
	require.Len(t, res.Devices, 1)

	d := res.Devices[0]
	assert.Equal(t, "SN001", d.Key)
	assert.Empty(t, d.ChannelKey)
	assert.Equal(t, catalog.DashboardGauge, d.Dashboard)
	assert.Equal(t, device.State{"on": false}, d.Record.State)
}

func TestRegister_LightingIsSingleDevice(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), "u1", "ESP32-003C")
	require.NoError(t, err)
	assert.Equal(t, []string{"ESP32-003C"}, res.Keys())
	assert.Equal(t, catalog.DashboardSwitch, res.Devices[0].Dashboard)
}

func TestRegister_NormalisesSerial(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), "u1", "  sn003 ")
	require.NoError(t, err)
	assert.Equal(t, "SN003", res.Serial)
	assert.Len(t, res.Devices, 4)
}

func TestRegister_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "", "SN003")
	assert.ErrorIs(t, err, ErrUserRequired)

	_, err = f.svc.Register(ctx, "u1", "NOPE")
	assert.ErrorIs(t, err, ErrUnknownSerial)

	_, err = f.svc.Register(ctx, "u1", "bad serial!")
	assert.ErrorIs(t, err, ErrUnknownSerial)

	_, err = f.svc.Register(ctx, "u1", "ESP32-USED1")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestRegister_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "u1", "SN003")
	assert.ErrorIs(t, err, ErrAlreadyInUserAccount)

	_, err = f.svc.Register(ctx, "u2", "SN003")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	devices, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 4)
}

func TestRegister_InProgress(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.svc.gate.acquire(gateKey("u1", "SN003")))

	_, err := f.svc.Register(context.Background(), "u1", "sn003")
	assert.ErrorIs(t, err, ErrRegistrationInProgress)

	// Other users and serials are unaffected.
	_, err = f.svc.Register(context.Background(), "u1", "SN001")
	assert.NoError(t, err)

	f.svc.gate.release(gateKey("u1", "SN003"))
	_, err = f.svc.Register(context.Background(), "u1", "SN003")
	assert.NoError(t, err)
}

func TestRegister_ConcurrentCallersCreateOneSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(ctx, "u1", "SN003")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrRegistrationInProgress), errors.Is(err, ErrAlreadyInUserAccount):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	devices, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 4)
}

func TestRegister_BatchFailureRecoveredByRetry(t *testing.T) {
	f := newFixture(t)
	f.store.setFail(batchOnly)

	res, err := f.svc.Register(context.Background(), "u1", "SN003")
	require.NoError(t, err)
	assert.Len(t, res.Devices, 4)

	snap, err := f.store.Get(context.Background(), device.IndexPath("SN003"))
	require.NoError(t, err)
	assert.True(t, snap.Exists)
}

func TestRegister_PartialThenResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := touches("SN003_relay3", "SN003_relay4")
	f.store.setFail(func(u map[string]any) bool { return batchOnly(u) || failing(u) })

	res, err := f.svc.Register(ctx, "u1", "SN003")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialRegistration)
	assert.ErrorIs(t, err, errInjected)

	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "SN003", pe.Serial)
	assert.Equal(t, []string{"relay1", "relay2"}, pe.Succeeded)
	assert.Equal(t, []string{"relay3", "relay4"}, pe.Failed)
	assert.Equal(t, []string{"SN003_relay1", "SN003_relay2"}, res.Keys())

	f.store.setFail(nil)

	res, err = f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, []string{"SN003_relay3", "SN003_relay4"}, res.Keys())

	devices, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, devices, 4)

	_, err = f.svc.Register(ctx, "u1", "SN003")
	assert.ErrorIs(t, err, ErrAlreadyInUserAccount)
}

func TestRegister_TotalFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.setFail(func(map[string]any) bool { return true })

	_, err := f.svc.Register(ctx, "u1", "SN003")
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)
	assert.NotErrorIs(t, err, ErrPartialRegistration)

	rec, err := f.serials.Validate(ctx, "SN003")
	require.NoError(t, err)
	assert.False(t, rec.Claimed)
}

func TestChannelsFor_RecordLabelsWin(t *testing.T) {
	profile, ok := catalog.Profile(catalog.HardwareRelay4)
	require.True(t, ok)

	rec := serial.Record{
		Serial: "X1",
		Type:   "relay4",
		Relays: map[string]string{"relay2": "Pump", "relay1": "", "aux": ""},
	}
	got := channelsFor(rec, profile)
	require.Len(t, got, 3)
	assert.Equal(t, catalog.Channel{Key: "relay1", Label: "Relay 1", Pin: 25}, got[0])
	assert.Equal(t, catalog.Channel{Key: "relay2", Label: "Pump", Pin: 26}, got[1])
	assert.Equal(t, catalog.Channel{Key: "aux", Label: "aux"}, got[2])
}
