package registration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
)

func TestRenameAndAssignDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)

	require.NoError(t, f.svc.Rename(ctx, "u1", "SN003_relay2", "  Garden pump "))
	require.NoError(t, f.svc.AssignDashboard(ctx, "u1", "SN003_relay2", catalog.DashboardLock))

	d, err := f.svc.Get(ctx, "u1", "SN003_relay2")
	require.NoError(t, err)
	assert.Equal(t, "Garden pump", d.Name)
	assert.Equal(t, catalog.DashboardLock, d.Dashboard)
	assert.Equal(t, "relay2", d.ChannelKey)
	assert.Equal(t, device.State{"on": false}, d.Record.State)

	assert.ErrorIs(t, f.svc.Rename(ctx, "u1", "SN003_relay2", " "), device.ErrInvalidName)
	assert.ErrorIs(t, f.svc.AssignDashboard(ctx, "u1", "SN003_relay2", "dial"), ErrInvalidDashboard)
	assert.ErrorIs(t, f.svc.Rename(ctx, "u1", "MISSING", "x"), ErrDeviceNotFound)
	assert.ErrorIs(t, f.svc.AssignDashboard(ctx, "u2", "SN003_relay2", catalog.DashboardGauge), ErrDeviceNotFound)
}

func TestGet_InvalidKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), "u1", "a/b")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.ErrorIs(t, err, device.ErrInvalidKey)
}

func TestList_UntypedDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "u1", "SN001")
	require.NoError(t, err)
	require.NoError(t, f.store.Remove(ctx, device.TypePath("u1", "SN001")))

	devices, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Empty(t, devices[0].Dashboard)

	empty, err := f.svc.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRemove_ReleasesSerialWithLastDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, device.DataPath("u1", "SN003_relay1"), device.RuntimeValue{Value: true, Timestamp: 1}))

	require.NoError(t, f.svc.Remove(ctx, "u1", "SN003_relay1"))

	snap, err := f.store.Get(ctx, device.DataPath("u1", "SN003_relay1"))
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	snap, err = f.store.Get(ctx, device.TypePath("u1", "SN003_relay1"))
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	rec, err := f.serials.Validate(ctx, "SN003")
	require.NoError(t, err)
	assert.True(t, rec.Claimed, "serial stays claimed while channels remain")

	for _, key := range res.Keys()[1:] {
		require.NoError(t, f.svc.Remove(ctx, "u1", key))
	}

	rec, err = f.serials.Validate(ctx, "SN003")
	require.NoError(t, err)
	assert.False(t, rec.Claimed)

	snap, err = f.store.Get(ctx, device.IndexPath("SN003"))
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	// Another account may now claim the board.
	_, err = f.svc.Register(ctx, "u2", "SN003")
	assert.NoError(t, err)
}

func TestRemove_ThenReRegisterRestoresChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)
	require.NoError(t, f.svc.Remove(ctx, "u1", "SN003_relay2"))

	res, err := f.svc.Register(ctx, "u1", "SN003")
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.Equal(t, []string{"SN003_relay2"}, res.Keys())
}

func TestRemove_NotFound(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Remove(context.Background(), "u1", "SN003_relay1"), ErrDeviceNotFound)
}
