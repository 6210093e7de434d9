package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDashboardFor(t *testing.T) {
	tests := []struct {
		typ  string
		want DashboardKind
	}{
		// Direct table.
		{"switch", DashboardSwitch},
		{"water_level", DashboardTank},
		{"rpm", DashboardSpeedometer},
		{"gps", DashboardMap},
		{"light", DashboardGauge},

		// Keyword table, exact.
		{"relay4", DashboardSwitch},
		{"valve", DashboardSwitch},
		{"smoke", DashboardMotion},

		// Keyword table, contained.
		{"relay8", DashboardSwitch},
		{"lighting", DashboardSwitch},
		{"servo_motor", DashboardSpeedometer},
		{"irrigation_valve", DashboardSwitch},
		{"door_lock", DashboardLock},
		{"security_camera", DashboardCamera},
		{"motion_sensor", DashboardMotion},
		{"water_sensor", DashboardTank},
		{"light_sensor", DashboardSpeedometer},
		{"temperature_sensor", DashboardGauge},
		{"fan_controller", DashboardSpeedometer},
		{"gps_tracker", DashboardMap},
		{"Door_Lock", DashboardLock},

		// Generic fallback.
		{"soil_moisture", DashboardGauge},
		{"air_quality", DashboardGauge},
		{"", DashboardGauge},
		{"zzz", DashboardGauge},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultDashboardFor(tt.typ))
		})
	}
}

func TestDefaultDashboardFor_DirectBeatsKeyword(t *testing.T) {
	// "light" is speedometer in the keyword table but gauge in the direct table.
	assert.Equal(t, DashboardGauge, DefaultDashboardFor("light"))
	assert.Equal(t, DashboardSpeedometer, DefaultDashboardFor("light_sensor"))
}

func TestDefaultDashboardFor_HardwareTypes(t *testing.T) {
	for _, hw := range HardwareTypes() {
		kind := DefaultDashboardFor(hw)
		assert.True(t, kind.Valid(), "hardware %s", hw)
	}
	assert.Equal(t, DashboardSwitch, DefaultDashboardFor(HardwareRelay4))
}

func TestLookup(t *testing.T) {
	cfg, ok := Lookup("temperature")
	require.True(t, ok)
	assert.Equal(t, DashboardGauge, cfg.Dashboard)
	assert.Equal(t, DataNumber, cfg.DataKind)
	assert.Equal(t, "°C", cfg.Unit)
	require.NotNil(t, cfg.Min)
	assert.Equal(t, -10.0, *cfg.Min)
	assert.Equal(t, 50.0, *cfg.Max)

	cfg, ok = Lookup("temperature_sensor")
	assert.False(t, ok)
	assert.Equal(t, "temperature_sensor", cfg.Type)
	assert.Equal(t, "°C", cfg.Unit)

	cfg, ok = Lookup("door_lock")
	assert.False(t, ok)
	assert.Equal(t, DashboardLock, cfg.Dashboard)
	assert.Equal(t, DataBoolean, cfg.DataKind)
	assert.Nil(t, cfg.Min)

	cfg, ok = Lookup("mystery")
	assert.False(t, ok)
	assert.Equal(t, DashboardGauge, cfg.Dashboard)
	assert.Equal(t, DataNumber, cfg.DataKind)
}

func TestDeviceTypes(t *testing.T) {
	types := DeviceTypes()
	require.Len(t, types, 20)
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1].Type, types[i].Type)
	}
	for _, cfg := range types {
		assert.True(t, cfg.Dashboard.Valid(), cfg.Type)
		assert.Equal(t, cfg.Dashboard.DataKind(), cfg.DataKind, cfg.Type)
	}
}

func TestDashboardKind(t *testing.T) {
	assert.Len(t, AllDashboardKinds(), 9)
	assert.False(t, DashboardKind("dial").Valid())
	assert.Equal(t, DataBoolean, DashboardSwitch.DataKind())
	assert.Equal(t, DataObject, DashboardMap.DataKind())
	assert.Equal(t, DataString, DashboardCamera.DataKind())
	assert.Equal(t, DataNumber, DashboardTank.DataKind())
}

func TestProfile(t *testing.T) {
	p, ok := Profile(HardwareRelay4)
	require.True(t, ok)
	assert.True(t, p.MultiChannel)
	require.Len(t, p.Channels, 4)
	assert.Equal(t, Channel{Key: "relay1", Label: "Relay 1", Pin: 25}, p.Channels[0])
	assert.Equal(t, 14, p.Channels[3].Pin)

	p8, ok := Profile(HardwareRelay8)
	require.True(t, ok)
	require.Len(t, p8.Channels, 8)
	assert.Equal(t, 33, p8.Channels[7].Pin)

	ch, ok := p8.ChannelForPin(12)
	require.True(t, ok)
	assert.Equal(t, "relay5", ch.Key)
	_, ok = p8.Channel("relay9")
	assert.False(t, ok)

	light, ok := Profile(HardwareLighting)
	require.True(t, ok)
	assert.False(t, light.MultiChannel)
	assert.Len(t, light.Channels, 3)

	unknown, ok := Profile("flux_capacitor")
	assert.False(t, ok)
	assert.False(t, unknown.MultiChannel)
	assert.Equal(t, "Other", unknown.Category)
}

func TestProfile_ReturnsCopy(t *testing.T) {
	p, _ := Profile(HardwareRelay4)
	p.Channels[0].Pin = 99

	again, _ := Profile(HardwareRelay4)
	assert.Equal(t, 25, again.Channels[0].Pin)
}

func TestHardwareTypes(t *testing.T) {
	types := HardwareTypes()
	assert.Len(t, types, 26)
	for _, hw := range types {
		assert.True(t, hw.Known(), hw)
	}
	assert.False(t, HardwareType("nope").Known())
}
