package reconciler

import (
	"math"
	"reflect"

	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/store"
	"github.com/nerrad567/devicesync-core/internal/telemetry"
)

// board is one telemetry source with the records built from it.
type board struct {
	serial  string
	index   device.OwnerIndex
	records map[string]device.Record
	now     int64
}

// update is the store writes and command confirmations produced by one
// telemetry message.
type update struct {
	writes   map[string]any
	confirms []confirmation
}

// confirmation is an attribute value reported by a board.
type confirmation struct {
	key   string
	attr  string
	value any
}

func (u *update) set(path string, value any) {
	if u.writes == nil {
		u.writes = make(map[string]any)
	}
	u.writes[path] = value
}

// touch marks a device as seen.
func (b board) touch(u *update, key string) {
	base := device.RecordPath(b.index.UserID, key)
	u.set(store.Join(base, "online"), true)
	u.set(store.Join(base, "lastUpdate"), b.now)
}

func (b board) profile() catalog.HardwareProfile {
	p, _ := catalog.Profile(catalog.HardwareType(b.index.HardwareType))
	return p
}

// relayStatus maps channel reports to devices. Devices of multi-channel
// boards follow their own channel; single-channel boards take every
// reported channel as a state attribute and derive "on" from them.
func (b board) relayStatus(msg telemetry.RelayStatus) update {
	var u update
	profile := b.profile()

	for key, channel := range b.index.Keys {
		rec, ok := b.records[key]
		if !ok {
			continue
		}

		if channel != "" {
			on, reported := msg.Channels[channel]
			if !reported {
				continue
			}
			u.confirms = append(u.confirms, confirmation{key: key, attr: "on", value: on})
			current, _ := rec.State["on"].(bool)
			if current == on && rec.Online {
				continue
			}
			b.touch(&u, key)
			u.set(store.Join(device.RecordPath(b.index.UserID, key), "state", "on"), on)
			u.set(device.DataPath(b.index.UserID, key), device.RuntimeValue{Value: on, Timestamp: b.now})
			continue
		}

		state := device.CloneState(rec.State)
		for ch, v := range msg.Channels {
			if store.ValidKey(ch) {
				state[ch] = v
			}
		}
		state["on"] = anyOn(state, channelKeys(profile, msg))
		for _, attr := range telemetry.SortedKeys(state) {
			u.confirms = append(u.confirms, confirmation{key: key, attr: attr, value: state[attr]})
		}

		if rec.Online && reflect.DeepEqual(map[string]any(rec.State), map[string]any(state)) {
			continue
		}
		b.touch(&u, key)
		u.set(store.Join(device.RecordPath(b.index.UserID, key), "state"), state)
		u.set(device.DataPath(b.index.UserID, key), device.RuntimeValue{Value: state["on"], Timestamp: b.now})
	}
	return u
}

// channelKeys returns the channels that drive "on" for a single-channel
// board: its profile channels, or every reported channel.
func channelKeys(profile catalog.HardwareProfile, msg telemetry.RelayStatus) []string {
	if len(profile.Channels) > 0 {
		keys := make([]string, len(profile.Channels))
		for i, ch := range profile.Channels {
			keys[i] = ch.Key
		}
		return keys
	}
	return telemetry.SortedKeys(msg.Channels)
}

func anyOn(state device.State, keys []string) bool {
	for _, k := range keys {
		if on, _ := state[k].(bool); on {
			return true
		}
	}
	return false
}

// sensorData stores readings on every device of the board. Single-channel
// boards whose dashboard shows a number also get the primary reading as
// their runtime value.
func (b board) sensorData(msg telemetry.SensorData) update {
	var u update

	readings := make(map[string]float64, len(msg.Readings))
	for k, v := range msg.Readings {
		if store.ValidKey(k) && !math.IsInf(v, 0) {
			readings[k] = v
		}
	}
	if len(readings) == 0 {
		return u
	}

	profile := b.profile()
	primary, hasPrimary := primaryReading(profile, readings)
	numeric := catalog.DefaultDashboardFor(b.index.HardwareType).DataKind() != catalog.DataBoolean

	for key, channel := range b.index.Keys {
		rec, ok := b.records[key]
		if !ok {
			continue
		}
		if rec.Online && reflect.DeepEqual(rec.Sensors, readings) {
			continue
		}
		b.touch(&u, key)
		u.set(store.Join(device.RecordPath(b.index.UserID, key), "sensors"), readings)
		if channel == "" && numeric && hasPrimary {
			u.set(device.DataPath(b.index.UserID, key), device.RuntimeValue{Value: primary, Timestamp: b.now})
		}
	}
	return u
}

// primaryReading picks the reading a gauge shows: the first sensor of the
// profile, or the only reading, or the whole set.
func primaryReading(profile catalog.HardwareProfile, readings map[string]float64) (any, bool) {
	for _, name := range profile.Sensors {
		if v, ok := readings[name]; ok {
			return v, true
		}
	}
	if len(readings) == 1 {
		for _, v := range readings {
			return v, true
		}
	}
	out := make(map[string]any, len(readings))
	for k, v := range readings {
		out[k] = v
	}
	return out, len(out) > 0
}

// heartbeat marks every device of the board online and records its
// network report. Device state is left alone.
func (b board) heartbeat(msg telemetry.Heartbeat) update {
	var u update
	network := device.Network{
		IPAddress: msg.IPAddress,
		WiFiRSSI:  msg.WiFiRSSI,
		Uptime:    msg.Uptime,
		FreeHeap:  msg.FreeHeap,
	}
	for key := range b.index.Keys {
		if _, ok := b.records[key]; !ok {
			continue
		}
		b.touch(&u, key)
		u.set(store.Join(device.RecordPath(b.index.UserID, key), "network"), network)
	}
	return u
}

// sameValue compares a proposed value with a reported one. Numbers
// compare by value regardless of Go type.
func sameValue(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
