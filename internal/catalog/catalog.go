package catalog

import (
	"sort"
	"strings"
)

func numeric(typ, label string, dash DashboardKind, unit string, lo, hi float64) TypeConfig {
	return TypeConfig{Type: typ, Label: label, Dashboard: dash, DataKind: DataNumber, Unit: unit, Min: &lo, Max: &hi}
}

func plain(typ, label string, dash DashboardKind, kind DataKind) TypeConfig {
	return TypeConfig{Type: typ, Label: label, Dashboard: dash, DataKind: kind}
}

// deviceTypes is the direct table (tier 1).
var deviceTypes = map[string]TypeConfig{
	"switch":      plain("switch", "On/off switch", DashboardSwitch, DataBoolean),
	"temperature": numeric("temperature", "Temperature sensor", DashboardGauge, "°C", -10, 50),
	"humidity":    numeric("humidity", "Humidity sensor", DashboardGauge, "%", 0, 100),
	"lock":        plain("lock", "Door lock", DashboardLock, DataBoolean),
	"speedometer": numeric("speedometer", "Speedometer", DashboardSpeedometer, "km/h", 0, 200),
	"light":       numeric("light", "Light sensor", DashboardGauge, "lux", 0, 10000),
	"sound":       numeric("sound", "Sound sensor", DashboardGauge, "dB", 0, 120),
	"motion":      plain("motion", "Motion sensor", DashboardMotion, DataBoolean),
	"voltage":     numeric("voltage", "Voltage", DashboardGauge, "V", 0, 250),
	"current":     numeric("current", "Current", DashboardGauge, "A", 0, 50),
	"pressure":    numeric("pressure", "Water pressure", DashboardGauge, "bar", 0, 10),
	"water_level": numeric("water_level", "Water level", DashboardTank, "%", 0, 100),
	"gas":         numeric("gas", "Gas detector", DashboardGauge, "ppm", 0, 1000),
	"ph":          numeric("ph", "Water pH", DashboardGauge, "pH", 0, 14),
	"wind_speed":  numeric("wind_speed", "Wind speed", DashboardGauge, "m/s", 0, 50),
	"gps":         plain("gps", "GPS position", DashboardMap, DataObject),
	"camera":      plain("camera", "Camera", DashboardCamera, DataString),
	"rain":        numeric("rain", "Rainfall", DashboardGauge, "mm", 0, 100),
	"rpm":         numeric("rpm", "Rotation speed", DashboardSpeedometer, "RPM", 0, 10000),
	"counter":     numeric("counter", "Counter", DashboardCounter, "count", 0, 999999),
}

type keyword struct {
	word string
	kind DashboardKind
}

// keywords is the fallback table (tier 2) in priority order: when a type
// contains several keywords the earliest entry wins, so specific nouns
// ("camera", "motion") beat generic ones ("security", "sensor").
var keywords = []keyword{
	{"relay4", DashboardSwitch},
	{"camera", DashboardCamera},
	{"gps", DashboardMap},
	{"door", DashboardLock},
	{"lock", DashboardLock},
	{"smoke", DashboardMotion},
	{"motion", DashboardMotion},
	{"water", DashboardTank},
	{"level", DashboardTank},
	{"pump", DashboardSwitch},
	{"valve", DashboardSwitch},
	{"motor", DashboardSpeedometer},
	{"fan", DashboardSpeedometer},
	{"counter", DashboardCounter},
	{"relay", DashboardSwitch},
	{"plug", DashboardSwitch},
	{"lighting", DashboardSwitch},
	{"led", DashboardSwitch},
	{"buzzer", DashboardSwitch},
	{"switch", DashboardSwitch},
	{"gas", DashboardGauge},
	{"temperature", DashboardGauge},
	{"humidity", DashboardGauge},
	{"pressure", DashboardGauge},
	{"light", DashboardSpeedometer},
	{"sound", DashboardGauge},
	{"security", DashboardLock},
	{"sensor", DashboardGauge},
	{"other", DashboardGauge},
}

// Lookup returns the config for a device type. On a miss it returns a
// config synthesised from DefaultDashboardFor and false.
func Lookup(typ string) (TypeConfig, bool) {
	if cfg, ok := deviceTypes[typ]; ok {
		return cfg, true
	}

	kind, word := resolve(typ)
	if cfg, ok := deviceTypes[word]; ok && cfg.Dashboard == kind {
		cfg.Type = typ
		return cfg, false
	}
	return TypeConfig{Type: typ, Label: typ, Dashboard: kind, DataKind: kind.DataKind()}, false
}

// DefaultDashboardFor returns the dashboard kind a new device of typ gets.
func DefaultDashboardFor[T ~string](typ T) DashboardKind {
	kind, _ := resolve(string(typ))
	return kind
}

// resolve runs the three tiers and reports the keyword that matched.
func resolve(typ string) (DashboardKind, string) {
	if cfg, ok := deviceTypes[typ]; ok {
		return cfg.Dashboard, typ
	}

	lower := strings.ToLower(strings.TrimSpace(typ))
	if lower == "" {
		return DashboardGauge, ""
	}
	for _, kw := range keywords {
		if lower == kw.word {
			return kw.kind, kw.word
		}
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw.word) {
			return kw.kind, kw.word
		}
	}
	return DashboardGauge, ""
}

// DeviceTypes returns the direct table ordered by type.
func DeviceTypes() []TypeConfig {
	out := make([]TypeConfig, 0, len(deviceTypes))
	for _, cfg := range deviceTypes {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
