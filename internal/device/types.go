package device

import "time"

// Record is a logical device owned by one user, stored at
// devices/<uid>/<key>.
type Record struct {
	// Serial is the (uppercase) serial number of the physical board.
	Serial string `json:"serial"`
	Name   string `json:"name"`

	// HardwareType is the catalog hardware type of the board.
	HardwareType string `json:"hardwareType"`

	// ChannelKey is set for devices expanded from a multi-channel board.
	ChannelKey string `json:"channelKey,omitempty"`

	// Pin is the GPIO pin driven by this channel, 0 when unknown.
	Pin int `json:"pin,omitempty"`

	State  State `json:"state"`
	Online bool  `json:"online"`

	// LastUpdate and CreatedAt are milliseconds since the Unix epoch.
	LastUpdate int64 `json:"lastUpdate"`
	CreatedAt  int64 `json:"createdAt"`

	// Network is the last heartbeat report of the board.
	Network *Network `json:"network,omitempty"`

	// Sensors holds the latest sensor_data readings of the board.
	Sensors map[string]float64 `json:"sensors,omitempty"`
}

// Network is the connectivity report carried by heartbeats.
type Network struct {
	IPAddress string `json:"ip_address,omitempty"`
	WiFiRSSI  int    `json:"wifi_rssi"`
	Uptime    int64  `json:"uptime,omitempty"`
	FreeHeap  int64  `json:"free_heap,omitempty"`
}

// State holds device attributes such as {"on": true}.
type State map[string]any

// RuntimeValue is the most recent authoritative value of a device, stored
// at deviceData/<uid>/<key>. It is replaced wholesale on every update.
type RuntimeValue struct {
	Value     any   `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// View is the merged per-device state a dashboard renders.
type View struct {
	Key    string `json:"key"`
	Record Record `json:"record"`

	// Dashboard is the assigned dashboard kind, empty when untyped.
	Dashboard string `json:"dashboard,omitempty"`

	// State is Record.State with pending commands applied on top.
	State State `json:"state"`

	// Value is the runtime value with a pending "value" command applied.
	Value any `json:"value,omitempty"`

	// Confirmed is the last authoritative runtime value, if any.
	Confirmed *RuntimeValue `json:"confirmed,omitempty"`

	// Pending lists attributes with an unconfirmed optimistic value.
	Pending map[string]any `json:"pending,omitempty"`
}

// Untyped reports whether no dashboard kind is assigned yet.
func (v View) Untyped() bool { return v.Dashboard == "" }

// DeepCopy returns an independent copy of the record.
func (r Record) DeepCopy() Record {
	cpy := r
	cpy.State = State(deepCopyMap(r.State))
	if r.Network != nil {
		n := *r.Network
		cpy.Network = &n
	}
	if r.Sensors != nil {
		cpy.Sensors = make(map[string]float64, len(r.Sensors))
		for k, v := range r.Sensors {
			cpy.Sensors[k] = v
		}
	}
	return cpy
}

// DeepCopy returns an independent copy of the view.
func (v View) DeepCopy() View {
	cpy := v
	cpy.Record = v.Record.DeepCopy()
	cpy.State = State(deepCopyMap(v.State))
	cpy.Value = deepCopyValue(v.Value)
	cpy.Pending = deepCopyMap(v.Pending)
	if v.Confirmed != nil {
		c := *v.Confirmed
		c.Value = deepCopyValue(c.Value)
		cpy.Confirmed = &c
	}
	return cpy
}

// NowMillis converts t to the store's millisecond timestamps.
func NowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap[M ~map[string]any](m M) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return deepCopyMap(val)
	case State:
		return State(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// CloneState returns an independent copy of s, never nil.
func CloneState(s State) State {
	if s == nil {
		return State{}
	}
	return State(deepCopyMap(s))
}
