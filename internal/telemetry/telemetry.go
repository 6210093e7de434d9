package telemetry

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMalformed is returned for payloads that are not JSON or do not match
// the envelope schema.
var ErrMalformed = errors.New("telemetry: malformed message")

// Type is the "type" field of an envelope.
type Type string

// Known message types.
const (
	TypeRelayStatus Type = "relay_status"
	TypeSensorData  Type = "sensor_data"
	TypeHeartbeat   Type = "heartbeat"
)

// Message is one decoded telemetry variant.
type Message interface {
	Type() Type
	isMessage()
}

// RelayStatus reports the output state of every channel of a board.
type RelayStatus struct {
	// Channels maps channel keys (relay1, led2, ...) to on/off.
	Channels map[string]bool

	// Pins maps channel keys to GPIO pins when the board reports them.
	Pins map[string]int
}

// SensorData carries the latest readings of a board. Null readings are
// dropped.
type SensorData struct {
	Readings map[string]float64
}

// Heartbeat is the periodic liveness report of a board.
type Heartbeat struct {
	IPAddress string
	WiFiRSSI  int
	Uptime    int64
	FreeHeap  int64
}

// Unknown is any message type not listed above.
type Unknown struct {
	Kind Type
}

func (RelayStatus) Type() Type { return TypeRelayStatus }
func (SensorData) Type() Type  { return TypeSensorData }
func (Heartbeat) Type() Type   { return TypeHeartbeat }
func (u Unknown) Type() Type   { return u.Kind }

func (RelayStatus) isMessage() {}
func (SensorData) isMessage()  {}
func (Heartbeat) isMessage()   {}
func (Unknown) isMessage()     {}

// Envelope is the decoded message with its header fields.
type Envelope struct {
	DeviceID   string
	DeviceName string

	// Timestamp is the board's uptime clock in milliseconds, not wall time.
	Timestamp int64

	Message Message
}

// wire mirrors the JSON published by the firmware.
type wire struct {
	Type       Type            `json:"type"`
	DeviceID   string          `json:"device_id"`
	DeviceName string          `json:"device_name"`
	Timestamp  int64           `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
	Pins       map[string]int  `json:"pins"`
	Uptime     int64           `json:"uptime"`
	FreeHeap   int64           `json:"free_heap"`
	WiFiRSSI   int             `json:"wifi_rssi"`
	IPAddress  string          `json:"ip_address"`
}

//go:embed envelope.schema.json
var schemaDoc []byte

var envelopeSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaDoc))
	if err != nil {
		return nil, fmt.Errorf("parsing envelope schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("envelope.schema.json", doc); err != nil {
		return nil, fmt.Errorf("adding envelope schema: %w", err)
	}
	return c.Compile("envelope.schema.json")
})

// Parse validates payload and decodes it.
func Parse(payload []byte) (Envelope, error) {
	schema, err := envelopeSchema()
	if err != nil {
		return Envelope{}, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := schema.Validate(inst); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	var w wire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	env := Envelope{DeviceID: w.DeviceID, DeviceName: w.DeviceName, Timestamp: w.Timestamp}

	switch w.Type {
	case TypeRelayStatus:
		var channels map[string]bool
		if err := json.Unmarshal(w.Data, &channels); err != nil {
			return Envelope{}, fmt.Errorf("%w: relay data: %w", ErrMalformed, err)
		}
		env.Message = RelayStatus{Channels: channels, Pins: w.Pins}

	case TypeSensorData:
		var raw map[string]*float64
		if err := json.Unmarshal(w.Data, &raw); err != nil {
			return Envelope{}, fmt.Errorf("%w: sensor data: %w", ErrMalformed, err)
		}
		readings := make(map[string]float64, len(raw))
		for k, v := range raw {
			if v != nil && !math.IsNaN(*v) {
				readings[k] = *v
			}
		}
		env.Message = SensorData{Readings: readings}

	case TypeHeartbeat:
		env.Message = Heartbeat{
			IPAddress: w.IPAddress,
			WiFiRSSI:  w.WiFiRSSI,
			Uptime:    w.Uptime,
			FreeHeap:  w.FreeHeap,
		}

	default:
		env.Message = Unknown{Kind: w.Type}
	}
	return env, nil
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
