package catalog

// DashboardKind is the dashboard adapter that renders a device.
type DashboardKind string

// Dashboard kinds.
const (
	DashboardSwitch      DashboardKind = "switch"
	DashboardGauge       DashboardKind = "gauge"
	DashboardLock        DashboardKind = "lock"
	DashboardSpeedometer DashboardKind = "speedometer"
	DashboardMotion      DashboardKind = "motion"
	DashboardTank        DashboardKind = "tank"
	DashboardMap         DashboardKind = "map"
	DashboardCamera      DashboardKind = "camera"
	DashboardCounter     DashboardKind = "counter"
)

// AllDashboardKinds returns every dashboard kind.
func AllDashboardKinds() []DashboardKind {
	return []DashboardKind{
		DashboardSwitch, DashboardGauge, DashboardLock, DashboardSpeedometer,
		DashboardMotion, DashboardTank, DashboardMap, DashboardCamera, DashboardCounter,
	}
}

// Valid reports whether k is a known dashboard kind.
func (k DashboardKind) Valid() bool {
	for _, known := range AllDashboardKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// DataKind returns the runtime value shape the dashboard expects.
func (k DashboardKind) DataKind() DataKind {
	switch k {
	case DashboardSwitch, DashboardLock, DashboardMotion:
		return DataBoolean
	case DashboardMap:
		return DataObject
	case DashboardCamera:
		return DataString
	default:
		return DataNumber
	}
}

// DataKind is the shape of a device's runtime value.
type DataKind string

// Data kinds.
const (
	DataBoolean DataKind = "boolean"
	DataNumber  DataKind = "number"
	DataObject  DataKind = "object"
	DataString  DataKind = "string"
)

// HardwareType identifies a kind of physical board.
type HardwareType string

// Hardware types.
const (
	HardwareRelay4         HardwareType = "relay4"
	HardwareRelay8         HardwareType = "relay8"
	HardwareLighting       HardwareType = "lighting"
	HardwarePlug           HardwareType = "plug"
	HardwareSecurityCamera HardwareType = "security_camera"
	HardwareDoorLock       HardwareType = "door_lock"
	HardwareMotionSensor   HardwareType = "motion_sensor"
	HardwareTemperature    HardwareType = "temperature_sensor"
	HardwareHumidity       HardwareType = "humidity_sensor"
	HardwareLightSensor    HardwareType = "light_sensor"
	HardwareSoundSensor    HardwareType = "sound_sensor"
	HardwareGasSensor      HardwareType = "gas_sensor"
	HardwareWaterSensor    HardwareType = "water_sensor"
	HardwarePressureSensor HardwareType = "pressure_sensor"
	HardwareSoilMoisture   HardwareType = "soil_moisture"
	HardwarePHSensor       HardwareType = "ph_sensor"
	HardwareGPSTracker     HardwareType = "gps_tracker"
	HardwareServoMotor     HardwareType = "servo_motor"
	HardwareStepperMotor   HardwareType = "stepper_motor"
	HardwareBuzzer         HardwareType = "buzzer"
	HardwareLEDStrip       HardwareType = "led_strip"
	HardwareFanController  HardwareType = "fan_controller"
	HardwareAirQuality     HardwareType = "air_quality"
	HardwareWeatherStation HardwareType = "weather_station"
	HardwareIrrigation     HardwareType = "irrigation"
	HardwareOther          HardwareType = "other"
)

// TypeConfig describes how a device type is rendered.
type TypeConfig struct {
	Type      string        `json:"type"`
	Label     string        `json:"label"`
	Dashboard DashboardKind `json:"dashboard"`
	DataKind  DataKind      `json:"dataKind"`
	Unit      string        `json:"unit,omitempty"`

	// Min and Max bound numeric values; nil when unbounded.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Channel is one independently controllable output of a board.
type Channel struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Pin   int    `json:"pin"`
}

// HardwareProfile describes a board.
type HardwareProfile struct {
	Type     HardwareType `json:"type"`
	Label    string       `json:"label"`
	Category string       `json:"category"`

	// MultiChannel boards expand into one logical device per channel.
	MultiChannel bool `json:"multiChannel"`

	Channels []Channel `json:"channels,omitempty"`

	// Sensors names the readings the board reports in sensor_data.
	Sensors []string `json:"sensors,omitempty"`
}

// Channel returns the channel with key, if the board has it.
func (p HardwareProfile) Channel(key string) (Channel, bool) {
	for _, ch := range p.Channels {
		if ch.Key == key {
			return ch, true
		}
	}
	return Channel{}, false
}

// ChannelForPin returns the channel driven by pin, if any.
func (p HardwareProfile) ChannelForPin(pin int) (Channel, bool) {
	for _, ch := range p.Channels {
		if ch.Pin == pin {
			return ch, true
		}
	}
	return Channel{}, false
}
