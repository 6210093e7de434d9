package catalog

import "fmt"

var relayPins = []int{25, 26, 27, 14, 12, 13, 32, 33}

func relayChannels(n int) []Channel {
	out := make([]Channel, n)
	for i := range out {
		out[i] = Channel{
			Key:   fmt.Sprintf("relay%d", i+1),
			Label: fmt.Sprintf("Relay %d", i+1),
			Pin:   relayPins[i],
		}
	}
	return out
}

var dhtSensors = []string{"temperature", "humidity", "heat_index"}

// profiles is keyed by hardware type.
var profiles = map[HardwareType]HardwareProfile{
	HardwareRelay4: {
		Label: "4-channel relay board", Category: "Control", MultiChannel: true,
		Channels: relayChannels(4), Sensors: dhtSensors,
	},
	HardwareRelay8: {
		Label: "8-channel relay board", Category: "Control", MultiChannel: true,
		Channels: relayChannels(8),
	},
	HardwareLighting: {
		Label: "LED lighting", Category: "Lighting",
		Channels: []Channel{
			{Key: "led1", Label: "LED 1", Pin: 2},
			{Key: "led2", Label: "LED 2", Pin: 4},
			{Key: "led3", Label: "LED 3", Pin: 5},
		},
	},
	HardwarePlug:           {Label: "Smart plug", Category: "Control"},
	HardwareSecurityCamera: {Label: "Security camera", Category: "Security"},
	HardwareDoorLock:       {Label: "Door lock", Category: "Security"},
	HardwareMotionSensor:   {Label: "Motion sensor", Category: "Sensor", Sensors: []string{"motion"}},
	HardwareTemperature:    {Label: "Temperature sensor", Category: "Sensor", Sensors: dhtSensors},
	HardwareHumidity:       {Label: "Humidity sensor", Category: "Sensor", Sensors: dhtSensors},
	HardwareLightSensor:    {Label: "Light sensor", Category: "Sensor", Sensors: []string{"light"}},
	HardwareSoundSensor:    {Label: "Sound sensor", Category: "Sensor", Sensors: []string{"sound"}},
	HardwareGasSensor:      {Label: "Gas sensor", Category: "Sensor", Sensors: []string{"gas"}},
	HardwareWaterSensor:    {Label: "Water level sensor", Category: "Sensor", Sensors: []string{"water_level"}},
	HardwarePressureSensor: {Label: "Pressure sensor", Category: "Sensor", Sensors: []string{"pressure"}},
	HardwareSoilMoisture:   {Label: "Soil moisture sensor", Category: "Agriculture", Sensors: []string{"soil_moisture"}},
	HardwarePHSensor:       {Label: "pH sensor", Category: "Agriculture", Sensors: []string{"ph"}},
	HardwareGPSTracker:     {Label: "GPS tracker", Category: "Location"},
	HardwareServoMotor:     {Label: "Servo motor", Category: "Control"},
	HardwareStepperMotor:   {Label: "Stepper motor", Category: "Control"},
	HardwareBuzzer:         {Label: "Buzzer", Category: "Alert"},
	HardwareLEDStrip:       {Label: "LED strip", Category: "Lighting"},
	HardwareFanController:  {Label: "Fan controller", Category: "Control"},
	HardwareAirQuality:     {Label: "Air quality sensor", Category: "Sensor", Sensors: []string{"pm25", "co2"}},
	HardwareWeatherStation: {
		Label: "Weather station", Category: "Weather",
		Sensors: []string{"temperature", "humidity", "pressure", "wind_speed", "rain"},
	},
	HardwareIrrigation: {Label: "Irrigation controller", Category: "Agriculture"},
	HardwareOther:      {Label: "Other", Category: "Other"},
}

// Profile returns the profile of a hardware type. Unknown types get a
// single-channel profile in the "Other" category and false.
func Profile(typ HardwareType) (HardwareProfile, bool) {
	p, ok := profiles[typ]
	if !ok {
		return HardwareProfile{Type: typ, Label: string(typ), Category: "Other"}, false
	}
	p.Type = typ
	p.Channels = append([]Channel(nil), p.Channels...)
	p.Sensors = append([]string(nil), p.Sensors...)
	return p, true
}

// HardwareTypes returns every known hardware type in catalog order.
func HardwareTypes() []HardwareType {
	return []HardwareType{
		HardwareRelay4, HardwareRelay8, HardwareLighting, HardwarePlug,
		HardwareSecurityCamera, HardwareDoorLock, HardwareMotionSensor,
		HardwareTemperature, HardwareHumidity, HardwareLightSensor,
		HardwareSoundSensor, HardwareGasSensor, HardwareWaterSensor,
		HardwarePressureSensor, HardwareSoilMoisture, HardwarePHSensor,
		HardwareGPSTracker, HardwareServoMotor, HardwareStepperMotor,
		HardwareBuzzer, HardwareLEDStrip, HardwareFanController,
		HardwareAirQuality, HardwareWeatherStation, HardwareIrrigation,
		HardwareOther,
	}
}

// Known reports whether typ is in the catalog.
func (t HardwareType) Known() bool {
	_, ok := profiles[t]
	return ok
}
