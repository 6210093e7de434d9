package serial

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout of a provisioning seed.
type seedFile struct {
	Serials []Record `yaml:"serials"`
}

// LoadSeed reads provisioned records from a YAML file.
//
// Example:
//
//	serials:
//	  - sn: ESP32-001A
//	    type: relay4
//	    relays: {relay1: "Relay 1", relay2: "Relay 2"}
func LoadSeed(path string) ([]Record, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	for _, rec := range seed.Serials {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("seed file %s: %w", path, err)
		}
	}
	return seed.Serials, nil
}

func fourRelays() map[string]string {
	return map[string]string{
		"relay1": "Relay 1",
		"relay2": "Relay 2",
		"relay3": "Relay 3",
		"relay4": "Relay 4",
	}
}

// SampleRecords returns the demo boards used for local development.
func SampleRecords() []Record {
	return []Record{
		{
			Serial:       "ESP32-001A",
			Type:         "relay4",
			Model:        "ESP32-4Relay-V1",
			Manufacturer: "IoT Device Co.",
			Relays:       fourRelays(),
		},
		{
			Serial:       "ESP32-002B",
			Type:         "relay4",
			Model:        "ESP32-4Relay-V1",
			Manufacturer: "IoT Device Co.",
			Relays:       fourRelays(),
		},
		{
			Serial:       "ESP32-003C",
			Type:         "lighting",
			Model:        "ESP32-Light-V1",
			Manufacturer: "IoT Device Co.",
		},
		{
			Serial:       "ESP32-USED1",
			Type:         "relay4",
			Model:        "ESP32-4Relay-V1",
			Manufacturer: "IoT Device Co.",
			Relays:       fourRelays(),
			Claimed:      true,
			ClaimedBy:    "test-user-123",
			ClaimedAt:    1705276800000,
			CreatedAt:    1704067200000,
		},
	}
}
