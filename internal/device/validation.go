package device

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLength   = 100
	maxSerialLength = 64
	maxStateKeys    = 100

	// Size limit for string values in state maps.
	maxStringValueLen = 1024
)

var (
	serialRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]*$`)
	keyRegex    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
)

// NormaliseSerial trims and upper-cases a serial number.
func NormaliseSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

// ValidateSerial checks a normalised serial number.
func ValidateSerial(serial string) error {
	if serial == "" {
		return fmt.Errorf("%w: serial is required", ErrInvalidSerial)
	}
	if len(serial) > maxSerialLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidSerial, maxSerialLength)
	}
	if !serialRegex.MatchString(serial) {
		return fmt.Errorf("%w: %q must contain only A-Z, 0-9, '_' or '-'", ErrInvalidSerial, serial)
	}
	return nil
}

// Key derives the deterministic device key for a serial and optional
// channel: "<SERIAL>_<channel>" or "<SERIAL>".
func Key(serial, channel string) string {
	if channel == "" {
		return serial
	}
	return serial + "_" + channel
}

// ValidateKey checks a device key taken from user input.
func ValidateKey(key string) error {
	if key == "" || len(key) > maxSerialLength*2 || !keyRegex.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateState checks a state map: bounded size, scalar values only.
func ValidateState(s State) error {
	if len(s) > maxStateKeys {
		return fmt.Errorf("%w: more than %d keys", ErrInvalidState, maxStateKeys)
	}
	for k, v := range s {
		if k == "" || strings.ContainsAny(k, ".#$[]/") {
			return fmt.Errorf("%w: bad attribute %q", ErrInvalidState, k)
		}
		switch val := v.(type) {
		case nil, bool, float64, float32, int, int64:
		case string:
			if len(val) > maxStringValueLen {
				return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidState, k, maxStringValueLen)
			}
		default:
			return fmt.Errorf("%w: %q has unsupported type %T", ErrInvalidState, k, v)
		}
	}
	return nil
}
