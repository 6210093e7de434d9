package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidKey) {
//	    // handle bad key
//	}
var (
	// ErrInvalidKey is returned when a device key cannot be used as a store key.
	ErrInvalidKey = errors.New("device: invalid key")

	// ErrInvalidSerial is returned for an empty or malformed serial number.
	ErrInvalidSerial = errors.New("device: invalid serial")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidState is returned when state validation fails.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrCommandNotFound is returned when a logged command ID does not exist.
	ErrCommandNotFound = errors.New("device: command not found")
)
