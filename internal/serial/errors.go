package serial

import "errors"

var (
	// ErrNotFound is returned when no record matches the serial.
	ErrNotFound = errors.New("serial: not found")

	// ErrAlreadyClaimed is returned when the serial is claimed by another user.
	ErrAlreadyClaimed = errors.New("serial: already claimed")

	// ErrNotClaimed is returned when releasing a serial the user does not hold.
	ErrNotClaimed = errors.New("serial: not claimed by user")

	// ErrInvalidRecord is returned when a provisioned record fails validation.
	ErrInvalidRecord = errors.New("serial: invalid record")
)
