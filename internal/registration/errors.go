package registration

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUserRequired is returned when no user id is supplied.
	ErrUserRequired = errors.New("registration: user id is required")

	// ErrUnknownSerial is returned when the serial is malformed or not provisioned.
	ErrUnknownSerial = errors.New("registration: unknown serial")

	// ErrAlreadyInUserAccount is returned when the user already has every
	// device built from the serial.
	ErrAlreadyInUserAccount = errors.New("registration: serial already in user account")

	// ErrAlreadyClaimed is returned when another user holds the serial.
	ErrAlreadyClaimed = errors.New("registration: serial claimed by another account")

	// ErrRegistrationInProgress is returned while another registration for
	// the same user and serial is running.
	ErrRegistrationInProgress = errors.New("registration: registration in progress")

	// ErrPartialRegistration matches every *PartialError.
	ErrPartialRegistration = errors.New("registration: partially registered")

	// ErrDeviceNotFound is returned when the user has no device with the key.
	ErrDeviceNotFound = errors.New("registration: device not found")

	// ErrInvalidDashboard is returned for an unknown dashboard kind.
	ErrInvalidDashboard = errors.New("registration: invalid dashboard kind")
)

// PartialError reports a registration where some channels were written
// and others were not.
type PartialError struct {
	Serial string

	// Succeeded and Failed list channel keys, or the device key for
	// single-channel boards.
	Succeeded []string
	Failed    []string

	// Err is the last write error seen.
	Err error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("registration: %s partially registered: failed [%s], succeeded [%s]: %v",
		e.Serial, strings.Join(e.Failed, ", "), strings.Join(e.Succeeded, ", "), e.Err)
}

// Is matches ErrPartialRegistration.
func (e *PartialError) Is(target error) bool {
	return target == ErrPartialRegistration
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
