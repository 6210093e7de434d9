package reconciler

import (
	"errors"

	"github.com/nerrad567/devicesync-core/internal/telemetry"
)

var (
	// ErrMalformedMessage is returned for telemetry that fails to decode.
	ErrMalformedMessage = telemetry.ErrMalformed

	// ErrUserRequired is returned when no user id is supplied.
	ErrUserRequired = errors.New("reconciler: user id is required")

	// ErrDeviceNotFound is returned when the user has no such device.
	ErrDeviceNotFound = errors.New("reconciler: device not found")

	// ErrInvalidCommand is returned for attributes or values a device
	// cannot be commanded with.
	ErrInvalidCommand = errors.New("reconciler: invalid command")

	// ErrPublishFailed wraps transport errors from the command publisher.
	ErrPublishFailed = errors.New("reconciler: command not delivered")
)
