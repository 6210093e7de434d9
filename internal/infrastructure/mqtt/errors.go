package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected bridge.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned when a connection attempt fails. The
	// bridge is left in StateError.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectInProgress is returned by Connect while another attempt is
	// outstanding.
	ErrConnectInProgress = errors.New("mqtt: connect already in progress")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic, a publish topic with
	// wildcards, or a malformed subscription pattern.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrMalformedMessage marks an inbound payload that is not JSON. Such
	// messages are logged and dropped.
	ErrMalformedMessage = errors.New("mqtt: malformed message")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
