package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// PublishOptions controls delivery of one message.
type PublishOptions struct {
	// QoS is 0 (at most once, the default), 1 or 2.
	QoS byte

	// Retain asks the broker to keep the message for new subscribers.
	Retain bool
}

// Publish sends a message to topic.
//
// Publish never panics on transport failure: errors are returned wrapped
// in ErrNotConnected or ErrPublishFailed.
//
// Example:
//
//	topic := bridge.Topics().Command("ESP32-001A")
//	err := bridge.Publish(topic, []byte(`{"command":"status"}`), mqtt.PublishOptions{})
func (b *Bridge) Publish(topic string, payload []byte, opts PublishOptions) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if opts.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	b.mu.Lock()
	client := b.client
	connected := b.state == StateConnected
	b.mu.Unlock()

	if !connected || client == nil {
		return ErrNotConnected
	}

	token := client.Publish(topic, opts.QoS, opts.Retain, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it.
func (b *Bridge) PublishJSON(topic string, v any, opts PublishOptions) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return b.Publish(topic, payload, opts)
}
