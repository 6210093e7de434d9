package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe registers a handler for every message whose topic matches
// pattern.
//
// Patterns can include MQTT wildcards:
//   - + (single-level): "esp32/+/status" matches exactly one segment
//   - # (multi-level): "esp32/#" matches one or more trailing segments
//
// Several handlers may share a pattern, and a message matching several
// patterns reaches every one of their handlers. Subscribing while
// disconnected is allowed; the broker subscription is made on connect and
// restored after every reconnect.
//
// Parameters:
//   - pattern: The topic pattern to subscribe to
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
//
// Example:
//
//	err := bridge.Subscribe(bridge.Topics().AllStatus(),
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
func (b *Bridge) Subscribe(pattern string, handler MessageHandler) error {
	if err := ValidatePattern(pattern); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	b.mu.Lock()
	b.nextSubID++
	sub := &subscription{id: b.nextSubID, pattern: pattern, handler: handler}
	isNew := !b.hasPatternLocked(pattern)
	b.subs = append(b.subs, sub)
	client := b.client
	connected := b.state == StateConnected
	b.mu.Unlock()

	if !connected || !isNew {
		return nil
	}

	if err := b.brokerSubscribe(client, pattern); err != nil {
		b.removeSub(sub.id)
		return err
	}
	return nil
}

// Unsubscribe removes every handler registered for pattern.
//
// Parameters:
//   - pattern: The exact pattern that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (b *Bridge) Unsubscribe(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidTopic)
	}

	b.mu.Lock()
	kept := b.subs[:0]
	removed := false
	for _, sub := range b.subs {
		if sub.pattern == pattern {
			removed = true
			continue
		}
		kept = append(kept, sub)
	}
	b.subs = kept
	client := b.client
	connected := b.state == StateConnected
	b.mu.Unlock()

	if !removed || !connected {
		return nil
	}

	token := client.Unsubscribe(pattern)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// SubscriptionCount returns the number of registered handlers.
func (b *Bridge) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// HasSubscription reports whether any handler is registered for exactly
// pattern.
func (b *Bridge) HasSubscription(pattern string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasPatternLocked(pattern)
}

func (b *Bridge) hasPatternLocked(pattern string) bool {
	for _, sub := range b.subs {
		if sub.pattern == pattern {
			return true
		}
	}
	return false
}

// patternsLocked returns the distinct registered patterns in order.
func (b *Bridge) patternsLocked() []string {
	seen := make(map[string]struct{}, len(b.subs))
	out := make([]string, 0, len(b.subs))
	for _, sub := range b.subs {
		if _, ok := seen[sub.pattern]; ok {
			continue
		}
		seen[sub.pattern] = struct{}{}
		out = append(out, sub.pattern)
	}
	return out
}

func (b *Bridge) removeSub(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// brokerSubscribe subscribes without a per-topic callback so every message
// goes through the default handler and dispatch.
func (b *Bridge) brokerSubscribe(client pahomqtt.Client, pattern string) error {
	token := client.Subscribe(pattern, b.opts.QoS, nil)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// dispatch offers one inbound message to every matching handler.
// Messages from a superseded connection, or received while not connected,
// are discarded. Non-JSON payloads are dropped with a warning.
func (b *Bridge) dispatch(gen uint64, topic string, payload []byte) {
	b.mu.Lock()
	if gen != b.generation || b.state != StateConnected {
		b.mu.Unlock()
		return
	}
	var matched []*subscription
	for _, sub := range b.subs {
		if Match(sub.pattern, topic) {
			matched = append(matched, sub)
		}
	}
	logger := b.logger
	b.mu.Unlock()

	if len(matched) == 0 {
		return
	}

	if !json.Valid(payload) {
		logger.Warn("dropping MQTT message",
			"topic", topic,
			"error", ErrMalformedMessage,
			"size", len(payload),
		)
		return
	}

	for _, sub := range matched {
		if !b.live(gen) {
			return
		}
		b.invoke(logger, sub, topic, payload)
	}
}

// live reports whether gen is still the connected generation.
func (b *Bridge) live(gen uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gen == b.generation && b.state == StateConnected
}

// invoke runs one handler with panic recovery.
func (b *Bridge) invoke(logger Logger, sub *subscription, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("MQTT handler panic recovered",
				"topic", topic,
				"pattern", sub.pattern,
				"panic", r,
			)
		}
	}()

	if err := sub.handler(topic, payload); err != nil {
		logger.Warn("MQTT handler returned error",
			"topic", topic,
			"pattern", sub.pattern,
			"error", err,
		)
	}
}

// ValidatePattern checks a subscription pattern: '+' and '#' must occupy a
// whole segment and '#' may only be last.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidTopic)
	}
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		switch {
		case seg == "#":
			if i != len(segs)-1 {
				return fmt.Errorf("%w: '#' must be the last segment of %q", ErrInvalidTopic, pattern)
			}
		case seg == "+":
		case strings.ContainsAny(seg, "+#"):
			return fmt.Errorf("%w: wildcard must fill a whole segment in %q", ErrInvalidTopic, pattern)
		}
	}
	return nil
}

// Match reports whether topic matches pattern segment by segment. '+'
// matches exactly one segment and '#' one or more trailing segments, so
// "esp32/#" matches "esp32/a" and "esp32/a/b" but not "esp32". Topics
// starting with '$' never match a leading wildcard.
func Match(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}

	p := strings.Split(pattern, "/")
	t := strings.Split(topic, "/")

	if strings.HasPrefix(topic, "$") && (p[0] == "+" || p[0] == "#") {
		return false
	}

	for i, seg := range p {
		if seg == "#" {
			return len(t) > i
		}
		if i >= len(t) {
			return false
		}
		if seg != "+" && seg != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}
