package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/devicesync-core/internal/store"
)

// Device command names understood by the firmware.
const (
	CommandRelay       = "relay"
	CommandRelays      = "relays"
	CommandSet         = "set"
	CommandReadSensors = "read_sensors"
	CommandStatus      = "status"
	CommandRestart     = "restart"
)

// historyTimeout bounds command log writes made outside a request.
const historyTimeout = 2 * time.Second

// Command is the JSON published on <namespace>/<serial>/command.
type Command struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

// RelayValue switches the relay on one GPIO pin.
type RelayValue struct {
	Pin   int    `json:"pin"`
	State string `json:"state"`
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// pendingValue is an optimistic attribute value awaiting confirmation.
type pendingValue struct {
	value any
	cmdID string
}

// command is one published command and the attributes it is waiting on.
type command struct {
	id      string
	userID  string
	entries map[entryRef]struct{}
	timer   timer
}

type entryRef struct {
	key  string
	attr string
}

func pendingKey(userID, key string) string {
	return userID + "\x00" + key
}

func newCommandID() string {
	return uuid.NewString()
}

// IssueCommand sets attribute of a device to value. The returned view
// already shows the value; it reverts if no telemetry confirms it within
// the command timeout.
func (r *Reconciler) IssueCommand(ctx context.Context, userID, key, attribute string, value any) (device.View, error) {
	if !store.ValidKey(attribute) {
		return device.View{}, fmt.Errorf("%w: attribute %q", ErrInvalidCommand, attribute)
	}
	if err := device.ValidateState(device.State{attribute: value}); err != nil {
		return device.View{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	rec, err := r.readRecord(ctx, userID, key)
	if err != nil {
		return device.View{}, err
	}

	cmd, err := commandFor(rec, attribute, value)
	if err != nil {
		return device.View{}, err
	}

	entries := map[entryRef]any{{key: key, attr: attribute}: value}
	if err := r.publish(ctx, userID, key, rec.Serial, cmd, entries); err != nil {
		return device.View{}, err
	}
	return r.View(ctx, userID, key)
}

// commandFor maps an attribute change to the firmware command.
//
//   - "on" of a channel device: relay on its pin, or relays by channel key
//   - "on" of a single-channel board with channels: relays for all of them
//   - a channel key of a single-channel board: relay on that pin
//   - anything else: set {attribute: value}
func commandFor(rec device.Record, attribute string, value any) (Command, error) {
	profile, _ := catalog.Profile(catalog.HardwareType(rec.HardwareType))

	if attribute == "on" {
		on, ok := value.(bool)
		if !ok {
			return Command{}, fmt.Errorf("%w: \"on\" takes a boolean, got %T", ErrInvalidCommand, value)
		}
		if rec.ChannelKey != "" {
			pin := rec.Pin
			if pin == 0 {
				if ch, found := profile.Channel(rec.ChannelKey); found {
					pin = ch.Pin
				}
			}
			if pin > 0 {
				return Command{Command: CommandRelay, Value: RelayValue{Pin: pin, State: onOff(on)}}, nil
			}
			return Command{Command: CommandRelays, Value: map[string]string{rec.ChannelKey: onOff(on)}}, nil
		}
		if len(profile.Channels) > 0 {
			all := make(map[string]string, len(profile.Channels))
			for _, ch := range profile.Channels {
				all[ch.Key] = onOff(on)
			}
			return Command{Command: CommandRelays, Value: all}, nil
		}
		return Command{Command: CommandSet, Value: map[string]any{"on": on}}, nil
	}

	if rec.ChannelKey == "" {
		if ch, found := profile.Channel(attribute); found {
			on, ok := value.(bool)
			if !ok {
				return Command{}, fmt.Errorf("%w: %q takes a boolean, got %T", ErrInvalidCommand, attribute, value)
			}
			return Command{Command: CommandRelay, Value: RelayValue{Pin: ch.Pin, State: onOff(on)}}, nil
		}
	}

	return Command{Command: CommandSet, Value: map[string]any{attribute: value}}, nil
}

// SetChannels switches several channels of one board with a single
// "relays" command. Every affected device shows the new value at once.
func (r *Reconciler) SetChannels(ctx context.Context, userID, serial string, channels map[string]bool) error {
	if userID == "" {
		return ErrUserRequired
	}
	if len(channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidCommand)
	}

	sn := device.NormaliseSerial(serial)
	if !store.ValidKey(sn) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	idx, ok, err := r.ownerOf(ctx, sn)
	if err != nil {
		return err
	}
	if !ok || idx.UserID != userID {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, sn)
	}

	byChannel := make(map[string]string, len(idx.Keys))
	for key, ch := range idx.Keys {
		if ch != "" {
			byChannel[ch] = key
		}
	}

	value := make(map[string]string, len(channels))
	entries := make(map[entryRef]any, len(channels))
	for ch, on := range channels {
		key, found := byChannel[ch]
		if !found {
			return fmt.Errorf("%w: %s has no channel %q", ErrInvalidCommand, sn, ch)
		}
		value[ch] = onOff(on)
		entries[entryRef{key: key, attr: "on"}] = on
	}

	return r.publish(ctx, userID, sn, sn, Command{Command: CommandRelays, Value: value}, entries)
}

// SendCommand publishes a maintenance action (read_sensors, status,
// restart) to the board behind a device. Nothing is applied optimistically.
func (r *Reconciler) SendCommand(ctx context.Context, userID, key, action string) error {
	switch action {
	case CommandReadSensors, CommandStatus, CommandRestart:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, action)
	}

	rec, err := r.readRecord(ctx, userID, key)
	if err != nil {
		return err
	}
	return r.publish(ctx, userID, key, rec.Serial, Command{Command: action}, nil)
}

// publish tracks entries as pending, publishes cmd to the board, records
// it and arms the revert timer. On publish failure the entries are
// dropped again.
func (r *Reconciler) publish(ctx context.Context, userID, deviceKey, serial string, cmd Command, entries map[entryRef]any) error {
	id := r.newID()
	now := r.now()

	r.recordHistory(ctx, device.CommandLogEntry{
		ID:        id,
		UserID:    userID,
		DeviceKey: deviceKey,
		Serial:    serial,
		Command:   cmd.Command,
		Payload:   map[string]any{"command": cmd.Command, "value": cmd.Value},
		CreatedAt: now,
	})

	if len(entries) > 0 {
		r.track(id, userID, entries)
		r.notify(userID)
	}

	topic := r.opts.Topics.Command(serial)
	if err := r.pub.PublishJSON(topic, cmd, mqtt.PublishOptions{QoS: r.opts.QoS}); err != nil {
		r.logger.Warn("command publish failed", "serial", serial, "command", cmd.Command, "error", err)
		r.drop(id, device.OutcomeFailed)
		return fmt.Errorf("%w: %s to %s: %w", ErrPublishFailed, cmd.Command, serial, err)
	}

	if len(entries) == 0 {
		r.resolveHistory(id, device.OutcomeConfirmed)
	}

	last := device.Command{ID: id, Command: cmd.Command, Value: cmd.Value, UserID: userID, Timestamp: device.NowMillis(now)}
	if err := r.store.Set(ctx, device.CommandPath(serial), last); err != nil {
		r.logger.Warn("recording last command", "serial", serial, "error", err)
	}

	r.logger.Info("command published", "serial", serial, "command", cmd.Command, "id", id)
	return nil
}

// track registers entries under command id, superseding older pending
// values for the same attributes, and arms the timeout.
func (r *Reconciler) track(id, userID string, entries map[entryRef]any) {
	var superseded []string

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	cmd := &command{id: id, userID: userID, entries: make(map[entryRef]struct{}, len(entries))}
	for ref, value := range entries {
		pk := pendingKey(userID, ref.key)
		attrs := r.pending[pk]
		if attrs == nil {
			attrs = make(map[string]pendingValue)
			r.pending[pk] = attrs
		}
		if old, ok := attrs[ref.attr]; ok {
			if r.detachLocked(old.cmdID, ref) {
				superseded = append(superseded, old.cmdID)
			}
		}
		attrs[ref.attr] = pendingValue{value: value, cmdID: id}
		cmd.entries[ref] = struct{}{}
	}
	cmd.timer = r.afterFunc(r.opts.CommandTimeout, func() { r.expire(id) })
	r.commands[id] = cmd
	r.mu.Unlock()

	for _, old := range superseded {
		r.resolveHistory(old, device.OutcomeSuperseded)
	}
}

// detachLocked removes ref from a command and reports whether the command
// has nothing left to wait for.
func (r *Reconciler) detachLocked(id string, ref entryRef) bool {
	cmd, ok := r.commands[id]
	if !ok {
		return false
	}
	delete(cmd.entries, ref)
	if len(cmd.entries) > 0 {
		return false
	}
	cmd.timer.Stop()
	delete(r.commands, id)
	return true
}

// expire reverts a command that was not confirmed in time.
func (r *Reconciler) expire(id string) {
	if userID, ok := r.dropPending(id); ok {
		r.logger.Info("command not confirmed, reverting", "id", id)
		r.resolveHistory(id, device.OutcomeReverted)
		r.notify(userID)
	}
}

// drop discards a command with the given outcome.
func (r *Reconciler) drop(id, outcome string) {
	userID, ok := r.dropPending(id)
	r.resolveHistory(id, outcome)
	if ok {
		r.notify(userID)
	}
}

func (r *Reconciler) dropPending(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.commands[id]
	if !ok {
		return "", false
	}
	cmd.timer.Stop()
	delete(r.commands, id)
	for ref := range cmd.entries {
		pk := pendingKey(cmd.userID, ref.key)
		if attrs := r.pending[pk]; attrs != nil {
			if pv, found := attrs[ref.attr]; found && pv.cmdID == id {
				delete(attrs, ref.attr)
			}
			if len(attrs) == 0 {
				delete(r.pending, pk)
			}
		}
	}
	return cmd.userID, true
}

// Forget discards the pending values of a removed device. Commands left
// with nothing to wait for are logged as cancelled.
func (r *Reconciler) Forget(userID, key string) {
	var done []string

	r.mu.Lock()
	pk := pendingKey(userID, key)
	for attr, pv := range r.pending[pk] {
		if r.detachLocked(pv.cmdID, entryRef{key: key, attr: attr}) {
			done = append(done, pv.cmdID)
		}
	}
	delete(r.pending, pk)
	r.mu.Unlock()

	for _, id := range done {
		r.resolveHistory(id, device.OutcomeCancelled)
	}
}

// confirm clears pending values matched by reported ones. A report that
// differs leaves the pending value to its timeout, since boards may
// publish a status before acting on a command.
func (r *Reconciler) confirm(userID string, reports []confirmation) {
	if len(reports) == 0 {
		return
	}

	var done []string
	cleared := false

	r.mu.Lock()
	for _, c := range reports {
		pk := pendingKey(userID, c.key)
		attrs := r.pending[pk]
		pv, ok := attrs[c.attr]
		if !ok || !sameValue(pv.value, c.value) {
			continue
		}
		delete(attrs, c.attr)
		if len(attrs) == 0 {
			delete(r.pending, pk)
		}
		cleared = true
		if r.detachLocked(pv.cmdID, entryRef{key: c.key, attr: c.attr}) {
			done = append(done, pv.cmdID)
		}
	}
	r.mu.Unlock()

	for _, id := range done {
		r.resolveHistory(id, device.OutcomeConfirmed)
	}
	if cleared {
		r.notify(userID)
	}
}

// pendingFor returns a copy of the pending values of one device.
func (r *Reconciler) pendingFor(userID, key string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs := r.pending[pendingKey(userID, key)]
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for attr, pv := range attrs {
		out[attr] = pv.value
	}
	return out
}

// PendingCount returns the number of commands awaiting confirmation.
func (r *Reconciler) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

func (r *Reconciler) recordHistory(ctx context.Context, entry device.CommandLogEntry) {
	if r.history == nil {
		return
	}
	if err := r.history.RecordCommand(ctx, entry); err != nil {
		r.logger.Warn("recording command", "id", entry.ID, "error", err)
	}
}

func (r *Reconciler) resolveHistory(id, outcome string) {
	if r.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := r.history.ResolveCommand(ctx, id, outcome); err != nil {
		r.logger.Warn("resolving command", "id", id, "outcome", outcome, "error", err)
	}
}
