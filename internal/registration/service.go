package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/devicesync-core/internal/audit"
	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/serial"
	"github.com/nerrad567/devicesync-core/internal/store"
)

// Retry defaults for per-device writes after a failed batch.
const (
	DefaultWriteAttempts = 3
	DefaultRetryDelay    = 100 * time.Millisecond
)

// Serials is the part of the serial registry the service needs.
type Serials interface {
	Validate(ctx context.Context, serial string) (serial.Record, error)
	MarkClaimed(ctx context.Context, serial, userID string) error
	Release(ctx context.Context, serial, userID string) error
}

// Logger is the logging interface used by the service.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

// Auditor receives account activity. *audit.SQLiteRepository implements it.
type Auditor interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Device is one registered device.
type Device struct {
	Key        string                `json:"key"`
	ChannelKey string                `json:"channelKey,omitempty"`
	Name       string                `json:"name"`
	Dashboard  catalog.DashboardKind `json:"dashboard"`
	Record     device.Record         `json:"record"`
}

// Result describes a completed registration.
type Result struct {
	Serial       string               `json:"serial"`
	HardwareType catalog.HardwareType `json:"hardwareType"`

	// Devices holds the devices created by this call.
	Devices []Device `json:"devices"`

	// Resumed is true when the call completed an earlier partial registration.
	Resumed bool `json:"resumed,omitempty"`
}

// Keys returns the device keys in channel order.
func (r Result) Keys() []string {
	keys := make([]string, len(r.Devices))
	for i, d := range r.Devices {
		keys[i] = d.Key
	}
	return keys
}

// Service registers, lists and removes user devices.
//
// Thread Safety: all methods are safe for concurrent use. Operations on the
// same (user, serial) pair are mutually exclusive.
type Service struct {
	store   store.Store
	serials Serials
	logger  Logger
	auditor Auditor
	now     func() time.Time
	gate    *gate

	attempts   int
	retryDelay time.Duration
}

// NewService creates a registration service.
func NewService(s store.Store, serials Serials) *Service {
	return &Service{
		store:      s,
		serials:    serials,
		logger:     noopLogger{},
		now:        time.Now,
		gate:       newGate(),
		attempts:   DefaultWriteAttempts,
		retryDelay: DefaultRetryDelay,
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetAuditor sets the audit trail. Nil disables it.
func (s *Service) SetAuditor(a Auditor) {
	s.auditor = a
}

// record writes an audit entry. Failures are logged and never returned.
func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Create(ctx, &entry); err != nil {
		s.logger.Warn("writing audit entry", "action", entry.Action, "user_id", entry.UserID, "error", err)
	}
}

// SetRetry configures per-device write retries after a failed batch.
func (s *Service) SetRetry(attempts int, delay time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	s.attempts = attempts
	s.retryDelay = delay
}

// Register claims serial for userID and creates its devices.
//
// On a partial write the returned Result lists the devices that were
// created and the error is a *PartialError.
func (s *Service) Register(ctx context.Context, userID, rawSerial string) (Result, error) {
	if userID == "" {
		return Result{}, ErrUserRequired
	}
	sn := device.NormaliseSerial(rawSerial)
	if err := device.ValidateSerial(sn); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnknownSerial, err)
	}

	key := gateKey(userID, sn)
	if !s.gate.acquire(key) {
		return Result{}, fmt.Errorf("%w: %s", ErrRegistrationInProgress, sn)
	}
	defer s.gate.release(key)

	existing, err := s.userRecords(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	owned := keysForSerial(existing, sn)

	rec, err := s.serials.Validate(ctx, sn)
	if err != nil {
		if len(owned) > 0 {
			return Result{}, fmt.Errorf("%w: %s", ErrAlreadyInUserAccount, sn)
		}
		if errors.Is(err, serial.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownSerial, sn)
		}
		return Result{}, fmt.Errorf("resolving serial %s: %w", sn, err)
	}

	plan := s.plan(rec)
	missing := make([]Device, 0, len(plan))
	for _, d := range plan {
		if _, ok := owned[d.Key]; !ok {
			missing = append(missing, d)
		}
	}
	if len(owned) > 0 && (len(missing) == 0 || !coveredBy(owned, plan)) {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyInUserAccount, sn)
	}

	if err := s.serials.MarkClaimed(ctx, rec.Serial, userID); err != nil {
		switch {
		case errors.Is(err, serial.ErrAlreadyClaimed):
			return Result{}, fmt.Errorf("%w: %s", ErrAlreadyClaimed, rec.Serial)
		case errors.Is(err, serial.ErrNotFound):
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownSerial, rec.Serial)
		default:
			return Result{}, fmt.Errorf("claiming serial %s: %w", rec.Serial, err)
		}
	}

	result := Result{
		Serial:       rec.Serial,
		HardwareType: rec.HardwareType(),
		Resumed:      len(owned) > 0,
	}

	updates := make(map[string]any, 2*len(missing)+1)
	for _, d := range missing {
		updates[device.RecordPath(userID, d.Key)] = d.Record
		updates[device.TypePath(userID, d.Key)] = string(d.Dashboard)
	}
	updates[device.IndexPath(rec.Serial)] = ownerIndex(userID, rec, plan)

	batchErr := s.store.UpdateMany(ctx, updates)
	if batchErr == nil {
		result.Devices = missing
		s.logger.Info("device registered",
			"user_id", userID, "serial", rec.Serial, "devices", len(missing), "resumed", result.Resumed)
		s.recordRegistration(ctx, userID, result)
		return result, nil
	}

	s.logger.Warn("batch registration write failed, retrying per device",
		"serial", rec.Serial, "error", batchErr)

	created, failed, lastErr := s.writeEach(ctx, userID, missing)
	if lastErr == nil {
		lastErr = batchErr
	}
	result.Devices = created

	if len(created) == 0 && len(owned) == 0 {
		if err := s.serials.Release(ctx, rec.Serial, userID); err != nil {
			s.logger.Warn("releasing claim after failed registration", "serial", rec.Serial, "error", err)
		}
		return Result{}, fmt.Errorf("registering %s: %w", rec.Serial, lastErr)
	}

	if err := s.store.Set(ctx, device.IndexPath(rec.Serial), ownerIndex(userID, rec, plan)); err != nil {
		s.logger.Warn("writing owner index", "serial", rec.Serial, "error", err)
	}

	if len(failed) == 0 {
		s.logger.Info("device registered after retry", "user_id", userID, "serial", rec.Serial)
		s.recordRegistration(ctx, userID, result)
		return result, nil
	}

	pe := &PartialError{Serial: rec.Serial, Err: lastErr}
	for _, d := range plan {
		label := channelLabel(d)
		if _, ok := owned[d.Key]; ok {
			pe.Succeeded = append(pe.Succeeded, label)
			continue
		}
		if containsKey(failed, d.Key) {
			pe.Failed = append(pe.Failed, label)
		} else {
			pe.Succeeded = append(pe.Succeeded, label)
		}
	}
	s.logger.Warn("partial registration", "serial", rec.Serial, "failed", pe.Failed)
	s.record(ctx, audit.Entry{
		Action: audit.ActionPartial,
		UserID: userID,
		Serial: rec.Serial,
		Details: map[string]any{
			"succeeded": pe.Succeeded,
			"failed":    pe.Failed,
		},
	})
	return result, pe
}

func (s *Service) recordRegistration(ctx context.Context, userID string, result Result) {
	s.record(ctx, audit.Entry{
		Action: audit.ActionRegister,
		UserID: userID,
		Serial: result.Serial,
		Details: map[string]any{
			"hardwareType": string(result.HardwareType),
			"devices":      result.Keys(),
			"resumed":      result.Resumed,
		},
	})
}

// plan derives the devices a board expands into.
func (s *Service) plan(rec serial.Record) []Device {
	hw := rec.HardwareType()
	dash := catalog.DefaultDashboardFor(hw)
	profile, _ := catalog.Profile(hw)
	now := device.NowMillis(s.now())

	newRecord := func(name, channel string, pin int) device.Record {
		return device.Record{
			Serial:       rec.Serial,
			Name:         name,
			HardwareType: string(hw),
			ChannelKey:   channel,
			Pin:          pin,
			State:        device.State{"on": false},
			Online:       false,
			LastUpdate:   now,
			CreatedAt:    now,
		}
	}

	if !profile.MultiChannel {
		name := rec.DisplayName()
		return []Device{{
			Key:       device.Key(rec.Serial, ""),
			Name:      name,
			Dashboard: dash,
			Record:    newRecord(name, "", 0),
		}}
	}

	channels := channelsFor(rec, profile)
	out := make([]Device, 0, len(channels))
	for _, ch := range channels {
		name := fmt.Sprintf("%s - %s", rec.DisplayName(), ch.Label)
		out = append(out, Device{
			Key:        device.Key(rec.Serial, ch.Key),
			ChannelKey: ch.Key,
			Name:       name,
			Dashboard:  dash,
			Record:     newRecord(name, ch.Key, ch.Pin),
		})
	}
	return out
}

// channelsFor returns the channels of a multi-channel board. The record's
// relay labels win over the profile; relays the profile does not know keep
// pin 0 and sort after the known ones.
func channelsFor(rec serial.Record, profile catalog.HardwareProfile) []catalog.Channel {
	if len(rec.Relays) == 0 {
		return profile.Channels
	}

	out := make([]catalog.Channel, 0, len(rec.Relays))
	for _, ch := range profile.Channels {
		if label, ok := rec.Relays[ch.Key]; ok {
			if label != "" {
				ch.Label = label
			}
			out = append(out, ch)
		}
	}

	var extra []string
	for key := range rec.Relays {
		if _, ok := profile.Channel(key); !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		label := rec.Relays[key]
		if label == "" {
			label = key
		}
		out = append(out, catalog.Channel{Key: key, Label: label})
	}
	return out
}

// writeEach writes devices one at a time with bounded retries.
func (s *Service) writeEach(ctx context.Context, userID string, devices []Device) (created []Device, failed []string, lastErr error) {
	for _, d := range devices {
		updates := map[string]any{
			device.RecordPath(userID, d.Key): d.Record,
			device.TypePath(userID, d.Key):   string(d.Dashboard),
		}

		var err error
		for attempt := 1; attempt <= s.attempts; attempt++ {
			if err = s.store.UpdateMany(ctx, updates); err == nil {
				break
			}
			if attempt == s.attempts || !s.sleep(ctx) {
				break
			}
		}

		if err != nil {
			lastErr = err
			failed = append(failed, d.Key)
			s.logger.Warn("device write failed", "key", d.Key, "error", err)
			continue
		}
		created = append(created, d)
	}
	return created, failed, lastErr
}

func (s *Service) sleep(ctx context.Context) bool {
	if s.retryDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// userRecords reads every device record of a user.
func (s *Service) userRecords(ctx context.Context, userID string) (map[string]device.Record, error) {
	snap, err := s.store.Get(ctx, store.Join(device.RecordsRoot, userID))
	if err != nil {
		return nil, fmt.Errorf("reading devices of %s: %w", userID, err)
	}

	out := make(map[string]device.Record)
	for _, key := range snap.Keys() {
		var rec device.Record
		if err := snap.Child(key).Decode(&rec); err != nil {
			s.logger.Warn("skipping undecodable device record", "key", key, "error", err)
			continue
		}
		out[key] = rec
	}
	return out, nil
}

// keysForSerial matches on the record's serial field, not the key.
func keysForSerial(records map[string]device.Record, sn string) map[string]struct{} {
	out := make(map[string]struct{})
	for key, rec := range records {
		if strings.EqualFold(rec.Serial, sn) {
			out[key] = struct{}{}
		}
	}
	return out
}

// coveredBy reports whether every owned key belongs to the plan.
func coveredBy(owned map[string]struct{}, plan []Device) bool {
	for key := range owned {
		found := false
		for _, d := range plan {
			if d.Key == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func ownerIndex(userID string, rec serial.Record, plan []Device) device.OwnerIndex {
	idx := device.OwnerIndex{
		UserID:       userID,
		HardwareType: rec.Type,
		Keys:         make(map[string]string, len(plan)),
	}
	for _, d := range plan {
		idx.Keys[d.Key] = d.ChannelKey
	}
	return idx
}

func channelLabel(d Device) string {
	if d.ChannelKey != "" {
		return d.ChannelKey
	}
	return d.Key
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
