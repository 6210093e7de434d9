package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/devicesync-core/internal/audit"
	"github.com/nerrad567/devicesync-core/internal/catalog"
	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/serial"
	"github.com/nerrad567/devicesync-core/internal/store"
)

// Get returns one registered device of a user.
func (s *Service) Get(ctx context.Context, userID, key string) (Device, error) {
	if err := device.ValidateKey(key); err != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	snap, err := s.store.Get(ctx, device.RecordPath(userID, key))
	if err != nil {
		return Device{}, fmt.Errorf("reading device %s: %w", key, err)
	}
	if !snap.Exists {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}

	var rec device.Record
	if err := snap.Decode(&rec); err != nil {
		return Device{}, err
	}

	kind, err := s.dashboardOf(ctx, userID, key)
	if err != nil {
		return Device{}, err
	}
	return Device{Key: key, ChannelKey: rec.ChannelKey, Name: rec.Name, Dashboard: kind, Record: rec}, nil
}

// List returns every device of a user ordered by key.
func (s *Service) List(ctx context.Context, userID string) ([]Device, error) {
	records, err := s.userRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	types, err := s.store.Get(ctx, store.Join(device.TypesRoot, userID))
	if err != nil {
		return nil, fmt.Errorf("reading device types of %s: %w", userID, err)
	}

	out := make([]Device, 0, len(records))
	for key, rec := range records {
		d := Device{Key: key, ChannelKey: rec.ChannelKey, Name: rec.Name, Record: rec}
		if kind, ok := types.Child(key).Value.(string); ok {
			d.Dashboard = catalog.DashboardKind(kind)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Rename changes the display name of a device.
func (s *Service) Rename(ctx context.Context, userID, key, name string) error {
	if err := device.ValidateName(name); err != nil {
		return err
	}
	d, err := s.Get(ctx, userID, key)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if err := s.store.Set(ctx, store.Join(device.RecordPath(userID, key), "name"), name); err != nil {
		return fmt.Errorf("renaming device %s: %w", key, err)
	}
	s.record(ctx, audit.Entry{
		Action:    audit.ActionRename,
		UserID:    userID,
		Serial:    d.Record.Serial,
		DeviceKey: key,
		Details:   map[string]any{"from": d.Name, "to": name},
	})
	return nil
}

// AssignDashboard sets the dashboard kind that renders a device.
func (s *Service) AssignDashboard(ctx context.Context, userID, key string, kind catalog.DashboardKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDashboard, kind)
	}
	d, err := s.Get(ctx, userID, key)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, device.TypePath(userID, key), string(kind)); err != nil {
		return fmt.Errorf("assigning dashboard to %s: %w", key, err)
	}
	s.record(ctx, audit.Entry{
		Action:    audit.ActionDashboard,
		UserID:    userID,
		Serial:    d.Record.Serial,
		DeviceKey: key,
		Details:   map[string]any{"from": string(d.Dashboard), "to": string(kind)},
	})
	return nil
}

// Remove deletes a device with its type assignment and runtime value.
// Removing the last device built from a board releases the serial.
func (s *Service) Remove(ctx context.Context, userID, key string) error {
	d, err := s.Get(ctx, userID, key)
	if err != nil {
		return err
	}
	sn := d.Record.Serial

	gk := gateKey(userID, device.NormaliseSerial(sn))
	if !s.gate.acquire(gk) {
		return fmt.Errorf("%w: %s", ErrRegistrationInProgress, sn)
	}
	defer s.gate.release(gk)

	err = s.store.UpdateMany(ctx, map[string]any{
		device.RecordPath(userID, key): nil,
		device.TypePath(userID, key):   nil,
		device.DataPath(userID, key):   nil,
	})
	if err != nil {
		return fmt.Errorf("removing device %s: %w", key, err)
	}
	s.logger.Info("device removed", "user_id", userID, "key", key)
	s.record(ctx, audit.Entry{Action: audit.ActionRemove, UserID: userID, Serial: sn, DeviceKey: key})

	records, err := s.userRecords(ctx, userID)
	if err != nil {
		return err
	}
	if len(keysForSerial(records, sn)) > 0 {
		return nil
	}

	if err := s.store.Remove(ctx, device.IndexPath(sn)); err != nil {
		s.logger.Warn("removing owner index", "serial", sn, "error", err)
	}
	if err := s.serials.Release(ctx, sn, userID); err != nil && !errors.Is(err, serial.ErrNotClaimed) && !errors.Is(err, serial.ErrNotFound) {
		return fmt.Errorf("releasing serial %s: %w", sn, err)
	}
	s.record(ctx, audit.Entry{Action: audit.ActionRelease, UserID: userID, Serial: sn})
	return nil
}

func (s *Service) dashboardOf(ctx context.Context, userID, key string) (catalog.DashboardKind, error) {
	snap, err := s.store.Get(ctx, device.TypePath(userID, key))
	if err != nil {
		return "", fmt.Errorf("reading dashboard of %s: %w", key, err)
	}
	kind, _ := snap.Value.(string)
	return catalog.DashboardKind(kind), nil
}
