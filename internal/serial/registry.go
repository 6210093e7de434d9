package serial

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/devicesync-core/internal/store"
)

// Root is the store path holding every record.
const Root = "valid_sn"

// Logger is the logging interface used by the registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Registry validates and claims serial numbers.
//
// Thread Safety: claim transitions are serialised by an internal mutex;
// lookups run concurrently.
type Registry struct {
	store  store.Store
	logger Logger
	now    func() time.Time

	claimMu sync.Mutex
}

// NewRegistry creates a registry over the given store.
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger for claim transitions.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Validate returns the record for serial. An exact key lookup runs first;
// on a miss every record is scanned case-insensitively. It never writes.
func (r *Registry) Validate(ctx context.Context, serial string) (Record, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" || !store.ValidKey(serial) {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, serial)
	}

	snap, err := r.store.Get(ctx, store.Join(Root, serial))
	if err != nil {
		return Record{}, fmt.Errorf("reading serial %s: %w", serial, err)
	}
	if snap.Exists {
		return decode(serial, snap)
	}

	all, err := r.store.Get(ctx, Root)
	if err != nil {
		return Record{}, fmt.Errorf("scanning serials: %w", err)
	}
	for _, key := range all.Keys() {
		if strings.EqualFold(key, serial) {
			r.logger.Debug("serial matched case-insensitively", "input", serial, "serial", key)
			return decode(key, all.Child(key))
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, serial)
}

// MarkClaimed claims serial for userID. Claiming a serial the user already
// holds is a no-op.
func (r *Registry) MarkClaimed(ctx context.Context, serial, userID string) error {
	if userID == "" {
		return fmt.Errorf("claiming %s: user id is required", serial)
	}

	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	rec, err := r.Validate(ctx, serial)
	if err != nil {
		return err
	}

	if rec.Claimed {
		if rec.ClaimedBy == userID {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, rec.Serial)
	}

	rec.Claimed = true
	rec.ClaimedBy = userID
	rec.ClaimedAt = r.now().UnixMilli()
	if err := r.store.Set(ctx, store.Join(Root, rec.Serial), rec); err != nil {
		return fmt.Errorf("claiming %s: %w", rec.Serial, err)
	}

	r.logger.Info("serial claimed", "serial", rec.Serial, "user_id", userID)
	return nil
}

// Release returns a serial held by userID to the unclaimed pool.
func (r *Registry) Release(ctx context.Context, serial, userID string) error {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	rec, err := r.Validate(ctx, serial)
	if err != nil {
		return err
	}
	if !rec.Claimed || rec.ClaimedBy != userID {
		return fmt.Errorf("%w: %s", ErrNotClaimed, rec.Serial)
	}

	rec.Claimed = false
	rec.ClaimedBy = ""
	rec.ClaimedAt = 0
	if err := r.store.Set(ctx, store.Join(Root, rec.Serial), rec); err != nil {
		return fmt.Errorf("releasing %s: %w", rec.Serial, err)
	}

	r.logger.Info("serial released", "serial", rec.Serial, "user_id", userID)
	return nil
}

// Provision writes records, replacing any existing record with the same
// serial. Every record is validated before anything is written.
func (r *Registry) Provision(ctx context.Context, records ...Record) error {
	updates := make(map[string]any, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
		rec = rec.clone()
		if rec.CreatedAt == 0 {
			rec.CreatedAt = r.now().UnixMilli()
		}
		updates[store.Join(Root, rec.Serial)] = rec
	}
	if err := r.store.UpdateMany(ctx, updates); err != nil {
		return fmt.Errorf("provisioning serials: %w", err)
	}
	return nil
}

// List returns every record ordered by serial.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	all, err := r.store.Get(ctx, Root)
	if err != nil {
		return nil, fmt.Errorf("listing serials: %w", err)
	}

	keys := all.Keys()
	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		rec, err := decode(key, all.Child(key))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out, nil
}

func decode(key string, snap store.Snapshot) (Record, error) {
	var rec Record
	if err := snap.Decode(&rec); err != nil {
		return Record{}, fmt.Errorf("decoding serial %s: %w", key, err)
	}
	// The key is authoritative; older records may omit "sn".
	rec.Serial = key
	return rec, nil
}
