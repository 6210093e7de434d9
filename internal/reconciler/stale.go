package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/devicesync-core/internal/device"
	"github.com/nerrad567/devicesync-core/internal/store"
)

// MarkOffline sets online=false on every device not heard from within
// maxAge and returns how many were changed. Telemetry is held off while
// the sweep runs so a fresh heartbeat is never overwritten.
func (r *Reconciler) MarkOffline(ctx context.Context, maxAge time.Duration) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	all, err := r.store.Get(ctx, device.RecordsRoot)
	if err != nil {
		return 0, fmt.Errorf("reading devices: %w", err)
	}

	cutoff := device.NowMillis(r.now().Add(-maxAge))
	updates := make(map[string]any)
	for _, userID := range all.Keys() {
		userSnap := all.Child(userID)
		for _, key := range userSnap.Keys() {
			var rec device.Record
			if err := userSnap.Child(key).Decode(&rec); err != nil {
				continue
			}
			if rec.Online && rec.LastUpdate < cutoff {
				updates[store.Join(device.RecordPath(userID, key), "online")] = false
			}
		}
	}

	if len(updates) == 0 {
		return 0, nil
	}
	if err := r.store.UpdateMany(ctx, updates); err != nil {
		return 0, fmt.Errorf("marking devices offline: %w", err)
	}
	r.logger.Info("devices marked offline", "count", len(updates))
	return len(updates), nil
}

// RunOfflineSweep calls MarkOffline every interval until ctx is done.
func (r *Reconciler) RunOfflineSweep(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 || maxAge <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.MarkOffline(ctx, maxAge); err != nil {
				r.logger.Warn("offline sweep failed", "error", err)
			}
		}
	}
}
