package device

import (
	"context"
	"time"
)

// Command outcomes recorded in the command log.
const (
	OutcomePending   = "pending"
	OutcomeConfirmed = "confirmed"
	OutcomeReverted  = "reverted"
	OutcomeFailed    = "failed"

	// OutcomeSuperseded marks a command replaced by a newer one for the
	// same attribute before it was confirmed.
	OutcomeSuperseded = "superseded"

	// OutcomeCancelled marks a command whose device was removed first.
	OutcomeCancelled = "cancelled"
)

// CommandLogEntry is one command published to a device.
type CommandLogEntry struct {
	// ID is the command UUID, also carried in commands/<serial>.
	ID string `json:"id"`

	UserID    string `json:"user_id"`
	DeviceKey string `json:"device_key"`
	Serial    string `json:"serial"`

	// Command is the device command name (relay, relays, read_sensors, ...).
	Command string `json:"command"`

	// Payload is the JSON value published with the command.
	Payload map[string]any `json:"payload"`

	Outcome    string     `json:"outcome"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CommandLogRepository stores the command audit trail.
//
// Implementations must be thread-safe and use UTC timestamps.
type CommandLogRepository interface {
	// RecordCommand inserts a new entry with outcome "pending" unless set.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - entry: Command to persist; ID, UserID, DeviceKey and Command are required
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordCommand(ctx context.Context, entry CommandLogEntry) error

	// ResolveCommand sets the final outcome of a pending command.
	//
	// Returns ErrCommandNotFound when no pending entry has the ID.
	ResolveCommand(ctx context.Context, id, outcome string) error

	// GetHistory returns recent commands for a device, newest first.
	GetHistory(ctx context.Context, userID, deviceKey string, limit int) ([]CommandLogEntry, error)
}
