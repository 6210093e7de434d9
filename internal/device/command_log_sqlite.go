package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// logTimeFormat is fixed width so stored timestamps sort lexically.
	logTimeFormat = "2006-01-02T15:04:05.000000Z"
)

// SQLiteCommandLogRepository implements CommandLogRepository using SQLite.
//
// Payloads are stored as JSON in the command_log table.
type SQLiteCommandLogRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCommandLogRepository creates a new SQLite command log repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteCommandLogRepository: Repository instance ready for use
func NewSQLiteCommandLogRepository(db *sql.DB) *SQLiteCommandLogRepository {
	return &SQLiteCommandLogRepository{db: db, now: time.Now}
}

// RecordCommand implements CommandLogRepository.
func (r *SQLiteCommandLogRepository) RecordCommand(ctx context.Context, entry CommandLogEntry) error {
	if entry.ID == "" || entry.UserID == "" || entry.DeviceKey == "" || entry.Command == "" {
		return fmt.Errorf("command id, user, device key and command are required")
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomePending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	if entry.Payload == nil {
		entry.Payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshalling payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, user_id, device_key, serial, command, payload, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.DeviceKey,
		entry.Serial,
		entry.Command,
		string(payloadJSON),
		entry.Outcome,
		entry.CreatedAt.UTC().Format(logTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// ResolveCommand implements CommandLogRepository.
func (r *SQLiteCommandLogRepository) ResolveCommand(ctx context.Context, id, outcome string) error {
	switch outcome {
	case OutcomeConfirmed, OutcomeReverted, OutcomeFailed, OutcomeSuperseded, OutcomeCancelled:
	default:
		return fmt.Errorf("invalid outcome %q", outcome)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE command_log SET outcome = ?, resolved_at = ? WHERE id = ? AND outcome = ?",
		outcome,
		r.now().UTC().Format(logTimeFormat),
		id,
		OutcomePending,
	)
	if err != nil {
		return fmt.Errorf("updating command log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrCommandNotFound
	}
	return nil
}

// GetHistory implements CommandLogRepository.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - userID: Owning user
//   - deviceKey: Device key within the user's set
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []CommandLogEntry: Entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteCommandLogRepository) GetHistory(ctx context.Context, userID, deviceKey string, limit int) ([]CommandLogEntry, error) {
	if userID == "" || deviceKey == "" {
		return nil, fmt.Errorf("user id and device key are required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, device_key, serial, command, payload, outcome, created_at, resolved_at
		 FROM command_log
		 WHERE user_id = ? AND device_key = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		userID,
		deviceKey,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := make([]CommandLogEntry, 0, limit)
	for rows.Next() {
		var (
			entry       CommandLogEntry
			payloadJSON string
			createdAt   string
			resolvedAt  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.DeviceKey, &entry.Serial,
			&entry.Command, &payloadJSON, &entry.Outcome, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}

		if err := json.Unmarshal([]byte(payloadJSON), &entry.Payload); err != nil {
			return nil, fmt.Errorf("unmarshalling payload: %w", err)
		}

		ts, err := parseLogTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = ts

		if resolvedAt.Valid {
			resolved, err := parseLogTimestamp(resolvedAt.String)
			if err != nil {
				return nil, err
			}
			entry.ResolvedAt = &resolved
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than the given duration.
func (r *SQLiteCommandLogRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).Format(logTimeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM command_log WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting command log: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// parseLogTimestamp parses a timestamp stored in SQLite.
func parseLogTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	ts, err := time.Parse(logTimeFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp: %w", err)
	}
	return ts, nil
}
