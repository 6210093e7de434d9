package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action names the kind of activity an entry records.
type Action string

// Recorded actions.
const (
	ActionRegister  Action = "register"
	ActionPartial   Action = "register_partial"
	ActionRename    Action = "rename"
	ActionDashboard Action = "dashboard"
	ActionRemove    Action = "remove"
	ActionRelease   Action = "release"
)

// timeLayout has a fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is a single audit trail record.
type Entry struct {
	ID        string         `json:"id"`
	Action    Action         `json:"action"`
	UserID    string         `json:"userId"`
	Serial    string         `json:"serial,omitempty"`
	DeviceKey string         `json:"deviceKey,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filter controls which entries List returns.
type Filter struct {
	Action    Action // optional
	Serial    string // optional
	DeviceKey string // optional
	Limit     int    // default 50, max 200
	Offset    int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, userID string, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps audit entries in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.UserID == "" {
		return fmt.Errorf("inserting audit entry: user id is required")
	}
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}

	var detailsJSON *string
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, user_id, serial, device_key, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Action), entry.UserID,
		nullableString(entry.Serial), nullableString(entry.DeviceKey),
		detailsJSON,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns the entries of userID matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, userID string, filter Filter) (*ListResult, error) { //nolint:gocognit // WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	conditions := []string{"user_id = ?"}
	args := []any{userID}

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.Serial != "" {
		conditions = append(conditions, "serial = ?")
		args = append(args, filter.Serial)
	}
	if filter.DeviceKey != "" {
		conditions = append(conditions, "device_key = ?")
		args = append(args, filter.DeviceKey)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := "SELECT COUNT(*) FROM audit_log " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := "SELECT id, action, user_id, serial, device_key, details, created_at FROM audit_log " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                        Entry
			action, createdAt        string
			serial, key, detailsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &action, &e.UserID, &serial, &key, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Serial = serial.String
		e.DeviceKey = key.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				e.Details = details
			}
		}

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
