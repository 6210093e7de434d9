package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqliteBackend keeps leaves in the store_nodes table.
type sqliteBackend struct {
	db *sql.DB
}

// NewSQLite returns a Store persisted in the store_nodes table of db.
// The schema comes from the embedded migrations.
func NewSQLite(db *sql.DB) *Realtime {
	return newRealtime(&sqliteBackend{db: db})
}

// prefixRange returns the half-open key range [path+"/", path+"0") that
// holds every descendant of path; '0' sorts directly after '/'.
func prefixRange(path string) (lo, hi string) {
	return path + "/", path + "0"
}

func (s *sqliteBackend) leaves(ctx context.Context, path string) (map[string]any, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT path, value FROM store_nodes")
	} else {
		lo, hi := prefixRange(path)
		rows, err = s.db.QueryContext(ctx,
			"SELECT path, value FROM store_nodes WHERE path = ? OR (path >= ? AND path < ?)",
			path, lo, hi,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding node %q: %w", p, err)
		}
		out[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return out, nil
}

func (s *sqliteBackend) apply(ctx context.Context, writes []write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339Nano)

	for _, w := range writes {
		lo, hi := prefixRange(w.path)
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM store_nodes WHERE path = ? OR (path >= ? AND path < ?)",
			w.path, lo, hi,
		); err != nil {
			return fmt.Errorf("clearing %q: %w", w.path, err)
		}

		for _, a := range ancestors(w.path) {
			if _, err := tx.ExecContext(ctx, "DELETE FROM store_nodes WHERE path = ?", a); err != nil {
				return fmt.Errorf("clearing ancestor %q: %w", a, err)
			}
		}

		for p, v := range w.leaves {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encoding %q: %w", p, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO store_nodes (path, value, updated_at) VALUES (?, ?, ?)",
				p, string(raw), now,
			); err != nil {
				return fmt.Errorf("inserting %q: %w", p, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
