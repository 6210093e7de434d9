package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// MigrationsFS is set by the migrations package to the embedded SQL files.
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the files.
var MigrationsDir = "migrations"

// Migration is a single versioned schema change.
type Migration struct {
	// Version is the YYYYMMDD_HHMMSS prefix of the filename.
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row of the schema_migrations table.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate applies all pending migrations, oldest first.
//
// Each migration runs in its own transaction. When migration N fails the
// earlier ones stay committed, N is rolled back and nothing after it runs;
// calling Migrate again resumes from N.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	_, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1]

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == latest.Version {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %s not found in filesystem", latest.Version)
	}
	if target.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", latest.Version)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
		return fmt.Errorf("executing down SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", target.Version); err != nil {
		return fmt.Errorf("removing migration record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rollback: %w", err)
	}
	return nil
}

// GetMigrationStatus returns applied and pending migrations.
func (db *DB) GetMigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err = db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}

	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}
	for _, m := range migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

func (db *DB) getAppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		var appliedAt string
		if err := rows.Scan(&r.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // format is ours
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// loadMigrations reads and pairs the up/down files in MigrationsFS.
func loadMigrations() ([]Migration, error) {
	var empty embed.FS
	if MigrationsFS == empty {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil //nolint:nilerr // a missing directory means no migrations
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}

		body, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		m, exists := byVersion[version]
		if !exists {
			m = &Migration{Version: version}
			byVersion[version] = m
		}
		if up {
			m.Name = name
			m.UpSQL = string(body)
		} else {
			m.DownSQL = string(body)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			continue
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename splits "20260118_120000_initial.up.sql" into
// version "20260118_120000", name "initial" and direction.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false, false
	}

	switch {
	case strings.HasSuffix(base, ".up"):
		up = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 {
		return "", "", false, false
	}
	version = parts[0] + "_" + parts[1]
	name = base
	if len(parts) == 3 {
		name = parts[2]
	}
	return version, name, up, true
}
