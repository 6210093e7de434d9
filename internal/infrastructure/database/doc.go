// Package database provides SQLite connectivity for the device sync core.
//
// It owns the connection lifecycle (WAL mode, busy timeout, single writer)
// and applies the embedded, timestamped SQL migrations registered by the
// top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
