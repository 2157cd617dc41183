// Package database provides SQLite storage for the hub.
//
// The hub keeps very little on disk: the last published entity snapshot,
// so a restart can serve stale data immediately instead of an empty
// cache. The package manages:
//   - the connection, in WAL mode with a busy timeout
//   - additive schema migrations, registered by the migrations package
//   - health checks for the status endpoint
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
