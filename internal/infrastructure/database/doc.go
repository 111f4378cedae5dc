// Package database provides the SQLite store behind the durable device
// registry backend.
//
// It manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Forward-only schema migrations embedded into the binary
//   - Health checks and connection lifecycle
//
// The file is created with 0600 permissions. All queries issued by the
// device repository are parameterised.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
