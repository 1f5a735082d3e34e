// Package migration applies versioned SQL files to a SQLite database.
//
// Files are read from an fs.FS (normally an embedded directory) and must be
// named {version}_{description}.sql, e.g. "0001_live_sessions.sql". Applied
// versions and their checksums are tracked in the schema_migrations table;
// an applied file whose content later changes is reported as
// ErrChecksumMismatch instead of being silently re-run.
//
// Example usage:
//
//	migrations, err := migration.Scan(files, "migrations")
//	if err != nil {
//		return err
//	}
//	manager := migration.NewManager(migration.NewExecutor(db), logger)
//	if err := manager.Run(ctx, migrations); err != nil {
//		return err
//	}
package migration
