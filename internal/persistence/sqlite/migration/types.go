package migration

import "time"

// Migration is one versioned SQL file.
type Migration struct {
	Version     int
	Description string
	SQL         string
	FilePath    string
	Checksum    string
}

// AppliedMigration is a row of the schema_migrations table.
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status summarises the database schema state.
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}
