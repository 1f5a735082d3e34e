package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const versionTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL,
	checksum TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL DEFAULT 0
)`

// Executor runs migrations against a database.
type Executor struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewExecutor constructs an Executor bound to db.
func NewExecutor(db *sqlx.DB) *Executor {
	return &Executor{db: db, now: time.Now}
}

// InitializeVersionTable creates schema_migrations when missing.
func (e *Executor) InitializeVersionTable(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, versionTableDDL); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// Execute applies one migration and records it in the same transaction.
func (e *Executor) Execute(ctx context.Context, migration Migration) (time.Duration, error) {
	started := e.now()

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, newMigrationError(migration.Version, migration.FilePath, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range splitStatements(migration.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, newMigrationError(migration.Version, migration.FilePath,
				fmt.Sprintf("execute statement %d", i+1), err)
		}
	}

	elapsed := e.now().Sub(started)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		migration.Version, e.now().UTC().Format(time.RFC3339), migration.Checksum, elapsed.Milliseconds())
	if err != nil {
		return 0, newMigrationError(migration.Version, migration.FilePath, "record migration", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, newMigrationError(migration.Version, migration.FilePath, "commit transaction", err)
	}
	return elapsed, nil
}

type appliedRow struct {
	Version         int    `db:"version"`
	AppliedAt       string `db:"applied_at"`
	Checksum        string `db:"checksum"`
	ExecutionTimeMs int64  `db:"execution_time_ms"`
}

// Applied returns every recorded migration ordered by version.
func (e *Executor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	var rows []appliedRow
	err := e.db.SelectContext(ctx, &rows,
		`SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}

	applied := make([]AppliedMigration, 0, len(rows))
	for _, row := range rows {
		appliedAt, err := time.Parse(time.RFC3339, row.AppliedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: version %d has applied_at %q", ErrVersionConflict, row.Version, row.AppliedAt)
		}
		applied = append(applied, AppliedMigration{
			Version:       row.Version,
			AppliedAt:     appliedAt,
			ExecutionTime: time.Duration(row.ExecutionTimeMs) * time.Millisecond,
			Checksum:      row.Checksum,
		})
	}
	return applied, nil
}
