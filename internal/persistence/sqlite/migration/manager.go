package migration

import (
	"context"
	"fmt"
	"log/slog"
)

// Manager brings a database up to date with a set of migrations.
type Manager struct {
	executor *Executor
	logger   *slog.Logger
}

// NewManager constructs a Manager. A nil logger uses slog.Default.
func NewManager(executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{executor: executor, logger: logger.With("component", "migration")}
}

// Status compares the recorded history with migrations.
func (m *Manager) Status(ctx context.Context, migrations []Migration) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	known := make(map[int]Migration, len(migrations))
	for _, migration := range migrations {
		known[migration.Version] = migration
	}

	status := Status{Applied: applied}
	done := make(map[int]struct{}, len(applied))
	for _, record := range applied {
		migration, ok := known[record.Version]
		if !ok {
			return Status{}, fmt.Errorf("%w: applied version %d has no migration file", ErrVersionConflict, record.Version)
		}
		if migration.Checksum != record.Checksum {
			return Status{}, newMigrationError(record.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
		done[record.Version] = struct{}{}
		if record.Version > status.CurrentVersion {
			status.CurrentVersion = record.Version
		}
	}

	for _, migration := range migrations {
		if _, ok := done[migration.Version]; ok {
			continue
		}
		if migration.Version < status.CurrentVersion {
			return Status{}, newMigrationError(migration.Version, migration.FilePath, "check ordering",
				fmt.Errorf("%w: older than applied version %d", ErrVersionConflict, status.CurrentVersion))
		}
		status.Pending = append(status.Pending, migration)
	}
	return status, nil
}

// Run applies every pending migration in version order.
func (m *Manager) Run(ctx context.Context, migrations []Migration) error {
	status, err := m.Status(ctx, migrations)
	if err != nil {
		m.logger.ErrorContext(ctx, "migration status check failed", "error", err)
		return err
	}
	if len(status.Pending) == 0 {
		m.logger.DebugContext(ctx, "schema up to date", "version", status.CurrentVersion)
		return nil
	}

	m.logger.InfoContext(ctx, "applying migrations", "current_version", status.CurrentVersion, "pending", len(status.Pending))
	for _, migration := range status.Pending {
		elapsed, err := m.executor.Execute(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "file", migration.FilePath, "error", err)
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"duration", elapsed,
		)
	}
	return nil
}
