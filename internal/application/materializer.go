package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// MaterializeLockKey guards a materialization pass across replicas.
const MaterializeLockKey = "liveclass:materialize"

// Locker is the distributed lock the materializer runs under.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// LiveCourseLister lists live courses whose window includes a date.
type LiveCourseLister interface {
	ListLiveCourses(ctx context.Context, activeOn recurrence.Date) ([]persistence.Course, error)
	ListSlots(ctx context.Context, courseID string) ([]persistence.CourseSlot, error)
}

// Materializer keeps session records for upcoming occurrences in place and
// refreshes their cached status.
type Materializer struct {
	courses     LiveCourseLister
	sessions    SessionStore
	locker      Locker
	engine      *recurrence.Engine
	horizonDays int
	lockTTL     time.Duration
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMaterializer constructs a Materializer covering horizonDays from today.
func NewMaterializer(courses LiveCourseLister, sessions SessionStore, locker Locker, engine *recurrence.Engine, horizonDays int, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Materializer {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	if horizonDays <= 0 {
		horizonDays = 14
	}
	if now == nil {
		now = time.Now
	}
	return &Materializer{
		courses:     courses,
		sessions:    sessions,
		locker:      locker,
		engine:      engine,
		horizonDays: horizonDays,
		lockTTL:     5 * time.Minute,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// MaterializeSessions upserts one record per occurrence from yesterday up to
// the horizon. It returns the number of records written, or zero when another
// process holds the lock.
func (m *Materializer) MaterializeSessions(ctx context.Context) (int, error) {
	if m == nil {
		return 0, fmt.Errorf("materializer is nil")
	}
	logger := serviceLogger(ctx, m.logger, "Materializer", "MaterializeSessions")

	if m.locker != nil {
		acquired, err := m.locker.Lock(ctx, MaterializeLockKey, m.lockTTL)
		if err != nil {
			logger.Error("failed to acquire lock", "error", err)
			return 0, err
		}
		if !acquired {
			logger.Debug("materialization skipped, lock held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := m.locker.Unlock(context.WithoutCancel(ctx), MaterializeLockKey); err != nil {
				logger.Warn("failed to release lock", "error", err)
			}
		}()
	}

	now := m.now()
	today := m.engine.DateOf(now)
	from := today.AddDays(-1)
	to := today.AddDays(m.horizonDays)

	courses, err := m.courses.ListLiveCourses(ctx, today)
	if err != nil {
		logger.Error("failed to list courses", "error", err)
		return 0, mapRepoError(err)
	}

	written := 0
	for _, course := range courses {
		rows, err := m.courses.ListSlots(ctx, course.ID)
		if err != nil {
			logger.Error("failed to load slots", "course_id", course.ID, "error", err)
			return written, mapRepoError(err)
		}
		for _, occ := range m.engine.OccurrencesInRange(toWeeklySlots(rows), courseWindow(course), from, to) {
			record := sessionRecord(m.idGenerator(), course.ID, occ, m.engine, now)
			if _, err := m.sessions.UpsertSession(ctx, record); err != nil {
				logger.Error("failed to upsert session", "course_id", course.ID, "date", occ.Date.String(), "error", err)
				return written, mapRepoError(err)
			}
			written++
		}
	}

	logger.Info("sessions materialized", "courses", len(courses), "sessions", written, "from", from.String(), "to", to.String())
	return written, nil
}

// Run materializes once immediately and then on every tick until ctx is done.
func (m *Materializer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.MaterializeSessions(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("materialization pass failed", "error_kind", ErrorKind(err), "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
