package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// LiveSessionRepository implements persistence.LiveSessionRepository.
type LiveSessionRepository struct {
	store *Storage
}

// NewLiveSessionRepository binds the repository to store.
func NewLiveSessionRepository(store *Storage) *LiveSessionRepository {
	return &LiveSessionRepository{store: store}
}

type liveSessionRow struct {
	ID          string `db:"id"`
	CourseID    string `db:"course_id"`
	SessionDate string `db:"session_date"`
	StartTime   string `db:"start_time"`
	EndTime     string `db:"end_time"`
	Status      string `db:"status"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (r liveSessionRow) toModel() (persistence.LiveSession, error) {
	date, err := recurrence.ParseDate(r.SessionDate)
	if err != nil {
		return persistence.LiveSession{}, fmt.Errorf("%w: session %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	start, err := recurrence.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return persistence.LiveSession{}, fmt.Errorf("%w: session %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	end, err := recurrence.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return persistence.LiveSession{}, fmt.Errorf("%w: session %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	createdAt, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return persistence.LiveSession{}, err
	}
	updatedAt, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return persistence.LiveSession{}, err
	}
	return persistence.LiveSession{
		ID:          r.ID,
		CourseID:    r.CourseID,
		SessionDate: date,
		StartTime:   start,
		EndTime:     end,
		Status:      r.Status,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

const liveSessionColumns = `id, course_id, session_date, start_time, end_time, status, created_at, updated_at`

// UpsertSession keeps the first ID issued for a (course, date, start) key.
// A cancelled session stays cancelled.
func (r *LiveSessionRepository) UpsertSession(ctx context.Context, session persistence.LiveSession) (persistence.LiveSession, error) {
	if session.ID == "" || session.CourseID == "" {
		return persistence.LiveSession{}, persistence.ErrConstraintViolation
	}

	var stored persistence.LiveSession
	err := r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO live_sessions (`+liveSessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (course_id, session_date, start_time) DO UPDATE SET
			   end_time = excluded.end_time,
			   status = CASE WHEN live_sessions.status = 'cancelled' THEN 'cancelled' ELSE excluded.status END,
			   updated_at = excluded.updated_at`,
			session.ID,
			session.CourseID,
			session.SessionDate.String(),
			session.StartTime.String(),
			session.EndTime.String(),
			session.Status,
			formatTimestamp(session.CreatedAt),
			formatTimestamp(session.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}

		var row liveSessionRow
		err = tx.GetContext(ctx, &row,
			`SELECT `+liveSessionColumns+` FROM live_sessions WHERE course_id = ? AND session_date = ? AND start_time = ?`,
			session.CourseID, session.SessionDate.String(), session.StartTime.String())
		if err != nil {
			return mapError(err)
		}
		stored, err = row.toModel()
		return err
	})
	if err != nil {
		return persistence.LiveSession{}, err
	}
	return stored, nil
}

func (r *LiveSessionRepository) GetSession(ctx context.Context, id string) (persistence.LiveSession, error) {
	if id == "" {
		return persistence.LiveSession{}, persistence.ErrNotFound
	}

	var row liveSessionRow
	if err := r.store.db.GetContext(ctx, &row, `SELECT `+liveSessionColumns+` FROM live_sessions WHERE id = ?`, id); err != nil {
		return persistence.LiveSession{}, mapError(err)
	}
	return row.toModel()
}

// ListSessions returns a course's sessions dated within [from, to], in start order.
func (r *LiveSessionRepository) ListSessions(ctx context.Context, courseID string, from, to recurrence.Date) ([]persistence.LiveSession, error) {
	var rows []liveSessionRow
	err := r.store.db.SelectContext(ctx, &rows,
		`SELECT `+liveSessionColumns+` FROM live_sessions
		 WHERE course_id = ? AND session_date BETWEEN ? AND ?
		 ORDER BY session_date, start_time`,
		courseID, from.String(), to.String())
	if err != nil {
		return nil, mapError(err)
	}

	sessions := make([]persistence.LiveSession, 0, len(rows))
	for _, row := range rows {
		session, err := row.toModel()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// DeleteSessions only removes rows that belong to courseID; attendance goes
// with them through the foreign key cascade.
func (r *LiveSessionRepository) DeleteSessions(ctx context.Context, courseID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`DELETE FROM live_sessions WHERE course_id = ? AND id IN (?)`, courseID, ids)
	if err != nil {
		return 0, fmt.Errorf("sqlite: build delete: %w", err)
	}

	deleted := 0
	err = r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		deleted = int(affected)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
