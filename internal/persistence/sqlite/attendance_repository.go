package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/liveclass-scheduler/internal/persistence"
)

// AttendanceRepository implements persistence.AttendanceRepository.
type AttendanceRepository struct {
	store *Storage
}

// NewAttendanceRepository binds the repository to store.
func NewAttendanceRepository(store *Storage) *AttendanceRepository {
	return &AttendanceRepository{store: store}
}

type attendanceRow struct {
	ID        string         `db:"id"`
	SessionID string         `db:"session_id"`
	StudentID string         `db:"student_id"`
	JoinedAt  string         `db:"joined_at"`
	LeftAt    sql.NullString `db:"left_at"`
}

func (r attendanceRow) toModel() (persistence.Attendance, error) {
	joinedAt, err := parseTimestamp(r.JoinedAt)
	if err != nil {
		return persistence.Attendance{}, err
	}
	record := persistence.Attendance{ID: r.ID, SessionID: r.SessionID, StudentID: r.StudentID, JoinedAt: joinedAt}
	if r.LeftAt.Valid {
		if record.LeftAt, err = parseTimestamp(r.LeftAt.String); err != nil {
			return persistence.Attendance{}, err
		}
	}
	return record, nil
}

const attendanceColumns = `id, session_id, student_id, joined_at, left_at`

func (r *AttendanceRepository) RecordAttendance(ctx context.Context, attendance persistence.Attendance) (persistence.Attendance, error) {
	if attendance.ID == "" || attendance.SessionID == "" || attendance.StudentID == "" {
		return persistence.Attendance{}, persistence.ErrConstraintViolation
	}

	var stored persistence.Attendance
	err := r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_attendance (id, session_id, student_id, joined_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (session_id, student_id) DO UPDATE SET joined_at = excluded.joined_at, left_at = NULL`,
			attendance.ID, attendance.SessionID, attendance.StudentID, formatTimestamp(attendance.JoinedAt))
		if err != nil {
			return mapError(err)
		}

		var row attendanceRow
		err = tx.GetContext(ctx, &row,
			`SELECT `+attendanceColumns+` FROM session_attendance WHERE session_id = ? AND student_id = ?`,
			attendance.SessionID, attendance.StudentID)
		if err != nil {
			return mapError(err)
		}
		stored, err = row.toModel()
		return err
	})
	if err != nil {
		return persistence.Attendance{}, err
	}
	return stored, nil
}

func (r *AttendanceRepository) ListAttendance(ctx context.Context, sessionID string) ([]persistence.Attendance, error) {
	var rows []attendanceRow
	err := r.store.db.SelectContext(ctx, &rows,
		`SELECT `+attendanceColumns+` FROM session_attendance WHERE session_id = ? ORDER BY joined_at, student_id`,
		sessionID)
	if err != nil {
		return nil, mapError(err)
	}

	attendance := make([]persistence.Attendance, 0, len(rows))
	for _, row := range rows {
		record, err := row.toModel()
		if err != nil {
			return nil, err
		}
		attendance = append(attendance, record)
	}
	return attendance, nil
}

// CloseAttendance returns persistence.ErrNotFound when the student has no
// open row for the session.
func (r *AttendanceRepository) CloseAttendance(ctx context.Context, sessionID, studentID string, leftAt time.Time) error {
	result, err := r.store.db.ExecContext(ctx,
		`UPDATE session_attendance SET left_at = ? WHERE session_id = ? AND student_id = ? AND left_at IS NULL`,
		formatTimestamp(leftAt), sessionID, studentID)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (r *AttendanceRepository) CloseOpenAttendance(ctx context.Context, sessionID string, leftAt time.Time) (int, error) {
	result, err := r.store.db.ExecContext(ctx,
		`UPDATE session_attendance SET left_at = ? WHERE session_id = ? AND left_at IS NULL`,
		formatTimestamp(leftAt), sessionID)
	if err != nil {
		return 0, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(affected), nil
}
