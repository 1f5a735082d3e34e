package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// CourseRepository implements persistence.CourseRepository.
type CourseRepository struct {
	store *Storage
}

// NewCourseRepository binds the repository to store.
func NewCourseRepository(store *Storage) *CourseRepository {
	return &CourseRepository{store: store}
}

type courseRow struct {
	ID        string `db:"id"`
	TeacherID string `db:"teacher_id"`
	Title     string `db:"title"`
	Kind      string `db:"kind"`
	Active    bool   `db:"active"`
	StartDate string `db:"start_date"`
	EndDate   string `db:"end_date"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r courseRow) toModel() (persistence.Course, error) {
	start, err := recurrence.ParseDate(r.StartDate)
	if err != nil {
		return persistence.Course{}, fmt.Errorf("%w: course %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	end, err := recurrence.ParseDate(r.EndDate)
	if err != nil {
		return persistence.Course{}, fmt.Errorf("%w: course %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	if err := (recurrence.Window{StartDate: start, EndDate: end}).Validate(); err != nil {
		return persistence.Course{}, fmt.Errorf("%w: course %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	createdAt, err := parseTimestamp(r.CreatedAt)
	if err != nil {
		return persistence.Course{}, err
	}
	updatedAt, err := parseTimestamp(r.UpdatedAt)
	if err != nil {
		return persistence.Course{}, err
	}
	return persistence.Course{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		Title:     r.Title,
		Kind:      r.Kind,
		Active:    r.Active,
		StartDate: start,
		EndDate:   end,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

type slotRow struct {
	ID        string `db:"id"`
	CourseID  string `db:"course_id"`
	Position  int    `db:"position"`
	DayOfWeek string `db:"day_of_week"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
}

func (r slotRow) toModel() (persistence.CourseSlot, error) {
	day, err := recurrence.ParseWeekday(r.DayOfWeek)
	if err != nil {
		return persistence.CourseSlot{}, fmt.Errorf("%w: slot %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	start, err := recurrence.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return persistence.CourseSlot{}, fmt.Errorf("%w: slot %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	end, err := recurrence.ParseTimeOfDay(r.EndTime)
	if err != nil {
		return persistence.CourseSlot{}, fmt.Errorf("%w: slot %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	if err := (recurrence.WeeklySlot{Day: day, Start: start, End: end}).Validate(); err != nil {
		return persistence.CourseSlot{}, fmt.Errorf("%w: slot %s: %v", persistence.ErrConstraintViolation, r.ID, err)
	}
	return persistence.CourseSlot{
		ID:        r.ID,
		CourseID:  r.CourseID,
		Position:  r.Position,
		Day:       day,
		StartTime: start,
		EndTime:   end,
	}, nil
}

const courseColumns = `id, teacher_id, title, kind, active, start_date, end_date, created_at, updated_at`

// CreateCourse inserts a course. Course authoring belongs to the catalog;
// this exists for seeding and tests.
func (r *CourseRepository) CreateCourse(ctx context.Context, course persistence.Course) error {
	if course.ID == "" || course.TeacherID == "" {
		return persistence.ErrConstraintViolation
	}
	kind := course.Kind
	if kind == "" {
		kind = persistence.CourseKindLive
	}

	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO courses (`+courseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		course.ID,
		course.TeacherID,
		course.Title,
		kind,
		course.Active,
		course.StartDate.String(),
		course.EndDate.String(),
		formatTimestamp(course.CreatedAt),
		formatTimestamp(course.UpdatedAt),
	)
	return mapError(err)
}

// GetCourse loads a course by ID.
func (r *CourseRepository) GetCourse(ctx context.Context, id string) (persistence.Course, error) {
	if id == "" {
		return persistence.Course{}, persistence.ErrNotFound
	}

	var row courseRow
	if err := r.store.db.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id); err != nil {
		return persistence.Course{}, mapError(err)
	}
	return row.toModel()
}

// ListLiveCourses returns active live courses whose window has not closed by activeOn.
func (r *CourseRepository) ListLiveCourses(ctx context.Context, activeOn recurrence.Date) ([]persistence.Course, error) {
	var rows []courseRow
	err := r.store.db.SelectContext(ctx, &rows,
		`SELECT `+courseColumns+` FROM courses WHERE kind = ? AND active = 1 AND end_date >= ? ORDER BY id`,
		persistence.CourseKindLive, activeOn.String())
	if err != nil {
		return nil, mapError(err)
	}

	courses := make([]persistence.Course, 0, len(rows))
	for _, row := range rows {
		course, err := row.toModel()
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, nil
}

// ListSlots returns the weekly slots of a course in declaration order.
func (r *CourseRepository) ListSlots(ctx context.Context, courseID string) ([]persistence.CourseSlot, error) {
	var rows []slotRow
	err := r.store.db.SelectContext(ctx, &rows,
		`SELECT id, course_id, position, day_of_week, start_time, end_time
		 FROM course_slots WHERE course_id = ? ORDER BY position`, courseID)
	if err != nil {
		return nil, mapError(err)
	}

	slots := make([]persistence.CourseSlot, 0, len(rows))
	for _, row := range rows {
		slot, err := row.toModel()
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// ReplaceSchedule swaps the window and every slot of a course atomically.
func (r *CourseRepository) ReplaceSchedule(ctx context.Context, courseID string, window recurrence.Window, slots []persistence.CourseSlot, updatedAt time.Time) error {
	if err := window.Validate(); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}

	return r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE courses SET start_date = ?, end_date = ?, updated_at = ? WHERE id = ?`,
			window.StartDate.String(), window.EndDate.String(), formatTimestamp(updatedAt), courseID)
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

		if _, err := tx.ExecContext(ctx, `DELETE FROM course_slots WHERE course_id = ?`, courseID); err != nil {
			return mapError(err)
		}

		for i, slot := range slots {
			if slot.ID == "" {
				return persistence.ErrConstraintViolation
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO course_slots (id, course_id, position, day_of_week, start_time, end_time)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				slot.ID, courseID, i, recurrence.WeekdayName(slot.Day), slot.StartTime.String(), slot.EndTime.String())
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}
