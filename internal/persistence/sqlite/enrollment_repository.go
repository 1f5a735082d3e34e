package sqlite

import (
	"context"

	"github.com/example/liveclass-scheduler/internal/persistence"
)

// EnrollmentRepository implements persistence.EnrollmentRepository.
type EnrollmentRepository struct {
	store *Storage
}

// NewEnrollmentRepository binds the repository to store.
func NewEnrollmentRepository(store *Storage) *EnrollmentRepository {
	return &EnrollmentRepository{store: store}
}

// CreateEnrollment inserts an enrollment. Enrollment management belongs to
// the marketplace; this exists for seeding and tests.
func (r *EnrollmentRepository) CreateEnrollment(ctx context.Context, enrollment persistence.Enrollment) error {
	if enrollment.ID == "" || enrollment.StudentID == "" {
		return persistence.ErrConstraintViolation
	}
	status := enrollment.Status
	if status == "" {
		status = persistence.EnrollmentActive
	}

	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO enrollments (id, course_id, student_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		enrollment.ID, enrollment.CourseID, enrollment.StudentID, status, formatTimestamp(enrollment.CreatedAt))
	return mapError(err)
}

func (r *EnrollmentRepository) IsActivelyEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var enrolled bool
	err := r.store.db.GetContext(ctx, &enrolled,
		`SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = ? AND student_id = ? AND status = ?)`,
		courseID, studentID, persistence.EnrollmentActive)
	if err != nil {
		return false, mapError(err)
	}
	return enrolled, nil
}

func (r *EnrollmentRepository) ListActiveCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	err := r.store.db.SelectContext(ctx, &ids,
		`SELECT course_id FROM enrollments WHERE student_id = ? AND status = ? ORDER BY course_id`,
		studentID, persistence.EnrollmentActive)
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}
