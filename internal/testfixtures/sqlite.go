package testfixtures

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/persistence/sqlite"
)

// SQLiteHarness exposes every repository over a migrated temporary database.
type SQLiteHarness struct {
	Storage     *sqlite.Storage
	Courses     *sqlite.CourseRepository
	Enrollments *sqlite.EnrollmentRepository
	Sessions    *sqlite.LiveSessionRepository
	Attendance  *sqlite.AttendanceRepository
}

// NewSQLiteHarness opens and migrates a file backed database under tb.TempDir.
// The storage is closed by a tb cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "liveclass.db")
	storage, err := sqlite.Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = storage.Close() })

	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	return &SQLiteHarness{
		Storage:     storage,
		Courses:     sqlite.NewCourseRepository(storage),
		Enrollments: sqlite.NewEnrollmentRepository(storage),
		Sessions:    sqlite.NewLiveSessionRepository(storage),
		Attendance:  sqlite.NewAttendanceRepository(storage),
	}
}

// SeedCourse stores the course and its slots.
func (h *SQLiteHarness) SeedCourse(tb testing.TB, fixture CourseFixture) {
	tb.Helper()
	ctx := context.Background()

	if err := h.Courses.CreateCourse(ctx, fixture.Course); err != nil {
		tb.Fatalf("CreateCourse(%s) failed: %v", fixture.Course.ID, err)
	}
	if err := h.Courses.ReplaceSchedule(ctx, fixture.Course.ID, fixture.Window(), fixture.Slots, fixture.Course.UpdatedAt); err != nil {
		tb.Fatalf("ReplaceSchedule(%s) failed: %v", fixture.Course.ID, err)
	}
}

// Enroll adds studentID to courseID with status.
func (h *SQLiteHarness) Enroll(tb testing.TB, courseID, studentID, status string) {
	tb.Helper()

	err := h.Enrollments.CreateEnrollment(context.Background(), persistence.Enrollment{
		ID:        fmt.Sprintf("enrollment-%s-%s", courseID, studentID),
		CourseID:  courseID,
		StudentID: studentID,
		Status:    status,
		CreatedAt: ReferenceTime().UTC(),
	})
	if err != nil {
		tb.Fatalf("CreateEnrollment(%s, %s) failed: %v", courseID, studentID, err)
	}
}
