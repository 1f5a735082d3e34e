package persistence

import (
	"context"
	"time"

	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// CourseRepository exposes the course data the scheduler reads, plus the
// schedule replacement used by course authoring.
type CourseRepository interface {
	CreateCourse(ctx context.Context, course Course) error
	GetCourse(ctx context.Context, id string) (Course, error)
	ListLiveCourses(ctx context.Context, activeOn recurrence.Date) ([]Course, error)
	ListSlots(ctx context.Context, courseID string) ([]CourseSlot, error)
	ReplaceSchedule(ctx context.Context, courseID string, window recurrence.Window, slots []CourseSlot, updatedAt time.Time) error
}

// EnrollmentRepository answers enrollment questions for students.
type EnrollmentRepository interface {
	CreateEnrollment(ctx context.Context, enrollment Enrollment) error
	IsActivelyEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	ListActiveCourseIDs(ctx context.Context, studentID string) ([]string, error)
}

// LiveSessionRepository stores materialized session records.
type LiveSessionRepository interface {
	// UpsertSession inserts the session or refreshes the existing row with the
	// same course, date and start time. The stored row is returned.
	UpsertSession(ctx context.Context, session LiveSession) (LiveSession, error)
	GetSession(ctx context.Context, id string) (LiveSession, error)
	ListSessions(ctx context.Context, courseID string, from, to recurrence.Date) ([]LiveSession, error)
	// DeleteSessions removes the listed sessions of a course together with
	// their attendance and reports how many rows went away.
	DeleteSessions(ctx context.Context, courseID string, ids []string) (int, error)
}

// AttendanceRepository stores join records.
type AttendanceRepository interface {
	// RecordAttendance keeps one row per session and student, refreshing
	// JoinedAt and reopening a row that was closed.
	RecordAttendance(ctx context.Context, attendance Attendance) (Attendance, error)
	ListAttendance(ctx context.Context, sessionID string) ([]Attendance, error)
	// CloseAttendance stamps LeftAt on the open row of one student.
	CloseAttendance(ctx context.Context, sessionID, studentID string, leftAt time.Time) error
	// CloseOpenAttendance stamps LeftAt on every open row of a session.
	CloseOpenAttendance(ctx context.Context, sessionID string, leftAt time.Time) (int, error)
}
