package persistence

import (
	"time"

	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// CourseKindLive marks courses delivered through recurring live sessions.
const CourseKindLive = "live"

// Course is the scheduling view of a marketplace course. The catalog owns
// every other course attribute.
type Course struct {
	ID        string
	TeacherID string
	Title     string
	Kind      string
	Active    bool
	StartDate recurrence.Date
	EndDate   recurrence.Date
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CourseSlot is one weekly slot of a course, ordered by Position.
type CourseSlot struct {
	ID        string
	CourseID  string
	Position  int
	Day       time.Weekday
	StartTime recurrence.TimeOfDay
	EndTime   recurrence.TimeOfDay
}

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentCancelled = "cancelled"
)

// Enrollment links a student to a course.
type Enrollment struct {
	ID        string
	CourseID  string
	StudentID string
	Status    string
	CreatedAt time.Time
}

// LiveSession is the persisted record of one occurrence. Status is a cache
// of the value derived from the clock and is overwritten on every write.
type LiveSession struct {
	ID          string
	CourseID    string
	SessionDate recurrence.Date
	StartTime   recurrence.TimeOfDay
	EndTime     recurrence.TimeOfDay
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Attendance records that a student joined a session. A zero LeftAt means
// the student is still in the session.
type Attendance struct {
	ID        string
	SessionID string
	StudentID string
	JoinedAt  time.Time
	LeftAt    time.Time
}
