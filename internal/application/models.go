package application

import (
	"time"

	"github.com/example/liveclass-scheduler/internal/recurrence"
	"github.com/example/liveclass-scheduler/internal/scheduler"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// SessionStatusCancelled marks a session an operator cancelled. It is the
// only stored status that overrides the clock-derived one.
const SessionStatusCancelled = "cancelled"

// SessionView is a resolved occurrence together with the caller's join decision.
type SessionView struct {
	ID                string
	CourseID          string
	CourseTitle       string
	Date              recurrence.Date
	Start             time.Time
	End               time.Time
	Status            string
	CanJoin           bool
	IsTeacher         bool
	MinutesUntilStart int
	Reason            scheduler.Reason
	Upcoming          bool
}

// StreamCredentials are handed to a caller that passed the join gate.
type StreamCredentials struct {
	Channel   string
	Token     string
	UID       string
	Role      string
	ExpiresAt time.Time
}

// JoinResult is the outcome of a successful join.
type JoinResult struct {
	Session SessionView
	Stream  StreamCredentials
}

// LeaveResult reports the attendance rows a leave request closed. A teacher
// closes every open row of the session, a student only their own.
type LeaveResult struct {
	SessionID string
	IsTeacher bool
	Closed    int
}

// AttendanceEntry is one student's presence in a session. A zero LeftAt
// means the student has not left.
type AttendanceEntry struct {
	StudentID string
	JoinedAt  time.Time
	LeftAt    time.Time
}

// SlotInput is one weekly slot as supplied by a course author.
type SlotInput struct {
	Day       string `json:"day" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// ScheduleInput captures the validity window and weekly slots of a course.
type ScheduleInput struct {
	StartDate string      `json:"start_date" validate:"required"`
	EndDate   string      `json:"end_date" validate:"required"`
	Slots     []SlotInput `json:"slots" validate:"required,min=1,max=14,dive"`
}

// CourseSchedule is the stored recurrence definition of a course.
type CourseSchedule struct {
	CourseID string
	Window   recurrence.Window
	Slots    []recurrence.WeeklySlot
}
