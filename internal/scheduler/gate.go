package scheduler

import (
	"time"

	"github.com/example/liveclass-scheduler/internal/recurrence"
)

const (
	// EarlyJoinGrace is how long before start a participant may join.
	EarlyJoinGrace = 15 * time.Minute
	// LateJoinCutoff is how long after end a session stops being recoverable.
	LateJoinCutoff = 120 * time.Minute
)

// Role identifies the caller's relation to the course.
type Role string

const (
	RoleTeacher     Role = "teacher"
	RoleParticipant Role = "participant"
)

// Reason explains a join decision.
type Reason string

const (
	ReasonTooEarly           Reason = "too_early"
	ReasonJoinable           Reason = "joinable"
	ReasonGracePeriodExpired Reason = "grace_period_expired"
	ReasonNotScheduled       Reason = "not_scheduled"
)

// Message returns the user facing text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonJoinable:
		return "Session is open"
	case ReasonTooEarly:
		return "Session has not started yet"
	case ReasonGracePeriodExpired:
		return "Session has ended"
	default:
		return "Cannot join session at this time"
	}
}

// Decision is the outcome of a join check.
type Decision struct {
	CanJoin           bool
	MinutesUntilStart int
	Reason            Reason
}

// MinutesUntil returns the signed number of whole minutes from now until
// start, rounded up. A result <= n is equivalent to start-now <= n minutes.
func MinutesUntil(start, now time.Time) int {
	d := start.Sub(now)
	minutes := d / time.Minute
	if d%time.Minute > 0 {
		minutes++
	}
	return int(minutes)
}

// Decide reports whether a caller with role may join occ at now.
// Callers that are neither teacher nor participant must be rejected before
// reaching here.
func Decide(occ recurrence.Occurrence, role Role, now time.Time) Decision {
	minutes := MinutesUntil(occ.Start, now)
	expired := now.Sub(occ.End) > LateJoinCutoff

	if role == RoleTeacher {
		if expired {
			return Decision{MinutesUntilStart: minutes, Reason: ReasonNotScheduled}
		}
		return Decision{CanJoin: true, MinutesUntilStart: minutes, Reason: ReasonJoinable}
	}

	switch {
	case minutes <= int(EarlyJoinGrace/time.Minute) && !now.After(occ.End):
		return Decision{CanJoin: true, MinutesUntilStart: minutes, Reason: ReasonJoinable}
	case minutes > int(EarlyJoinGrace/time.Minute):
		return Decision{MinutesUntilStart: minutes, Reason: ReasonTooEarly}
	case expired:
		return Decision{MinutesUntilStart: minutes, Reason: ReasonGracePeriodExpired}
	default:
		return Decision{MinutesUntilStart: minutes, Reason: ReasonNotScheduled}
	}
}
