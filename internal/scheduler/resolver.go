// Package scheduler selects the session relevant to a moment in time and
// decides whether a caller may join it. Nothing here reads the clock; every
// operation takes now explicitly.
package scheduler

import (
	"time"

	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// lookaheadDays is the first scan window. Slots recur weekly so seven days
// past today always covers one full cycle.
const lookaheadDays = 7

// Resolution is the occurrence chosen for a course at a moment in time.
type Resolution struct {
	Occurrence        recurrence.Occurrence
	Upcoming          bool
	MinutesUntilStart int
}

// Resolver picks the next or currently live occurrence of a course.
type Resolver struct {
	engine      *recurrence.Engine
	graceWindow time.Duration
}

// NewResolver wires a resolver to the recurrence engine of the reference timezone.
func NewResolver(engine *recurrence.Engine) *Resolver {
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	return &Resolver{engine: engine, graceWindow: EarlyJoinGrace}
}

// Engine exposes the underlying recurrence engine.
func (r *Resolver) Engine() *recurrence.Engine {
	return r.engine
}

// ResolveNext returns the occurrence relevant to now. The boolean is false
// when the course has no slots, has ended, or has no occurrence left in its
// window.
func (r *Resolver) ResolveNext(slots []recurrence.WeeklySlot, window recurrence.Window, now time.Time) (Resolution, bool) {
	if len(slots) == 0 {
		return Resolution{}, false
	}

	today := r.engine.DateOf(now)
	if window.EndDate.Before(today) {
		return Resolution{}, false
	}

	if window.StartDate.After(today) {
		first := r.engine.OccurrencesInRange(slots, window, window.StartDate, window.StartDate.AddDays(lookaheadDays-1))
		if len(first) == 0 {
			return Resolution{}, false
		}
		return Resolution{
			Occurrence:        first[0],
			Upcoming:          true,
			MinutesUntilStart: MinutesUntil(first[0].Start, now),
		}, true
	}

	from, to := today, today.AddDays(lookaheadDays)
	for {
		candidates := r.engine.OccurrencesInRange(slots, window, from, to)
		if occ, ok := r.pick(candidates, now); ok {
			return Resolution{Occurrence: occ, MinutesUntilStart: MinutesUntil(occ.Start, now)}, true
		}
		if !to.Before(window.EndDate) {
			return Resolution{}, false
		}
		from, to = to.AddDays(1), to.AddDays(lookaheadDays)
	}
}

func (r *Resolver) pick(candidates []recurrence.Occurrence, now time.Time) (recurrence.Occurrence, bool) {
	for _, occ := range candidates {
		if occ.IsLive(now) {
			return occ, true
		}
	}
	threshold := now.Add(-r.graceWindow)
	for _, occ := range candidates {
		if !occ.Start.Before(threshold) {
			return occ, true
		}
	}
	for _, occ := range candidates {
		if occ.Start.After(now) {
			return occ, true
		}
	}
	return recurrence.Occurrence{}, false
}
