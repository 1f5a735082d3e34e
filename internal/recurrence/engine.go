package recurrence

import (
	"sort"
	"time"
)

// Engine expands weekly slots into occurrences anchored to a reference timezone.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine whose day-of-week and time-of-day
// arithmetic happens in loc. If loc is nil, UTC is used.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the reference timezone.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// At anchors a date and time of day in the reference timezone.
func (e *Engine) At(d Date, tod TimeOfDay) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, tod.Second, 0, e.Location())
}

// DateOf returns the calendar day of t in the reference timezone.
func (e *Engine) DateOf(t time.Time) Date {
	return DateOf(t, e.Location())
}

// Occurrence builds the occurrence of slots[index] on date d.
func (e *Engine) Occurrence(slot WeeklySlot, index int, d Date) Occurrence {
	return Occurrence{
		Date:      d,
		SlotIndex: index,
		Start:     e.At(d, slot.Start),
		End:       e.At(d, slot.End),
	}
}

// OccurrencesInRange produces every occurrence of slots whose date lies in
// [max(rangeStart, window.StartDate), min(rangeEnd, window.EndDate)].
//
// Results are sorted by start time; equal starts keep slot declaration order.
// Slots that fail Validate are skipped.
func (e *Engine) OccurrencesInRange(slots []WeeklySlot, window Window, rangeStart, rangeEnd Date) []Occurrence {
	lower := rangeStart
	if window.StartDate.After(lower) {
		lower = window.StartDate
	}
	upper := rangeEnd
	if window.EndDate.Before(upper) {
		upper = window.EndDate
	}
	if lower.After(upper) {
		return nil
	}

	occurrences := make([]Occurrence, 0, len(slots))
	for index, slot := range slots {
		if slot.Validate() != nil {
			continue
		}
		offset := (int(slot.Day) - int(lower.Weekday()) + 7) % 7
		for day := lower.AddDays(offset); !day.After(upper); day = day.AddDays(7) {
			occurrences = append(occurrences, e.Occurrence(slot, index, day))
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].SlotIndex < occurrences[j].SlotIndex
		}
		return occurrences[i].Start.Before(occurrences[j].Start)
	})
	return occurrences
}
