package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidTimeOfDay indicates a time-of-day string is not HH:MM or HH:MM:SS.
	ErrInvalidTimeOfDay = errors.New("recurrence: invalid time of day")
	// ErrInvalidDate indicates a date string is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("recurrence: invalid date")
	// ErrInvalidWeekday indicates a weekday name could not be recognised.
	ErrInvalidWeekday = errors.New("recurrence: invalid weekday")
	// ErrInvalidSlot indicates a weekly slot ends at or before its start.
	ErrInvalidSlot = errors.New("recurrence: slot end must be after start")
	// ErrInvalidWindow indicates a validity window ends before it starts.
	ErrInvalidWindow = errors.New("recurrence: window end date precedes start date")
)

// TimeOfDay is a wall-clock time without a date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "HH:MM:SS" or "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	limits := []int{23, 59, 59}
	fields := [3]int{}
	for i, part := range parts {
		if len(part) != 2 {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
		}
		fields[i] = n
	}
	return TimeOfDay{Hour: fields[0], Minute: fields[1], Second: fields[2]}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on malformed input.
func MustTimeOfDay(value string) TimeOfDay {
	tod, err := ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return tod
}

// String formats the value as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Before reports whether t is strictly earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.seconds() < other.seconds()
}

// Date is a calendar day. Arithmetic on it never involves a timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// ParseDate accepts "YYYY-MM-DD".
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return DateOf(parsed, time.UTC), nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(value string) Date {
	d, err := ParseDate(value)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.midnightUTC().Format(dateLayout)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n), time.UTC)
}

// Weekday returns the day of the week for d.
func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	return d.midnightUTC().Before(other.midnightUTC())
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return d.midnightUTC().After(other.midnightUTC())
}

// DaysUntil returns the signed number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.midnightUTC().Sub(d.midnightUTC()) / (24 * time.Hour))
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday, "0": time.Sunday,
	"monday": time.Monday, "mon": time.Monday, "1": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "2": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday, "3": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "4": time.Thursday,
	"friday": time.Friday, "fri": time.Friday, "5": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday, "6": time.Saturday,
}

// ParseWeekday maps a weekday name, abbreviation or 0..6 index (Sunday=0).
func ParseWeekday(value string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, value)
	}
	return day, nil
}

// WeekdayName returns the lower case storage form of a weekday.
func WeekdayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}

// WeeklySlot is one recurring meeting template.
type WeeklySlot struct {
	Day   time.Weekday
	Start TimeOfDay
	End   TimeOfDay
}

// Validate enforces End > Start within the same day.
func (s WeeklySlot) Validate() error {
	if s.Day < time.Sunday || s.Day > time.Saturday {
		return fmt.Errorf("%w: %d", ErrInvalidWeekday, s.Day)
	}
	if !s.Start.Before(s.End) {
		return fmt.Errorf("%w: %s-%s", ErrInvalidSlot, s.Start, s.End)
	}
	return nil
}

// Window bounds the dates on which slots materialize. Both ends are inclusive.
type Window struct {
	StartDate Date
	EndDate   Date
}

// Validate enforces EndDate >= StartDate.
func (w Window) Validate() error {
	if w.EndDate.Before(w.StartDate) {
		return fmt.Errorf("%w: %s..%s", ErrInvalidWindow, w.StartDate, w.EndDate)
	}
	return nil
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d Date) bool {
	return !d.Before(w.StartDate) && !d.After(w.EndDate)
}

// Status is derived from the current time and never stored as truth.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
)

// Occurrence is one concrete instance of a weekly slot.
type Occurrence struct {
	Date      Date
	SlotIndex int
	Start     time.Time
	End       time.Time
}

// Status derives the lifecycle state of the occurrence at now.
func (o Occurrence) Status(now time.Time) Status {
	switch {
	case now.Before(o.Start):
		return StatusScheduled
	case now.After(o.End):
		return StatusEnded
	default:
		return StatusLive
	}
}

// IsLive reports whether now lies within [Start, End].
func (o Occurrence) IsLive(now time.Time) bool {
	return o.Status(now) == StatusLive
}
