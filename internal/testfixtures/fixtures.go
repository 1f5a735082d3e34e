package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
)

var courseCounter uint64

// CourseFixture is a course together with its weekly slots.
type CourseFixture struct {
	Course persistence.Course
	Slots  []persistence.CourseSlot

	slotsSet bool
}

// CourseOption configures a CourseFixture.
type CourseOption func(*CourseFixture)

// NewCourseFixture returns an active live course taught by "teacher-1",
// running January through March 2024 with a Tuesday 14:00-18:00 slot.
func NewCourseFixture(opts ...CourseOption) CourseFixture {
	idx := atomic.AddUint64(&courseCounter, 1)
	created := ReferenceTime().Add(-30 * 24 * time.Hour).UTC()
	fixture := CourseFixture{
		Course: persistence.Course{
			ID:        fmt.Sprintf("course-%03d", idx),
			TeacherID: "teacher-1",
			Title:     fmt.Sprintf("Course %03d", idx),
			Kind:      persistence.CourseKindLive,
			Active:    true,
			StartDate: recurrence.MustDate("2024-01-01"),
			EndDate:   recurrence.MustDate("2024-03-31"),
			CreatedAt: created,
			UpdatedAt: created,
		},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	if !fixture.slotsSet {
		WithSlot(time.Tuesday, "14:00", "18:00")(&fixture)
	}
	for i := range fixture.Slots {
		fixture.Slots[i].CourseID = fixture.Course.ID
		fixture.Slots[i].Position = i
		fixture.Slots[i].ID = fmt.Sprintf("%s-slot-%d", fixture.Course.ID, i)
	}
	return fixture
}

// Window returns the validity window of the course.
func (f CourseFixture) Window() recurrence.Window {
	return recurrence.Window{StartDate: f.Course.StartDate, EndDate: f.Course.EndDate}
}

// WeeklySlots converts the fixture slots to recurrence slots.
func (f CourseFixture) WeeklySlots() []recurrence.WeeklySlot {
	slots := make([]recurrence.WeeklySlot, len(f.Slots))
	for i, slot := range f.Slots {
		slots[i] = recurrence.WeeklySlot{Day: slot.Day, Start: slot.StartTime, End: slot.EndTime}
	}
	return slots
}

func WithCourseID(id string) CourseOption {
	return func(f *CourseFixture) { f.Course.ID = id }
}

func WithTeacher(id string) CourseOption {
	return func(f *CourseFixture) { f.Course.TeacherID = id }
}

// WithWindow sets the validity window from YYYY-MM-DD strings.
func WithWindow(start, end string) CourseOption {
	return func(f *CourseFixture) {
		f.Course.StartDate = recurrence.MustDate(start)
		f.Course.EndDate = recurrence.MustDate(end)
	}
}

func WithInactive() CourseOption {
	return func(f *CourseFixture) { f.Course.Active = false }
}

func WithKind(kind string) CourseOption {
	return func(f *CourseFixture) { f.Course.Kind = kind }
}

// WithSlot adds a weekly slot. Any WithSlot replaces the default slot.
func WithSlot(day time.Weekday, start, end string) CourseOption {
	return func(f *CourseFixture) {
		f.slotsSet = true
		f.Slots = append(f.Slots, persistence.CourseSlot{
			Day:       day,
			StartTime: recurrence.MustTimeOfDay(start),
			EndTime:   recurrence.MustTimeOfDay(end),
		})
	}
}

// WithoutSlots leaves the course with no weekly slots.
func WithoutSlots() CourseOption {
	return func(f *CourseFixture) {
		f.slotsSet = true
		f.Slots = nil
	}
}
