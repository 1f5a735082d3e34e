package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
)

// ScheduleRepository reads and replaces the recurrence definition of a course.
type ScheduleRepository interface {
	CourseReader
	ReplaceSchedule(ctx context.Context, courseID string, window recurrence.Window, slots []persistence.CourseSlot, updatedAt time.Time) error
}

// SessionPruner lists and removes stored session records of a course.
type SessionPruner interface {
	ListSessions(ctx context.Context, courseID string, from, to recurrence.Date) ([]persistence.LiveSession, error)
	DeleteSessions(ctx context.Context, courseID string, ids []string) (int, error)
}

// ScheduleDeps wires a ScheduleService.
type ScheduleDeps struct {
	Courses     ScheduleRepository
	Enrollments EnrollmentChecker
	Sessions    SessionPruner
	Engine      *recurrence.Engine
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// ScheduleService lets a course teacher author the weekly schedule.
type ScheduleService struct {
	courses     ScheduleRepository
	enrollments EnrollmentChecker
	sessions    SessionPruner
	engine      *recurrence.Engine
	validate    *validator.Validate
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(deps ScheduleDeps) *ScheduleService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	engine := deps.Engine
	if engine == nil {
		engine = recurrence.NewEngine(nil)
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &ScheduleService{
		courses:     deps.Courses,
		enrollments: deps.Enrollments,
		sessions:    deps.Sessions,
		engine:      engine,
		validate:    validate,
		idGenerator: deps.IDGenerator,
		now:         now,
		logger:      defaultLogger(deps.Logger),
	}
}

// GetSchedule returns the window and slots of courseID to its teacher or enrolled students.
func (s *ScheduleService) GetSchedule(ctx context.Context, principal Principal, courseID string) (CourseSchedule, error) {
	if s == nil {
		return CourseSchedule{}, fmt.Errorf("schedule service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "GetSchedule", "course_id", courseID, "user_id", principal.UserID)

	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		err = mapRepoError(err)
		logger.Warn("failed to load course", "error_kind", ErrorKind(err), "error", err)
		return CourseSchedule{}, err
	}
	if course.TeacherID != principal.UserID {
		enrolled, err := s.enrollments.IsActivelyEnrolled(ctx, course.ID, principal.UserID)
		if err != nil {
			return CourseSchedule{}, mapRepoError(err)
		}
		if !enrolled {
			logger.Warn("caller rejected", "error_kind", ErrorKind(ErrUnauthorized))
			return CourseSchedule{}, ErrUnauthorized
		}
	}

	rows, err := s.courses.ListSlots(ctx, course.ID)
	if err != nil {
		return CourseSchedule{}, mapRepoError(err)
	}
	return CourseSchedule{CourseID: course.ID, Window: courseWindow(course), Slots: toWeeklySlots(rows)}, nil
}

// ReplaceSchedule validates input and swaps the course window and slots.
// Only the course teacher may call it.
func (s *ScheduleService) ReplaceSchedule(ctx context.Context, principal Principal, courseID string, input ScheduleInput) (CourseSchedule, error) {
	if s == nil {
		return CourseSchedule{}, fmt.Errorf("schedule service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ScheduleService", "ReplaceSchedule", "course_id", courseID, "user_id", principal.UserID)

	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		err = mapRepoError(err)
		logger.Warn("failed to load course", "error_kind", ErrorKind(err), "error", err)
		return CourseSchedule{}, err
	}
	if principal.UserID == "" || course.TeacherID != principal.UserID {
		logger.Warn("caller rejected", "error_kind", ErrorKind(ErrUnauthorized))
		return CourseSchedule{}, ErrUnauthorized
	}

	schedule, vErr := s.parse(input)
	if vErr.HasErrors() {
		logger.Warn("schedule rejected", "error_kind", ErrorKind(vErr), "fields", vErr.FieldErrors)
		return CourseSchedule{}, vErr
	}
	schedule.CourseID = course.ID

	rows := make([]persistence.CourseSlot, len(schedule.Slots))
	for i, slot := range schedule.Slots {
		rows[i] = persistence.CourseSlot{
			ID:        s.idGenerator(),
			CourseID:  course.ID,
			Position:  i,
			Day:       slot.Day,
			StartTime: slot.Start,
			EndTime:   slot.End,
		}
	}
	now := s.now()
	if err := s.courses.ReplaceSchedule(ctx, course.ID, schedule.Window, rows, now.UTC()); err != nil {
		err = mapRepoError(err)
		logger.Error("failed to replace schedule", "error_kind", ErrorKind(err), "error", err)
		return CourseSchedule{}, err
	}

	pruned, err := s.pruneSessions(ctx, course, schedule, now)
	if err != nil {
		logger.Error("failed to prune sessions", "error", err)
		return CourseSchedule{}, err
	}

	logger.Info("schedule replaced",
		"slots", len(rows),
		"start_date", schedule.Window.StartDate.String(),
		"end_date", schedule.Window.EndDate.String(),
		"pruned_sessions", pruned,
	)
	return schedule, nil
}

// pruneSessions deletes stored records that have not started yet and that
// the new schedule no longer produces. Started records are kept for their
// attendance; joins re-check them against the schedule.
func (s *ScheduleService) pruneSessions(ctx context.Context, previous persistence.Course, schedule CourseSchedule, now time.Time) (int, error) {
	if s.sessions == nil {
		return 0, nil
	}
	from := s.engine.DateOf(now)
	to := previous.EndDate
	if schedule.Window.EndDate.After(to) {
		to = schedule.Window.EndDate
	}
	if to.Before(from) {
		return 0, nil
	}

	stored, err := s.sessions.ListSessions(ctx, previous.ID, from, to)
	if err != nil {
		return 0, mapRepoError(err)
	}

	keep := make(map[int64]struct{})
	for _, occ := range s.engine.OccurrencesInRange(schedule.Slots, schedule.Window, from, to) {
		keep[occ.Start.Unix()] = struct{}{}
	}

	stale := make([]string, 0)
	for _, record := range stored {
		start := s.engine.At(record.SessionDate, record.StartTime)
		if !start.After(now) {
			continue
		}
		if _, ok := keep[start.Unix()]; !ok {
			stale = append(stale, record.ID)
		}
	}

	deleted, err := s.sessions.DeleteSessions(ctx, previous.ID, stale)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return deleted, nil
}

func (s *ScheduleService) parse(input ScheduleInput) (CourseSchedule, *ValidationError) {
	vErr := &ValidationError{}
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			vErr.add("schedule", err.Error())
			return CourseSchedule{}, vErr
		}
		for _, fe := range fieldErrs {
			vErr.add(fieldPath(fe.Namespace()), validationMessage(fe))
		}
		return CourseSchedule{}, vErr
	}

	var schedule CourseSchedule
	var err error
	if schedule.Window.StartDate, err = recurrence.ParseDate(input.StartDate); err != nil {
		vErr.add("start_date", "must be a date formatted YYYY-MM-DD")
	}
	if schedule.Window.EndDate, err = recurrence.ParseDate(input.EndDate); err != nil {
		vErr.add("end_date", "must be a date formatted YYYY-MM-DD")
	}
	if !vErr.HasErrors() {
		if err := schedule.Window.Validate(); err != nil {
			vErr.add("end_date", "must not be before start_date")
		}
	}

	seen := make(map[string]int, len(input.Slots))
	schedule.Slots = make([]recurrence.WeeklySlot, 0, len(input.Slots))
	for i, in := range input.Slots {
		prefix := fmt.Sprintf("slots[%d].", i)
		var slot recurrence.WeeklySlot
		var slotErr bool
		if slot.Day, err = recurrence.ParseWeekday(in.Day); err != nil {
			vErr.add(prefix+"day", "must be a weekday name or number 0-6")
			slotErr = true
		}
		if slot.Start, err = recurrence.ParseTimeOfDay(in.StartTime); err != nil {
			vErr.add(prefix+"start_time", "must be formatted HH:MM or HH:MM:SS")
			slotErr = true
		}
		if slot.End, err = recurrence.ParseTimeOfDay(in.EndTime); err != nil {
			vErr.add(prefix+"end_time", "must be formatted HH:MM or HH:MM:SS")
			slotErr = true
		}
		if slotErr {
			continue
		}
		if err := slot.Validate(); err != nil {
			vErr.add(prefix+"end_time", "must be after start_time")
			continue
		}
		key := recurrence.WeekdayName(slot.Day) + " " + slot.Start.String()
		if first, dup := seen[key]; dup {
			vErr.add(prefix+"start_time", fmt.Sprintf("duplicates slots[%d]", first))
			continue
		}
		seen[key] = i
		schedule.Slots = append(schedule.Slots, slot)
	}

	return schedule, vErr
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must contain at least " + fe.Param() + " entries"
	case "max":
		return "must contain at most " + fe.Param() + " entries"
	default:
		return "is invalid"
	}
}
