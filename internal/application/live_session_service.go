package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/liveclass-scheduler/internal/persistence"
	"github.com/example/liveclass-scheduler/internal/recurrence"
	"github.com/example/liveclass-scheduler/internal/scheduler"
)

// CourseReader loads courses and their weekly slots.
type CourseReader interface {
	GetCourse(ctx context.Context, id string) (persistence.Course, error)
	ListSlots(ctx context.Context, courseID string) ([]persistence.CourseSlot, error)
}

// EnrollmentChecker answers whether a student belongs to a course.
type EnrollmentChecker interface {
	IsActivelyEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	ListActiveCourseIDs(ctx context.Context, studentID string) ([]string, error)
}

// SessionStore persists materialized session records.
type SessionStore interface {
	UpsertSession(ctx context.Context, session persistence.LiveSession) (persistence.LiveSession, error)
	GetSession(ctx context.Context, id string) (persistence.LiveSession, error)
}

// AttendanceStore records who joined a session and when they left.
type AttendanceStore interface {
	RecordAttendance(ctx context.Context, attendance persistence.Attendance) (persistence.Attendance, error)
	ListAttendance(ctx context.Context, sessionID string) ([]persistence.Attendance, error)
	CloseAttendance(ctx context.Context, sessionID, studentID string, leftAt time.Time) error
	CloseOpenAttendance(ctx context.Context, sessionID string, leftAt time.Time) (int, error)
}

// LiveSessionDeps wires a LiveSessionService.
type LiveSessionDeps struct {
	Courses         CourseReader
	Enrollments     EnrollmentChecker
	Sessions        SessionStore
	Attendance      AttendanceStore
	Tokens          *StreamTokens
	Resolver        *scheduler.Resolver
	IDGenerator     func() string
	Now             func() time.Time
	UpcomingHorizon int
	Logger          *slog.Logger
}

// LiveSessionService answers "what is the next session" and "may I join it".
type LiveSessionService struct {
	courses         CourseReader
	enrollments     EnrollmentChecker
	sessions        SessionStore
	attendance      AttendanceStore
	tokens          *StreamTokens
	resolver        *scheduler.Resolver
	engine          *recurrence.Engine
	idGenerator     func() string
	now             func() time.Time
	upcomingHorizon int
	logger          *slog.Logger
}

// NewLiveSessionService constructs a LiveSessionService.
func NewLiveSessionService(deps LiveSessionDeps) *LiveSessionService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = scheduler.NewResolver(nil)
	}
	horizon := deps.UpcomingHorizon
	if horizon <= 0 {
		horizon = 14
	}
	return &LiveSessionService{
		courses:         deps.Courses,
		enrollments:     deps.Enrollments,
		sessions:        deps.Sessions,
		attendance:      deps.Attendance,
		tokens:          deps.Tokens,
		resolver:        resolver,
		engine:          resolver.Engine(),
		idGenerator:     deps.IDGenerator,
		now:             now,
		upcomingHorizon: horizon,
		logger:          defaultLogger(deps.Logger),
	}
}

// NextSession resolves the live or next occurrence of courseID and the
// caller's join decision for it.
func (s *LiveSessionService) NextSession(ctx context.Context, principal Principal, courseID string) (SessionView, error) {
	if s == nil {
		return SessionView{}, fmt.Errorf("live session service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "LiveSessionService", "NextSession", "course_id", courseID, "user_id", principal.UserID)
	now := s.now()

	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		err = mapRepoError(err)
		logger.Warn("failed to load course", "error_kind", ErrorKind(err), "error", err)
		return SessionView{}, err
	}
	role, err := s.roleFor(ctx, course, principal.UserID)
	if err != nil {
		logger.Warn("caller rejected", "error_kind", ErrorKind(err), "error", err)
		return SessionView{}, err
	}
	if course.Kind != persistence.CourseKindLive || !course.Active {
		return SessionView{}, ErrNoSession
	}

	slots, err := s.loadSlots(ctx, course.ID)
	if err != nil {
		logger.Error("failed to load slots", "error", err)
		return SessionView{}, err
	}
	resolution, ok := s.resolver.ResolveNext(slots, courseWindow(course), now)
	if !ok {
		logger.Info("no session resolved", "now", now)
		return SessionView{}, ErrNoSession
	}

	occ := resolution.Occurrence
	record, err := s.persistOccurrence(ctx, course.ID, occ, now)
	if err != nil {
		logger.Error("failed to persist session", "error", err)
		return SessionView{}, err
	}

	decision := s.decide(record, occ, role, now)
	view := s.view(course, record, occ, role, decision, now)
	view.Upcoming = resolution.Upcoming

	logger.Debug("session time calculations",
		"session_id", record.ID,
		"now", now,
		"start", occ.Start,
		"end", occ.End,
		"status", view.Status,
		"minutes_until_start", decision.MinutesUntilStart,
		"can_join", decision.CanJoin,
		"reason", decision.Reason,
	)
	return view, nil
}

// JoinSession admits the caller into sessionID when the eligibility gate
// allows it, records attendance for students and issues stream credentials.
func (s *LiveSessionService) JoinSession(ctx context.Context, principal Principal, sessionID string) (JoinResult, error) {
	if s == nil {
		return JoinResult{}, fmt.Errorf("live session service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "LiveSessionService", "JoinSession", "session_id", sessionID, "user_id", principal.UserID)
	now := s.now()

	record, course, role, err := s.sessionForCaller(ctx, principal, sessionID)
	if err != nil {
		logger.Warn("join rejected", "error_kind", ErrorKind(err), "error", err)
		return JoinResult{}, err
	}

	if course.Kind != persistence.CourseKindLive || !course.Active {
		logger.Info("join refused, course has no live sessions", "kind", course.Kind, "active", course.Active)
		return JoinResult{}, ErrNoSession
	}
	slots, err := s.loadSlots(ctx, course.ID)
	if err != nil {
		logger.Error("failed to load slots", "error", err)
		return JoinResult{}, err
	}
	occ, ok := s.scheduledOccurrence(slots, course, record)
	if !ok {
		logger.Info("join refused, session no longer on the schedule",
			"session_date", record.SessionDate.String(), "start_time", record.StartTime.String())
		return JoinResult{}, ErrNoSession
	}

	decision := s.decide(record, occ, role, now)
	logger.Info("join evaluated",
		"role", role,
		"minutes_until_start", decision.MinutesUntilStart,
		"can_join", decision.CanJoin,
		"reason", decision.Reason,
	)
	if !decision.CanJoin {
		return JoinResult{}, &NotJoinableError{Decision: decision}
	}

	if record.Status != SessionStatusCancelled {
		if record, err = s.sessions.UpsertSession(ctx, sessionRecord(record.ID, course.ID, occ, s.engine, now)); err != nil {
			logger.Error("failed to refresh session status", "error", err)
			return JoinResult{}, mapRepoError(err)
		}
	}

	streamRole := StreamRoleHost
	if role == scheduler.RoleParticipant {
		streamRole = StreamRoleAudience
		if _, err := s.attendance.RecordAttendance(ctx, persistence.Attendance{
			ID:        s.newID(),
			SessionID: record.ID,
			StudentID: principal.UserID,
			JoinedAt:  now.UTC(),
		}); err != nil {
			logger.Error("failed to record attendance", "error", err)
			return JoinResult{}, mapRepoError(err)
		}
	}

	creds, err := s.tokens.Issue(StreamChannel(record.ID), principal.UserID, streamRole, now)
	if err != nil {
		logger.Error("failed to issue stream token", "error", err)
		return JoinResult{}, err
	}

	return JoinResult{
		Session: s.view(course, record, occ, role, decision, now),
		Stream:  creds,
	}, nil
}

// LeaveSession closes attendance without touching the derived session status.
// A teacher closes every open row, a student only their own; a student who
// never joined, or already left, gets ErrNotFound.
func (s *LiveSessionService) LeaveSession(ctx context.Context, principal Principal, sessionID string) (LeaveResult, error) {
	if s == nil {
		return LeaveResult{}, fmt.Errorf("live session service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "LiveSessionService", "LeaveSession", "session_id", sessionID, "user_id", principal.UserID)
	now := s.now()

	record, _, role, err := s.sessionForCaller(ctx, principal, sessionID)
	if err != nil {
		logger.Warn("leave rejected", "error_kind", ErrorKind(err), "error", err)
		return LeaveResult{}, err
	}

	result := LeaveResult{SessionID: record.ID, IsTeacher: role == scheduler.RoleTeacher}
	if result.IsTeacher {
		closed, err := s.attendance.CloseOpenAttendance(ctx, record.ID, now.UTC())
		if err != nil {
			logger.Error("failed to close attendance", "error", err)
			return LeaveResult{}, mapRepoError(err)
		}
		result.Closed = closed
	} else {
		if err := s.attendance.CloseAttendance(ctx, record.ID, principal.UserID, now.UTC()); err != nil {
			err = mapRepoError(err)
			logger.Warn("failed to close attendance", "error_kind", ErrorKind(err), "error", err)
			return LeaveResult{}, err
		}
		result.Closed = 1
	}

	logger.Info("attendance closed", "role", role, "closed", result.Closed)
	return result, nil
}

// SessionAttendance lists who joined sessionID. Only the course teacher may ask.
func (s *LiveSessionService) SessionAttendance(ctx context.Context, principal Principal, sessionID string) ([]AttendanceEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("live session service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "LiveSessionService", "SessionAttendance", "session_id", sessionID, "user_id", principal.UserID)

	record, _, role, err := s.sessionForCaller(ctx, principal, sessionID)
	if err != nil {
		logger.Warn("attendance rejected", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}
	if role != scheduler.RoleTeacher {
		logger.Warn("attendance rejected", "error_kind", ErrorKind(ErrUnauthorized))
		return nil, ErrUnauthorized
	}

	rows, err := s.attendance.ListAttendance(ctx, record.ID)
	if err != nil {
		logger.Error("failed to list attendance", "error", err)
		return nil, mapRepoError(err)
	}
	entries := make([]AttendanceEntry, len(rows))
	for i, row := range rows {
		entries[i] = AttendanceEntry{StudentID: row.StudentID, JoinedAt: row.JoinedAt, LeftAt: row.LeftAt}
	}
	return entries, nil
}

// VerifyStreamToken lets the streaming provider check a credential issued by
// JoinSession. Tokens for sessions that no longer exist are rejected.
func (s *LiveSessionService) VerifyStreamToken(ctx context.Context, token string) (StreamGrant, error) {
	if s == nil {
		return StreamGrant{}, fmt.Errorf("live session service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "LiveSessionService", "VerifyStreamToken")

	grant, err := s.tokens.Verify(token, s.now())
	if err != nil {
		logger.Info("stream token rejected", "error_kind", ErrorKind(err), "error", err)
		return StreamGrant{}, err
	}
	sessionID, ok := strings.CutPrefix(grant.Channel, streamChannelPrefix)
	if !ok {
		return StreamGrant{}, ErrInvalidStreamToken
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.Info("stream token rejected, session is gone", "channel", grant.Channel)
			return StreamGrant{}, ErrInvalidStreamToken
		}
		logger.Error("failed to load session", "error", err)
		return StreamGrant{}, mapRepoError(err)
	}
	return grant, nil
}

// UpcomingSessions lists the not yet ended sessions of every course the
// caller is enrolled in, within the configured horizon, ordered by start.
func (s *LiveSessionService) UpcomingSessions(ctx context.Context, principal Principal) ([]SessionView, error) {
	if s == nil {
		return nil, fmt.Errorf("live session service is nil")
	}
	logger := serviceLogger(ctx, s.logger, "LiveSessionService", "UpcomingSessions", "user_id", principal.UserID)
	now := s.now()
	today := s.engine.DateOf(now)
	until := today.AddDays(s.upcomingHorizon)

	courseIDs, err := s.enrollments.ListActiveCourseIDs(ctx, principal.UserID)
	if err != nil {
		logger.Error("failed to list enrollments", "error", err)
		return nil, mapRepoError(err)
	}

	views := make([]SessionView, 0)
	for _, courseID := range courseIDs {
		course, err := s.courses.GetCourse(ctx, courseID)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			logger.Error("failed to load course", "course_id", courseID, "error", err)
			return nil, mapRepoError(err)
		}
		if course.Kind != persistence.CourseKindLive || !course.Active {
			continue
		}
		slots, err := s.loadSlots(ctx, course.ID)
		if err != nil {
			logger.Error("failed to load slots", "course_id", courseID, "error", err)
			return nil, err
		}

		for _, occ := range s.engine.OccurrencesInRange(slots, courseWindow(course), today, until) {
			if now.After(occ.End) {
				continue
			}
			record, err := s.persistOccurrence(ctx, course.ID, occ, now)
			if err != nil {
				logger.Error("failed to persist session", "course_id", courseID, "error", err)
				return nil, err
			}
			if record.Status == SessionStatusCancelled {
				continue
			}
			decision := scheduler.Decide(occ, scheduler.RoleParticipant, now)
			views = append(views, s.view(course, record, occ, scheduler.RoleParticipant, decision, now))
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Start.Before(views[j].Start)
	})
	logger.Debug("upcoming sessions listed", "count", len(views), "until", until.String())
	return views, nil
}

const streamChannelPrefix = "session_"

// StreamChannel names the streaming channel of a session.
func StreamChannel(sessionID string) string {
	return streamChannelPrefix + sessionID
}

// sessionForCaller loads a session with its course and the caller's role.
func (s *LiveSessionService) sessionForCaller(ctx context.Context, principal Principal, sessionID string) (persistence.LiveSession, persistence.Course, scheduler.Role, error) {
	record, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return persistence.LiveSession{}, persistence.Course{}, "", mapRepoError(err)
	}
	course, err := s.courses.GetCourse(ctx, record.CourseID)
	if err != nil {
		return persistence.LiveSession{}, persistence.Course{}, "", mapRepoError(err)
	}
	role, err := s.roleFor(ctx, course, principal.UserID)
	if err != nil {
		return persistence.LiveSession{}, persistence.Course{}, "", err
	}
	return record, course, role, nil
}

func (s *LiveSessionService) roleFor(ctx context.Context, course persistence.Course, userID string) (scheduler.Role, error) {
	if userID == "" {
		return "", ErrUnauthorized
	}
	if course.TeacherID == userID {
		return scheduler.RoleTeacher, nil
	}
	enrolled, err := s.enrollments.IsActivelyEnrolled(ctx, course.ID, userID)
	if err != nil {
		return "", mapRepoError(err)
	}
	if !enrolled {
		return "", ErrUnauthorized
	}
	return scheduler.RoleParticipant, nil
}

func (s *LiveSessionService) loadSlots(ctx context.Context, courseID string) ([]recurrence.WeeklySlot, error) {
	rows, err := s.courses.ListSlots(ctx, courseID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return toWeeklySlots(rows), nil
}

// persistOccurrence upserts the record for occ with its derived status and
// returns the stored row. A cancelled row keeps its status.
func (s *LiveSessionService) persistOccurrence(ctx context.Context, courseID string, occ recurrence.Occurrence, now time.Time) (persistence.LiveSession, error) {
	record, err := s.sessions.UpsertSession(ctx, sessionRecord(s.newID(), courseID, occ, s.engine, now))
	if err != nil {
		return persistence.LiveSession{}, mapRepoError(err)
	}
	return record, nil
}

// scheduledOccurrence finds the occurrence the course's current schedule
// produces for record. Records left behind by a schedule change match nothing.
func (s *LiveSessionService) scheduledOccurrence(slots []recurrence.WeeklySlot, course persistence.Course, record persistence.LiveSession) (recurrence.Occurrence, bool) {
	start := s.engine.At(record.SessionDate, record.StartTime)
	for _, occ := range s.engine.OccurrencesInRange(slots, courseWindow(course), record.SessionDate, record.SessionDate) {
		if occ.Start.Equal(start) {
			return occ, true
		}
	}
	return recurrence.Occurrence{}, false
}

func (s *LiveSessionService) decide(record persistence.LiveSession, occ recurrence.Occurrence, role scheduler.Role, now time.Time) scheduler.Decision {
	if record.Status == SessionStatusCancelled {
		return scheduler.Decision{
			MinutesUntilStart: scheduler.MinutesUntil(occ.Start, now),
			Reason:            scheduler.ReasonNotScheduled,
		}
	}
	return scheduler.Decide(occ, role, now)
}

func (s *LiveSessionService) view(course persistence.Course, record persistence.LiveSession, occ recurrence.Occurrence, role scheduler.Role, decision scheduler.Decision, now time.Time) SessionView {
	status := string(occ.Status(now))
	if record.Status == SessionStatusCancelled {
		status = SessionStatusCancelled
	}
	return SessionView{
		ID:                record.ID,
		CourseID:          course.ID,
		CourseTitle:       course.Title,
		Date:              occ.Date,
		Start:             occ.Start,
		End:               occ.End,
		Status:            status,
		CanJoin:           decision.CanJoin,
		IsTeacher:         role == scheduler.RoleTeacher,
		MinutesUntilStart: decision.MinutesUntilStart,
		Reason:            decision.Reason,
	}
}

func (s *LiveSessionService) newID() string {
	if s.idGenerator == nil {
		return ""
	}
	return s.idGenerator()
}

func courseWindow(course persistence.Course) recurrence.Window {
	return recurrence.Window{StartDate: course.StartDate, EndDate: course.EndDate}
}

func toWeeklySlots(rows []persistence.CourseSlot) []recurrence.WeeklySlot {
	slots := make([]recurrence.WeeklySlot, len(rows))
	for i, row := range rows {
		slots[i] = recurrence.WeeklySlot{Day: row.Day, Start: row.StartTime, End: row.EndTime}
	}
	return slots
}

func sessionRecord(id, courseID string, occ recurrence.Occurrence, engine *recurrence.Engine, now time.Time) persistence.LiveSession {
	loc := engine.Location()
	return persistence.LiveSession{
		ID:          id,
		CourseID:    courseID,
		SessionDate: occ.Date,
		StartTime:   timeOfDay(occ.Start.In(loc)),
		EndTime:     timeOfDay(occ.End.In(loc)),
		Status:      string(occ.Status(now)),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}

func timeOfDay(t time.Time) recurrence.TimeOfDay {
	return recurrence.TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("schedule", "stored schedule violates constraints")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("course", "related records are missing")
		return vErr
	}
	return err
}
