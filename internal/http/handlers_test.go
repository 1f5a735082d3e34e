package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/liveclass-scheduler/internal/application"
	"github.com/example/liveclass-scheduler/internal/recurrence"
	"github.com/example/liveclass-scheduler/internal/scheduler"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubVerifier struct{}

func (stubVerifier) Verify(_ context.Context, token string) (application.Principal, error) {
	user, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return application.Principal{}, errors.New("bad token")
	}
	return application.Principal{UserID: user}, nil
}

type stubSessions struct {
	view       application.SessionView
	join       application.JoinResult
	upcoming   []application.SessionView
	leave      application.LeaveResult
	attendance []application.AttendanceEntry
	grant      application.StreamGrant
	err        error

	gotPrincipal application.Principal
	gotID        string
	gotToken     string
}

func (s *stubSessions) NextSession(_ context.Context, principal application.Principal, courseID string) (application.SessionView, error) {
	s.gotPrincipal, s.gotID = principal, courseID
	return s.view, s.err
}

func (s *stubSessions) JoinSession(_ context.Context, principal application.Principal, sessionID string) (application.JoinResult, error) {
	s.gotPrincipal, s.gotID = principal, sessionID
	return s.join, s.err
}

func (s *stubSessions) UpcomingSessions(_ context.Context, principal application.Principal) ([]application.SessionView, error) {
	s.gotPrincipal = principal
	return s.upcoming, s.err
}

func (s *stubSessions) LeaveSession(_ context.Context, principal application.Principal, sessionID string) (application.LeaveResult, error) {
	s.gotPrincipal, s.gotID = principal, sessionID
	return s.leave, s.err
}

func (s *stubSessions) SessionAttendance(_ context.Context, principal application.Principal, sessionID string) ([]application.AttendanceEntry, error) {
	s.gotPrincipal, s.gotID = principal, sessionID
	return s.attendance, s.err
}

func (s *stubSessions) VerifyStreamToken(_ context.Context, token string) (application.StreamGrant, error) {
	s.gotToken = token
	return s.grant, s.err
}

type stubSchedules struct {
	schedule application.CourseSchedule
	err      error
	gotInput application.ScheduleInput
}

func (s *stubSchedules) GetSchedule(context.Context, application.Principal, string) (application.CourseSchedule, error) {
	return s.schedule, s.err
}

func (s *stubSchedules) ReplaceSchedule(_ context.Context, _ application.Principal, _ string, input application.ScheduleInput) (application.CourseSchedule, error) {
	s.gotInput = input
	return s.schedule, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(sessions *stubSessions, schedules *stubSchedules, health Pinger) http.Handler {
	return NewRouter(RouterConfig{
		Sessions:  NewLiveSessionHandler(sessions, discardLogger),
		Schedules: NewScheduleHandler(schedules, discardLogger),
		Verifier:  stubVerifier{},
		Health:    health,
		Logger:    discardLogger,
	})
}

func serve(t *testing.T, handler http.Handler, method, path, user, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("Authorization", "Bearer token-"+user)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, payload
}

func cairoView() application.SessionView {
	cairo := time.FixedZone("EET", 2*60*60)
	return application.SessionView{
		ID:                "session-1",
		CourseID:          "course-1",
		Date:              recurrence.MustDate("2024-01-09"),
		Start:             time.Date(2024, time.January, 9, 14, 0, 0, 0, cairo),
		End:               time.Date(2024, time.January, 9, 18, 0, 0, 0, cairo),
		Status:            "scheduled",
		CanJoin:           true,
		MinutesUntilStart: 15,
		Reason:            scheduler.ReasonJoinable,
	}
}

func TestLiveSessionHandler_NextSession(t *testing.T) {
	t.Parallel()

	sessions := &stubSessions{view: cairoView()}
	rec, payload := serve(t, newTestRouter(sessions, &stubSchedules{}, nil), http.MethodGet, "/courses/course-1/next-session", "student-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
	}
	if sessions.gotPrincipal.UserID != "student-1" || sessions.gotID != "course-1" {
		t.Fatalf("service received %+v %q", sessions.gotPrincipal, sessions.gotID)
	}
	session, ok := payload["session"].(map[string]any)
	if !ok || payload["success"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}
	want := map[string]any{
		"id":                  "session-1",
		"date":                "2024-01-09",
		"start_time":          "14:00:00",
		"end_time":            "18:00:00",
		"starts_at":           "2024-01-09T14:00:00+02:00",
		"status":              "scheduled",
		"can_join":            true,
		"is_teacher":          false,
		"minutes_until_start": float64(15),
		"reason":              "joinable",
		"is_upcoming":         false,
	}
	for key, value := range want {
		if session[key] != value {
			t.Fatalf("session[%s] = %v, want %v", key, session[key], value)
		}
	}
}

func TestLiveSessionHandler_MapsServiceErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		check  func(map[string]any) error
	}{
		{name: "unauthorized", err: application.ErrUnauthorized, status: http.StatusForbidden},
		{name: "not found", err: application.ErrNotFound, status: http.StatusNotFound},
		{name: "no session", err: fmt.Errorf("wrapped: %w", application.ErrNoSession), status: http.StatusNotFound},
		{
			name:   "not joinable",
			err:    &application.NotJoinableError{Decision: scheduler.Decision{Reason: scheduler.ReasonTooEarly, MinutesUntilStart: 16}},
			status: http.StatusConflict,
			check: func(payload map[string]any) error {
				if payload["reason"] != "too_early" || payload["minutes_until_start"] != float64(16) {
					return fmt.Errorf("unexpected conflict payload %v", payload)
				}
				return nil
			},
		},
		{name: "unexpected", err: errors.New("disk full"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			router := newTestRouter(&stubSessions{err: tc.err}, &stubSchedules{}, nil)
			rec, payload := serve(t, router, http.MethodPost, "/sessions/session-1/join", "student-1", "")
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %v", tc.status, rec.Code, payload)
			}
			if payload["success"] != false {
				t.Fatalf("expected success=false, got %v", payload)
			}
			if tc.check != nil {
				if err := tc.check(payload); err != nil {
					t.Fatal(err)
				}
			}
		})
	}
}

func TestLiveSessionHandler_Join(t *testing.T) {
	t.Parallel()

	expires := time.Date(2024, time.January, 9, 12, 45, 0, 0, time.UTC)
	sessions := &stubSessions{join: application.JoinResult{
		Session: cairoView(),
		Stream: application.StreamCredentials{
			Channel:   "session_session-1",
			Token:     "signed",
			UID:       "student-1",
			Role:      application.StreamRoleAudience,
			ExpiresAt: expires,
		},
	}}
	rec, payload := serve(t, newTestRouter(sessions, &stubSchedules{}, nil), http.MethodPost, "/sessions/session-1/join", "student-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
	}
	if sessions.gotID != "session-1" {
		t.Fatalf("service received session id %q", sessions.gotID)
	}
	stream, ok := payload["stream_data"].(map[string]any)
	if !ok {
		t.Fatalf("missing stream_data in %v", payload)
	}
	if stream["channel"] != "session_session-1" || stream["role"] != "audience" || stream["expires_at"] != "2024-01-09T12:45:00Z" {
		t.Fatalf("unexpected stream data %v", stream)
	}
}

func TestLiveSessionHandler_Upcoming(t *testing.T) {
	t.Parallel()

	sessions := &stubSessions{upcoming: []application.SessionView{cairoView(), cairoView()}}
	rec, payload := serve(t, newTestRouter(sessions, &stubSchedules{}, nil), http.MethodGet, "/sessions/upcoming", "student-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	list, ok := payload["sessions"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("unexpected sessions %v", payload["sessions"])
	}
}

func TestLiveSessionHandler_Leave(t *testing.T) {
	t.Parallel()

	sessions := &stubSessions{leave: application.LeaveResult{SessionID: "session-1", IsTeacher: true, Closed: 3}}
	rec, payload := serve(t, newTestRouter(sessions, &stubSchedules{}, nil), http.MethodPost, "/sessions/session-1/leave", "teacher-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
	}
	if sessions.gotID != "session-1" || sessions.gotPrincipal.UserID != "teacher-1" {
		t.Fatalf("service received %+v %q", sessions.gotPrincipal, sessions.gotID)
	}
	if payload["closed"] != float64(3) || payload["is_teacher"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}

	rec, _ = serve(t, newTestRouter(&stubSessions{err: application.ErrNotFound}, &stubSchedules{}, nil), http.MethodPost, "/sessions/session-1/leave", "student-1", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a student who never joined, got %d", rec.Code)
	}
}

func TestLiveSessionHandler_Attendance(t *testing.T) {
	t.Parallel()

	joined := time.Date(2024, time.January, 9, 12, 0, 0, 0, time.UTC)
	sessions := &stubSessions{attendance: []application.AttendanceEntry{
		{StudentID: "student-1", JoinedAt: joined, LeftAt: joined.Add(time.Hour)},
		{StudentID: "student-2", JoinedAt: joined},
	}}
	rec, payload := serve(t, newTestRouter(sessions, &stubSchedules{}, nil), http.MethodGet, "/sessions/session-1/attendance", "teacher-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
	}
	list, ok := payload["attendance"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("unexpected attendance %v", payload["attendance"])
	}
	first, second := list[0].(map[string]any), list[1].(map[string]any)
	if first["left_at"] != "2024-01-09T13:00:00Z" || first["joined_at"] != "2024-01-09T12:00:00Z" {
		t.Fatalf("unexpected first entry %v", first)
	}
	if second["left_at"] != nil {
		t.Fatalf("expected open attendance to render null, got %v", second)
	}

	rec, _ = serve(t, newTestRouter(&stubSessions{err: application.ErrUnauthorized}, &stubSchedules{}, nil), http.MethodGet, "/sessions/session-1/attendance", "student-1", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestLiveSessionHandler_VerifyStream(t *testing.T) {
	t.Parallel()

	t.Run("accepts a valid token without a user jwt", func(t *testing.T) {
		t.Parallel()
		sessions := &stubSessions{grant: application.StreamGrant{
			Channel:   "session_session-1",
			UID:       "student-1",
			Role:      application.StreamRoleAudience,
			ExpiresAt: time.Date(2024, time.January, 9, 16, 0, 0, 0, time.UTC).Unix(),
		}}
		rec, payload := serve(t, newTestRouter(sessions, &stubSchedules{}, nil), http.MethodPost, "/stream/verify", "", `{"token":"signed"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
		}
		if sessions.gotToken != "signed" {
			t.Fatalf("service received token %q", sessions.gotToken)
		}
		if payload["channel"] != "session_session-1" || payload["expires_at"] != "2024-01-09T16:00:00Z" {
			t.Fatalf("unexpected payload %v", payload)
		}
	})

	t.Run("rejects bad tokens", func(t *testing.T) {
		t.Parallel()
		for _, err := range []error{application.ErrInvalidStreamToken, application.ErrStreamTokenExpired} {
			rec, _ := serve(t, newTestRouter(&stubSessions{err: err}, &stubSchedules{}, nil), http.MethodPost, "/stream/verify", "", `{"token":"forged"}`)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 for %v, got %d", err, rec.Code)
			}
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		t.Parallel()
		rec, _ := serve(t, newTestRouter(&stubSessions{}, &stubSchedules{}, nil), http.MethodPost, "/stream/verify", "", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestScheduleHandler(t *testing.T) {
	t.Parallel()

	schedule := application.CourseSchedule{
		CourseID: "course-1",
		Window:   recurrence.Window{StartDate: recurrence.MustDate("2024-02-01"), EndDate: recurrence.MustDate("2024-04-30")},
		Slots: []recurrence.WeeklySlot{
			{Day: time.Monday, Start: recurrence.MustTimeOfDay("09:00"), End: recurrence.MustTimeOfDay("10:30")},
		},
	}

	t.Run("replaces and echoes the schedule", func(t *testing.T) {
		t.Parallel()
		schedules := &stubSchedules{schedule: schedule}
		body := `{"start_date":"2024-02-01","end_date":"2024-04-30","slots":[{"day":"monday","start_time":"09:00","end_time":"10:30"}]}`

		rec, payload := serve(t, newTestRouter(&stubSessions{}, schedules, nil), http.MethodPut, "/courses/course-1/schedule", "teacher-1", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
		}
		if len(schedules.gotInput.Slots) != 1 || schedules.gotInput.Slots[0].StartTime != "09:00" {
			t.Fatalf("service received %+v", schedules.gotInput)
		}
		got := payload["schedule"].(map[string]any)
		slots := got["slots"].([]any)
		if got["start_date"] != "2024-02-01" || slots[0].(map[string]any)["day"] != "monday" {
			t.Fatalf("unexpected schedule payload %v", got)
		}
	})

	t.Run("rejects malformed bodies", func(t *testing.T) {
		t.Parallel()
		rec, _ := serve(t, newTestRouter(&stubSessions{}, &stubSchedules{}, nil), http.MethodPut, "/courses/course-1/schedule", "teacher-1", "{")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns field errors", func(t *testing.T) {
		t.Parallel()
		vErr := &application.ValidationError{FieldErrors: map[string]string{"slots[0].day": "must be a weekday name or number 0-6"}}
		rec, payload := serve(t, newTestRouter(&stubSessions{}, &stubSchedules{err: vErr}, nil), http.MethodPut, "/courses/course-1/schedule", "teacher-1", `{}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		fields := payload["errors"].(map[string]any)
		if fields["slots[0].day"] == nil {
			t.Fatalf("expected field error, got %v", payload)
		}
	})

	t.Run("serves the stored schedule", func(t *testing.T) {
		t.Parallel()
		rec, payload := serve(t, newTestRouter(&stubSessions{}, &stubSchedules{schedule: schedule}, nil), http.MethodGet, "/courses/course-1/schedule", "student-1", "")
		if rec.Code != http.StatusOK || payload["success"] != true {
			t.Fatalf("expected 200, got %d: %v", rec.Code, payload)
		}
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec, payload := serve(t, newTestRouter(&stubSessions{}, &stubSchedules{}, stubPinger{}), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("expected healthy response, got %d %v", rec.Code, payload)
	}

	rec, payload = serve(t, newTestRouter(&stubSessions{}, &stubSchedules{}, stubPinger{err: errors.New("closed")}), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %v", rec.Code, payload)
	}
}
