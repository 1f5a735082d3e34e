package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/example/liveclass-scheduler/internal/application"
)

type liveSessionService interface {
	NextSession(ctx context.Context, principal application.Principal, courseID string) (application.SessionView, error)
	JoinSession(ctx context.Context, principal application.Principal, sessionID string) (application.JoinResult, error)
	UpcomingSessions(ctx context.Context, principal application.Principal) ([]application.SessionView, error)
	LeaveSession(ctx context.Context, principal application.Principal, sessionID string) (application.LeaveResult, error)
	SessionAttendance(ctx context.Context, principal application.Principal, sessionID string) ([]application.AttendanceEntry, error)
	VerifyStreamToken(ctx context.Context, token string) (application.StreamGrant, error)
}

// LiveSessionHandler serves the session, attendance and stream endpoints.
type LiveSessionHandler struct {
	service   liveSessionService
	responder responder
	logger    *slog.Logger
}

func NewLiveSessionHandler(service liveSessionService, logger *slog.Logger) *LiveSessionHandler {
	return &LiveSessionHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *LiveSessionHandler) NextSession(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	principal, _ := PrincipalFromContext(r.Context())

	view, err := h.service.NextSession(r.Context(), principal, courseID)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "LiveSessionHandler", "NextSession", "course_id", courseID).
		DebugContext(r.Context(), "next session served", "session_id", view.ID, "reason", view.Reason)
	h.responder.writeJSON(w, r, http.StatusOK, nextSessionResponse{Success: true, Session: toSessionDTO(view)})
}

func (h *LiveSessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.JoinSession(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "LiveSessionHandler", "Join", "session_id", sessionID).
		InfoContext(r.Context(), "session joined", "role", result.Stream.Role)
	h.responder.writeJSON(w, r, http.StatusOK, joinResponse{
		Success: true,
		Session: toSessionDTO(result.Session),
		Stream: streamDTO{
			Channel:   result.Stream.Channel,
			Token:     result.Stream.Token,
			UID:       result.Stream.UID,
			Role:      result.Stream.Role,
			ExpiresAt: result.Stream.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *LiveSessionHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	views, err := h.service.UpcomingSessions(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}

	sessions := make([]sessionDTO, len(views))
	for i, view := range views {
		sessions[i] = toSessionDTO(view)
	}
	h.responder.writeJSON(w, r, http.StatusOK, upcomingResponse{Success: true, Sessions: sessions})
}

func (h *LiveSessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.LeaveSession(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(w, r, http.StatusOK, leaveResponse{
		Success:   true,
		SessionID: result.SessionID,
		IsTeacher: result.IsTeacher,
		Closed:    result.Closed,
	})
}

func (h *LiveSessionHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	principal, _ := PrincipalFromContext(r.Context())

	entries, err := h.service.SessionAttendance(r.Context(), principal, sessionID)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}

	attendance := make([]attendanceDTO, len(entries))
	for i, entry := range entries {
		attendance[i] = attendanceDTO{StudentID: entry.StudentID, JoinedAt: entry.JoinedAt.UTC().Format(time.RFC3339)}
		if !entry.LeftAt.IsZero() {
			leftAt := entry.LeftAt.UTC().Format(time.RFC3339)
			attendance[i].LeftAt = &leftAt
		}
	}
	h.responder.writeJSON(w, r, http.StatusOK, attendanceResponse{Success: true, Attendance: attendance})
}

// VerifyStream is called by the streaming provider, which holds a stream
// token rather than a user JWT.
func (h *LiveSessionHandler) VerifyStream(w http.ResponseWriter, r *http.Request) {
	var req verifyStreamRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Token == "" {
		h.responder.writeError(w, r, http.StatusBadRequest, errBadRequestBody)
		return
	}

	grant, err := h.service.VerifyStreamToken(r.Context(), req.Token)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(w, r, http.StatusOK, verifyStreamResponse{
		Success:   true,
		Channel:   grant.Channel,
		UID:       grant.UID,
		Role:      grant.Role,
		ExpiresAt: time.Unix(grant.ExpiresAt, 0).UTC().Format(time.RFC3339),
	})
}

type sessionDTO struct {
	ID                string `json:"id"`
	CourseID          string `json:"course_id"`
	CourseTitle       string `json:"course_title,omitempty"`
	Date              string `json:"date"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	StartsAt          string `json:"starts_at"`
	EndsAt            string `json:"ends_at"`
	Status            string `json:"status"`
	CanJoin           bool   `json:"can_join"`
	IsTeacher         bool   `json:"is_teacher"`
	MinutesUntilStart int    `json:"minutes_until_start"`
	Reason            string `json:"reason"`
	Message           string `json:"message"`
	IsUpcoming        bool   `json:"is_upcoming"`
}

type streamDTO struct {
	Channel   string `json:"channel"`
	Token     string `json:"token"`
	UID       string `json:"uid"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

type nextSessionResponse struct {
	Success bool       `json:"success"`
	Session sessionDTO `json:"session"`
}

type joinResponse struct {
	Success bool       `json:"success"`
	Session sessionDTO `json:"session"`
	Stream  streamDTO  `json:"stream_data"`
}

type leaveResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	IsTeacher bool   `json:"is_teacher"`
	Closed    int    `json:"closed"`
}

type attendanceDTO struct {
	StudentID string  `json:"student_id"`
	JoinedAt  string  `json:"joined_at"`
	LeftAt    *string `json:"left_at"`
}

type attendanceResponse struct {
	Success    bool            `json:"success"`
	Attendance []attendanceDTO `json:"attendance"`
}

type verifyStreamRequest struct {
	Token string `json:"token"`
}

type verifyStreamResponse struct {
	Success   bool   `json:"success"`
	Channel   string `json:"channel"`
	UID       string `json:"uid"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

type upcomingResponse struct {
	Success  bool         `json:"success"`
	Sessions []sessionDTO `json:"sessions"`
}

// toSessionDTO renders wall clock fields in the zone the occurrence was built in.
func toSessionDTO(view application.SessionView) sessionDTO {
	return sessionDTO{
		ID:                view.ID,
		CourseID:          view.CourseID,
		CourseTitle:       view.CourseTitle,
		Date:              view.Date.String(),
		StartTime:         view.Start.Format("15:04:05"),
		EndTime:           view.End.Format("15:04:05"),
		StartsAt:          view.Start.Format(time.RFC3339),
		EndsAt:            view.End.Format(time.RFC3339),
		Status:            view.Status,
		CanJoin:           view.CanJoin,
		IsTeacher:         view.IsTeacher,
		MinutesUntilStart: view.MinutesUntilStart,
		Reason:            string(view.Reason),
		Message:           view.Reason.Message(),
		IsUpcoming:        view.Upcoming,
	}
}
