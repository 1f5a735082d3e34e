package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/example/liveclass-scheduler/internal/application"
)

var errBadRequestBody = errors.New("invalid request body")

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (rs responder) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func (rs responder) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
		rs.loggerFor(r.Context()).WarnContext(r.Context(), "request failed", "status", status, "error", err)
	}
	rs.writeJSON(w, r, status, errorResponse{Message: message})
}

func (rs responder) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := rs.loggerFor(ctx).With("error_kind", application.ErrorKind(err))

	var jErr *application.NotJoinableError
	var vErr *application.ValidationError
	switch {
	case errors.Is(err, application.ErrUnauthorized):
		rs.writeJSON(w, r, http.StatusForbidden, errorResponse{Message: "You are not a member of this course"})
	case errors.Is(err, application.ErrNotFound):
		rs.writeJSON(w, r, http.StatusNotFound, errorResponse{Message: "Resource not found"})
	case errors.Is(err, application.ErrNoSession):
		rs.writeJSON(w, r, http.StatusNotFound, errorResponse{Message: "No upcoming session"})
	case errors.Is(err, application.ErrInvalidStreamToken), errors.Is(err, application.ErrStreamTokenExpired):
		rs.writeJSON(w, r, http.StatusUnauthorized, errorResponse{Message: "Invalid stream token"})
	case errors.As(err, &jErr):
		minutes := jErr.Decision.MinutesUntilStart
		rs.writeJSON(w, r, http.StatusConflict, errorResponse{
			Message:           jErr.Decision.Reason.Message(),
			Reason:            string(jErr.Decision.Reason),
			MinutesUntilStart: &minutes,
		})
	case errors.As(err, &vErr):
		rs.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			Message: "Validation failed",
			Errors:  vErr.FieldErrors,
		})
	default:
		logger.ErrorContext(ctx, "unexpected service error", "error", err)
		rs.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
	}
}

func (rs responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return rs.logger
}

type errorResponse struct {
	Success           bool              `json:"success"`
	Message           string            `json:"message"`
	Reason            string            `json:"reason,omitempty"`
	MinutesUntilStart *int              `json:"minutes_until_start,omitempty"`
	Errors            map[string]string `json:"errors,omitempty"`
}
