package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Sessions  *LiveSessionHandler
	Schedules *ScheduleHandler
	Verifier  TokenVerifier
	Health    Pinger
	Logger    *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	responder := newResponder(logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Sessions != nil {
		router.Post("/stream/verify", cfg.Sessions.VerifyStream)
	}

	router.Group(func(r chi.Router) {
		r.Use(RequireCaller(cfg.Verifier, logger))

		if cfg.Sessions != nil {
			r.Get("/courses/{courseID}/next-session", cfg.Sessions.NextSession)
			r.Post("/sessions/{sessionID}/join", cfg.Sessions.Join)
			r.Post("/sessions/{sessionID}/leave", cfg.Sessions.Leave)
			r.Get("/sessions/{sessionID}/attendance", cfg.Sessions.Attendance)
			r.Get("/sessions/upcoming", cfg.Sessions.Upcoming)
		}
		if cfg.Schedules != nil {
			r.Get("/courses/{courseID}/schedule", cfg.Schedules.Get)
			r.Put("/courses/{courseID}/schedule", cfg.Schedules.Replace)
		}
	})

	return router
}
