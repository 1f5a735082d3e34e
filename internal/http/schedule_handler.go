package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/example/liveclass-scheduler/internal/application"
	"github.com/example/liveclass-scheduler/internal/recurrence"
)

type scheduleService interface {
	GetSchedule(ctx context.Context, principal application.Principal, courseID string) (application.CourseSchedule, error)
	ReplaceSchedule(ctx context.Context, principal application.Principal, courseID string, input application.ScheduleInput) (application.CourseSchedule, error)
}

// ScheduleHandler serves course schedule reads and replacements.
type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	schedule, err := h.service.GetSchedule(r.Context(), principal, chi.URLParam(r, "courseID"))
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(w, r, http.StatusOK, scheduleResponse{Success: true, Schedule: toScheduleDTO(schedule)})
}

func (h *ScheduleHandler) Replace(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseID")
	principal, _ := PrincipalFromContext(r.Context())

	var req application.ScheduleInput
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.responder.writeError(w, r, http.StatusBadRequest, errBadRequestBody)
		return
	}

	schedule, err := h.service.ReplaceSchedule(r.Context(), principal, courseID, req)
	if err != nil {
		h.responder.handleServiceError(w, r, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Replace", "course_id", courseID).
		InfoContext(r.Context(), "schedule replaced", "slots", len(schedule.Slots))
	h.responder.writeJSON(w, r, http.StatusOK, scheduleResponse{Success: true, Schedule: toScheduleDTO(schedule)})
}

type slotDTO struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type scheduleDTO struct {
	CourseID  string    `json:"course_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Slots     []slotDTO `json:"slots"`
}

type scheduleResponse struct {
	Success  bool        `json:"success"`
	Schedule scheduleDTO `json:"schedule"`
}

func toScheduleDTO(schedule application.CourseSchedule) scheduleDTO {
	slots := make([]slotDTO, len(schedule.Slots))
	for i, slot := range schedule.Slots {
		slots[i] = slotDTO{
			Day:       recurrence.WeekdayName(slot.Day),
			StartTime: slot.Start.String(),
			EndTime:   slot.End.String(),
		}
	}
	return scheduleDTO{
		CourseID:  schedule.CourseID,
		StartDate: schedule.Window.StartDate.String(),
		EndDate:   schedule.Window.EndDate.String(),
		Slots:     slots,
	}
}

