package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mailroom/internal/scheduler"
)

// ScheduleHandler exposes the scheduled-job registry.
type ScheduleHandler struct {
	BaseHandler
	scheduler *scheduler.Scheduler
}

func NewScheduleHandler(logger *slog.Logger, s *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{BaseHandler: BaseHandler{Logger: logger}, scheduler: s}
}

// List returns all pending scheduled emails ordered by fire time.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.writeJSON(w, http.StatusOK, envelope{
		"success":          true,
		"scheduled_emails": h.scheduler.ListPending(),
	}); err != nil {
		h.logError(r, err)
	}
}

// Cancel removes a scheduled email before it fires.
func (h *ScheduleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.scheduler.Cancel(id); err != nil {
		if errors.Is(err, scheduler.ErrJobNotFound) {
			h.fail(w, r, http.StatusNotFound, "Scheduled email not found")
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}
	h.ok(w, r, "Email cancelled successfully")
}
