package calendar_provider

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/internal/rest"
)

type CalendarItemDTO struct {
	Id      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListGoogleCalendars godoc
// @Summary List the connected Google account's calendars
// @Tags Integrations
// @Produce json
// @Success 200 {array} CalendarItemDTO
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/integrations/google/calendars [get]
// @Security BearerAuth
func (h *Handler) ListGoogleCalendars(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	calendars, err := h.service.ListGoogleCalendars(r.Context(), userId)
	if errors.Is(err, ErrNotConnected) {
		rest.WriteError(w, http.StatusConflict, "Google Calendar is not connected")
		return
	}
	if err != nil {
		log.WithField("provider", "google").Errorf("failed to list calendars: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to list calendars")
		return
	}

	items := make([]CalendarItemDTO, 0, len(calendars))
	for _, c := range calendars {
		items = append(items, CalendarItemDTO{Id: c.Id, Summary: c.Summary, Primary: c.Primary})
	}
	rest.WriteJSON(w, http.StatusOK, items)
}

// PushGoogleEvents godoc
// @Summary Push unsynced events to Google Calendar
// @Tags Calendar
// @Produce json
// @Success 200 {object} PushResult
// @Failure 409 {object} rest.ErrorResponse
// @Router /api/calendar/sync/google/push [post]
// @Security BearerAuth
func (h *Handler) PushGoogleEvents(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	result, err := h.service.PushPendingEvents(r.Context(), userId)
	if errors.Is(err, ErrNotConnected) {
		rest.WriteError(w, http.StatusConflict, "Google sync is not enabled")
		return
	}
	if err != nil {
		log.WithField("provider", "google").Errorf("failed to push events: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to push events")
		return
	}
	rest.WriteJSON(w, http.StatusOK, result)
}
