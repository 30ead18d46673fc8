package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/internal/rest"
	"github.com/tradiedesk/tradiedesk/pkg/user"
)

const redacted = "***"

type EventDTO struct {
	Id             int64      `json:"id"`
	UserId         string     `json:"userId"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	Location       *string    `json:"location"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        time.Time  `json:"endTime"`
	AllDay         bool       `json:"allDay"`
	EventType      EventType  `json:"eventType"`
	Status         Status     `json:"status"`
	Color          string     `json:"color"`
	CustomerName   *string    `json:"customerName"`
	JobId          *int64     `json:"jobId"`
	GoogleEventId  *string    `json:"googleEventId"`
	OutlookEventId *string    `json:"outlookEventId"`
	SyncStatus     SyncStatus `json:"syncStatus"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type CreateEventRequest struct {
	Title        string    `json:"title" validate:"required,max=255"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"startTime" validate:"required"`
	EndTime      time.Time `json:"endTime" validate:"required"`
	AllDay       bool      `json:"allDay"`
	EventType    EventType `json:"eventType" validate:"omitempty,oneof=job meeting appointment reminder block_time"`
	Status       Status    `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
	Color        string    `json:"color" validate:"omitempty,max=32"`
	CustomerName string    `json:"customerName"`
	JobId        *int64    `json:"jobId"`
}

type UpdateEventRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description  *string    `json:"description"`
	Location     *string    `json:"location"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	AllDay       *bool      `json:"allDay"`
	EventType    *EventType `json:"eventType" validate:"omitempty,oneof=job meeting appointment reminder block_time"`
	Status       *Status    `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
	Color        *string    `json:"color" validate:"omitempty,max=32"`
	CustomerName *string    `json:"customerName"`
	JobId        *int64     `json:"jobId"`
}

type JobEventRequest struct {
	Title        string     `json:"title" validate:"required,max=255"`
	Description  string     `json:"description"`
	Location     string     `json:"location"`
	CustomerName string     `json:"customerName"`
	StartTime    time.Time  `json:"startTime" validate:"required"`
	EndTime      *time.Time `json:"endTime"`
	Color        string     `json:"color" validate:"omitempty,max=32"`
}

type EventStatsDTO struct {
	Total     int `json:"total"`
	Scheduled int `json:"scheduled"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	Upcoming  int `json:"upcoming"`
	Today     int `json:"today"`
}

// SyncSettingsDTO is the client view of sync settings. Tokens and cursors never leave the server:
// a stored value is rendered as "***" and a missing one as null.
type SyncSettingsDTO struct {
	UserId             string     `json:"userId"`
	GoogleEnabled      bool       `json:"googleEnabled"`
	GoogleAccessToken  *string    `json:"googleAccessToken"`
	GoogleRefreshToken *string    `json:"googleRefreshToken"`
	GoogleTokenExpiry  *time.Time `json:"googleTokenExpiry"`
	GoogleCalendarId   *string    `json:"googleCalendarId"`
	GoogleLastSyncAt   *time.Time `json:"googleLastSyncAt"`
	GoogleSyncToken    *string    `json:"googleSyncToken"`

	OutlookEnabled      bool       `json:"outlookEnabled"`
	OutlookAccessToken  *string    `json:"outlookAccessToken"`
	OutlookRefreshToken *string    `json:"outlookRefreshToken"`
	OutlookTokenExpiry  *time.Time `json:"outlookTokenExpiry"`
	OutlookCalendarId   *string    `json:"outlookCalendarId"`
	OutlookLastSyncAt   *time.Time `json:"outlookLastSyncAt"`
	OutlookDeltaToken   *string    `json:"outlookDeltaToken"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service, validate *validator.Validate) *Handler {
	return &Handler{service: service, validate: validate}
}

// GetEvents godoc
// @Summary List events overlapping a date range
// @Tags Calendar
// @Produce json
// @Param startDate query string true "RFC3339 timestamp or YYYY-MM-DD"
// @Param endDate query string true "RFC3339 timestamp or YYYY-MM-DD"
// @Success 200 {array} EventDTO
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Router /api/calendar/events [get]
// @Security BearerAuth
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	startParam := r.URL.Query().Get("startDate")
	endParam := r.URL.Query().Get("endDate")
	if startParam == "" || endParam == "" {
		rest.WriteError(w, http.StatusBadRequest, "startDate and endDate are required")
		return
	}
	start, _, err := parseDate(startParam)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid startDate")
		return
	}
	end, dateOnly, err := parseDate(endParam)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid endDate")
		return
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Microsecond)
	}
	if end.Before(start) {
		rest.WriteError(w, http.StatusBadRequest, "endDate must not be before startDate")
		return
	}

	events, err := h.service.GetEventsByDateRange(r.Context(), userId, start, end)
	if err != nil {
		serverError(w, "Failed to fetch events", err)
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		csv, err := RenderEventsCsv(events, time.Local)
		if err != nil {
			serverError(w, "Failed to render events", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(csv)); err != nil {
			log.Errorf("failed to write csv response: %v", err)
		}
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventsToDTO(events))
}

func (h *Handler) GetTodayEvents(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	events, err := h.service.GetTodayEvents(r.Context(), userId)
	if err != nil {
		serverError(w, "Failed to fetch today's events", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventsToDTO(events))
}

func (h *Handler) GetUpcomingEvents(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			rest.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	events, err := h.service.GetUpcomingEvents(r.Context(), userId, limit)
	if err != nil {
		serverError(w, "Failed to fetch upcoming events", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventsToDTO(events))
}

// GetEvent godoc
// @Summary Get a single event
// @Tags Calendar
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {object} EventDTO
// @Failure 404 {object} rest.ErrorResponse
// @Router /api/calendar/events/{id} [get]
// @Security BearerAuth
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	event, err := h.service.GetEvent(r.Context(), id, userId)
	if err != nil {
		serverError(w, "Failed to fetch event", err)
		return
	}
	writeEventOrNotFound(w, event)
}

// CreateEvent godoc
// @Summary Create an event
// @Tags Calendar
// @Accept json
// @Produce json
// @Param event body CreateEventRequest true "Event"
// @Success 200 {object} EventDTO
// @Failure 400 {object} rest.ErrorResponse
// @Router /api/calendar/events [post]
// @Security BearerAuth
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	event, err := h.service.CreateEvent(r.Context(), userId, Event{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		AllDay:       req.AllDay,
		EventType:    req.EventType,
		Status:       req.Status,
		Color:        req.Color,
		CustomerName: req.CustomerName,
		JobId:        req.JobId,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid event")
			return
		}
		serverError(w, "Failed to create event", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(event))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var req UpdateEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := EventPatch{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		AllDay:       req.AllDay,
		EventType:    req.EventType,
		Status:       req.Status,
		Color:        req.Color,
		CustomerName: req.CustomerName,
		JobId:        req.JobId,
	}
	nulls := nullFields(body)
	for field, target := range map[string]**string{
		"description":  &patch.Description,
		"location":     &patch.Location,
		"customerName": &patch.CustomerName,
	} {
		if nulls[field] {
			*target = ptr("")
		}
	}
	patch.UnlinkJob = nulls["jobId"]

	event, err := h.service.UpdateEvent(r.Context(), id, userId, patch)
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid event")
			return
		}
		serverError(w, "Failed to update event", err)
		return
	}
	writeEventOrNotFound(w, event)
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	deleted, err := h.service.DeleteEvent(r.Context(), id, userId)
	if err != nil {
		serverError(w, "Failed to delete event", err)
		return
	}
	if !deleted {
		rest.WriteError(w, http.StatusNotFound, "Event not found")
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.SuccessResponse{Success: true})
}

func (h *Handler) CompleteEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CompleteEvent, "Failed to complete event")
}

func (h *Handler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CancelEvent, "Failed to cancel event")
}

// GetSyncSettings godoc
// @Summary Get calendar sync settings with secrets redacted
// @Tags Calendar
// @Produce json
// @Success 200 {object} SyncSettingsDTO
// @Router /api/calendar/sync-settings [get]
// @Security BearerAuth
func (h *Handler) GetSyncSettings(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	settings, err := h.service.GetSyncSettings(r.Context(), userId)
	if err != nil {
		serverError(w, "Failed to fetch sync settings", err)
		return
	}
	if settings == nil {
		rest.WriteJSON(w, http.StatusOK, nil)
		return
	}
	rest.WriteJSON(w, http.StatusOK, syncSettingsToDTO(*settings))
}

func (h *Handler) DisableGoogleSync(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	if _, err := h.service.DisableGoogleSync(r.Context(), userId); err != nil {
		serverError(w, "Failed to disable Google sync", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.SuccessResponse{Success: true})
}

func (h *Handler) DisableOutlookSync(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	if _, err := h.service.DisableOutlookSync(r.Context(), userId); err != nil {
		serverError(w, "Failed to disable Outlook sync", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.SuccessResponse{Success: true})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.service.GetEventStats(r.Context(), userId)
	if err != nil {
		serverError(w, "Failed to fetch stats", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, EventStatsDTO(stats))
}

func (h *Handler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	jobId, ok := pathId(w, r, "jobId")
	if !ok {
		return
	}
	events, err := h.service.GetEventsByJob(r.Context(), jobId, userId)
	if err != nil {
		serverError(w, "Failed to fetch job events", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventsToDTO(events))
}

func (h *Handler) CreateJobEvent(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	jobId, ok := pathId(w, r, "jobId")
	if !ok {
		return
	}
	var req JobEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	event, err := h.service.CreateEventFromJob(r.Context(), userId, jobId, JobDetails(req))
	if err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid event")
			return
		}
		serverError(w, "Failed to create job event", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(event))
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, id int64, userId string) (*Event, error),
	failure string,
) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathId(w, r, "id")
	if !ok {
		return
	}
	event, err := apply(r.Context(), id, userId)
	if err != nil {
		serverError(w, failure, err)
		return
	}
	writeEventOrNotFound(w, event)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		log.Debugf("request validation failed: %v", err)
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// nullFields returns the top-level keys of a JSON object that are explicitly null.
func nullFields(body []byte) map[string]bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	nulls := make(map[string]bool)
	for key, value := range raw {
		if string(bytes.TrimSpace(value)) == "null" {
			nulls[key] = true
		}
	}
	return nulls
}

// currentUser writes 401 and returns false when the request carries no authenticated caller.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userId, true
}

func pathId(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		rest.WriteError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// parseDate accepts an RFC3339 timestamp or a plain date. Plain dates are midnight in the server's
// location and are reported as such through dateOnly.
func parseDate(value string) (t time.Time, dateOnly bool, err error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func writeEventOrNotFound(w http.ResponseWriter, event *Event) {
	if event == nil {
		rest.WriteError(w, http.StatusNotFound, "Event not found")
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(*event))
}

func serverError(w http.ResponseWriter, message string, err error) {
	log.WithField("subsystem", "calendar").Errorf("%s: %v", message, err)
	rest.WriteError(w, http.StatusInternalServerError, message)
}

func eventToDTO(e Event) EventDTO {
	return EventDTO{
		Id:             e.Id,
		UserId:         e.UserId,
		Title:          e.Title,
		Description:    nullString(e.Description),
		Location:       nullString(e.Location),
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		AllDay:         e.AllDay,
		EventType:      e.EventType,
		Status:         e.Status,
		Color:          e.Color,
		CustomerName:   nullString(e.CustomerName),
		JobId:          e.JobId,
		GoogleEventId:  nullString(e.GoogleEventId),
		OutlookEventId: nullString(e.OutlookEventId),
		SyncStatus:     e.SyncStatus,
		LastSyncedAt:   e.LastSyncedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func eventsToDTO(events []Event) []EventDTO {
	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, eventToDTO(e))
	}
	return dtos
}

func syncSettingsToDTO(s SyncSettings) SyncSettingsDTO {
	return SyncSettingsDTO{
		UserId:             s.UserId,
		GoogleEnabled:      s.Google.Enabled,
		GoogleAccessToken:  redact(s.Google.AccessToken),
		GoogleRefreshToken: redact(s.Google.RefreshToken),
		GoogleTokenExpiry:  s.Google.TokenExpiry,
		GoogleCalendarId:   nullString(s.Google.CalendarId),
		GoogleLastSyncAt:   s.Google.LastSyncAt,
		GoogleSyncToken:    redact(s.Google.SyncCursor),

		OutlookEnabled:      s.Outlook.Enabled,
		OutlookAccessToken:  redact(s.Outlook.AccessToken),
		OutlookRefreshToken: redact(s.Outlook.RefreshToken),
		OutlookTokenExpiry:  s.Outlook.TokenExpiry,
		OutlookCalendarId:   nullString(s.Outlook.CalendarId),
		OutlookLastSyncAt:   s.Outlook.LastSyncAt,
		OutlookDeltaToken:   redact(s.Outlook.SyncCursor),

		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func redact(secret string) *string {
	if secret == "" {
		return nil
	}
	return ptr(redacted)
}
