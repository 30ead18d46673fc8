package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradiedesk/tradiedesk/pkg/user"
)

func setupHandler(t *testing.T) (*Handler, serviceFixture) {
	f := setupService(t)
	return NewHandler(f.service, validator.New()), f
}

func request(method, target, userId string, body any, vars map[string]string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userId != "" {
		req = req.WithContext(user.WithId(req.Context(), userId))
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func idVars(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	h, _ := setupHandler(t)
	handlers := map[string]http.HandlerFunc{
		"GetEvents":          h.GetEvents,
		"GetTodayEvents":     h.GetTodayEvents,
		"GetUpcomingEvents":  h.GetUpcomingEvents,
		"GetEvent":           h.GetEvent,
		"CreateEvent":        h.CreateEvent,
		"UpdateEvent":        h.UpdateEvent,
		"DeleteEvent":        h.DeleteEvent,
		"CompleteEvent":      h.CompleteEvent,
		"CancelEvent":        h.CancelEvent,
		"GetSyncSettings":    h.GetSyncSettings,
		"DisableGoogleSync":  h.DisableGoogleSync,
		"DisableOutlookSync": h.DisableOutlookSync,
		"GetStats":           h.GetStats,
		"GetJobEvents":       h.GetJobEvents,
		"CreateJobEvent":     h.CreateJobEvent,
	}

	for name, handler := range handlers {
		t.Run("should return 401 from "+name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			handler(rr, request(http.MethodGet, "/api/calendar/events?startDate=2025-01-01&endDate=2025-01-02", "", nil,
				map[string]string{"id": "1", "jobId": "1"}))

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, rr.Body.String())
		})
	}
}

func TestHandler_GetEvents(t *testing.T) {
	t.Run("should return 400 when dates are missing", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		h.GetEvents(rr, request(http.MethodGet, "/api/calendar/events?startDate=2025-01-01", "u1", nil, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return 400 for malformed date", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		h.GetEvents(rr, request(http.MethodGet, "/api/calendar/events?startDate=yesterday&endDate=2025-01-02", "u1", nil, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return 400 when endDate is before startDate", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		h.GetEvents(rr, request(http.MethodGet, "/api/calendar/events?startDate=2025-03-05&endDate=2025-03-01", "u1", nil, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.JSONEq(t, `{"error":"endDate must not be before startDate"}`, rr.Body.String())
	})

	t.Run("should accept a single day range", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		h.GetEvents(rr, request(http.MethodGet, "/api/calendar/events?startDate=2025-03-05&endDate=2025-03-05", "u1", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("should return overlapping events", func(t *testing.T) {
		// given
		h, f := setupHandler(t)
		ctx := context.Background()
		spanning, _ := f.service.CreateEvent(ctx, "u1", Event{
			Title:     "Renovation",
			StartTime: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
			EndTime:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		})
		rr := httptest.NewRecorder()

		// when
		h.GetEvents(rr, request(http.MethodGet,
			"/api/calendar/events?startDate=2025-01-12T00:00:00Z&endDate=2025-01-13T00:00:00Z", "u1", nil, nil))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var events []EventDTO
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&events))
		require.Len(t, events, 1)
		assert.Equal(t, spanning.Id, events[0].Id)
	})

	t.Run("should render csv when asked for it", func(t *testing.T) {
		// given
		h, f := setupHandler(t)
		ctx := context.Background()
		_, err := f.service.CreateEvent(ctx, "u1", Event{Title: "Quote", StartTime: at(2, 9), EndTime: at(2, 10)})
		require.NoError(t, err)
		req := request(http.MethodGet, "/api/calendar/events?startDate=2025-03-01T00:00:00Z&endDate=2025-03-05T00:00:00Z", "u1", nil, nil)
		req.Header.Set("Accept", "text/csv")
		rr := httptest.NewRecorder()

		// when
		h.GetEvents(rr, req)

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, strings.Join(csvHeader, ","), lines[0])
		assert.Contains(t, lines[1], "Quote,job,scheduled")
	})
}

func TestHandler_CreateEvent(t *testing.T) {
	t.Run("should create event with defaults", func(t *testing.T) {
		// given
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()
		body := map[string]any{
			"title":     "Site visit",
			"startTime": "2025-03-01T09:00:00Z",
			"endTime":   "2025-03-01T10:00:00Z",
			"eventType": "appointment",
		}

		// when
		h.CreateEvent(rr, request(http.MethodPost, "/api/calendar/events", "u1", body, nil))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var event EventDTO
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&event))
		assert.NotZero(t, event.Id)
		assert.Equal(t, "u1", event.UserId)
		assert.Equal(t, EventTypeAppointment, event.EventType)
		assert.Equal(t, StatusScheduled, event.Status)
		assert.Equal(t, DefaultColor, event.Color)
		assert.Nil(t, event.Description)
	})

	t.Run("should return 400 when title is missing", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()
		body := map[string]any{"startTime": "2025-03-01T09:00:00Z", "endTime": "2025-03-01T10:00:00Z"}

		h.CreateEvent(rr, request(http.MethodPost, "/api/calendar/events", "u1", body, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return 400 for unknown event type", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()
		body := map[string]any{
			"title":     "BBQ",
			"startTime": "2025-03-01T09:00:00Z",
			"endTime":   "2025-03-01T10:00:00Z",
			"eventType": "party",
		}

		h.CreateEvent(rr, request(http.MethodPost, "/api/calendar/events", "u1", body, nil))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("should return generic 500 when store fails", func(t *testing.T) {
		h, f := setupHandler(t)
		f.repo.Fail = true
		rr := httptest.NewRecorder()
		body := map[string]any{"title": "x", "startTime": "2025-03-01T09:00:00Z", "endTime": "2025-03-01T10:00:00Z"}

		h.CreateEvent(rr, request(http.MethodPost, "/api/calendar/events", "u1", body, nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), errStubFailure.Error())
	})
}

func TestHandler_EventNotFound(t *testing.T) {
	// given
	h, f := setupHandler(t)
	foreign, err := f.service.CreateEvent(context.Background(), "owner", Event{Title: "x", StartTime: at(2, 9), EndTime: at(2, 10)})
	require.NoError(t, err)

	cases := map[string]http.HandlerFunc{
		"GetEvent":      h.GetEvent,
		"UpdateEvent":   h.UpdateEvent,
		"DeleteEvent":   h.DeleteEvent,
		"CompleteEvent": h.CompleteEvent,
		"CancelEvent":   h.CancelEvent,
	}
	for name, handler := range cases {
		t.Run("should return 404 from "+name+" for foreign event", func(t *testing.T) {
			rr := httptest.NewRecorder()

			handler(rr, request(http.MethodPost, "/", "intruder", map[string]any{"title": "hacked"}, idVars(foreign.Id)))

			assert.Equal(t, http.StatusNotFound, rr.Code)
			assert.JSONEq(t, `{"error":"Event not found"}`, rr.Body.String())
		})
	}
}

func TestHandler_InvalidId(t *testing.T) {
	h, _ := setupHandler(t)
	rr := httptest.NewRecorder()

	h.GetEvent(rr, request(http.MethodGet, "/", "u1", nil, map[string]string{"id": "abc"}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_DeleteEvent(t *testing.T) {
	// given
	h, f := setupHandler(t)
	event, _ := f.service.CreateEvent(context.Background(), "u1", Event{Title: "x", StartTime: at(2, 9), EndTime: at(2, 10)})

	// when
	first := httptest.NewRecorder()
	h.DeleteEvent(first, request(http.MethodDelete, "/", "u1", nil, idVars(event.Id)))
	second := httptest.NewRecorder()
	h.DeleteEvent(second, request(http.MethodDelete, "/", "u1", nil, idVars(event.Id)))

	// then
	assert.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"success":true}`, first.Body.String())
	assert.Equal(t, http.StatusNotFound, second.Code)
}

func TestHandler_UpdateAndComplete(t *testing.T) {
	// given
	h, f := setupHandler(t)
	event, _ := f.service.CreateEvent(context.Background(), "u1", Event{Title: "x", StartTime: at(2, 9), EndTime: at(2, 10)})

	// when
	updated := httptest.NewRecorder()
	h.UpdateEvent(updated, request(http.MethodPut, "/", "u1", map[string]any{"location": "Unit 4"}, idVars(event.Id)))
	completed := httptest.NewRecorder()
	h.CompleteEvent(completed, request(http.MethodPost, "/", "u1", nil, idVars(event.Id)))

	// then
	require.Equal(t, http.StatusOK, updated.Code)
	var updatedDTO EventDTO
	require.NoError(t, json.NewDecoder(updated.Body).Decode(&updatedDTO))
	require.NotNil(t, updatedDTO.Location)
	assert.Equal(t, "Unit 4", *updatedDTO.Location)

	require.Equal(t, http.StatusOK, completed.Code)
	var completedDTO EventDTO
	require.NoError(t, json.NewDecoder(completed.Body).Decode(&completedDTO))
	assert.Equal(t, StatusCompleted, completedDTO.Status)
}

func TestHandler_UpdateEventNulls(t *testing.T) {
	t.Run("should clear fields sent as null", func(t *testing.T) {
		// given
		h, f := setupHandler(t)
		event, _ := f.service.CreateEvent(context.Background(), "u1", Event{
			Title: "x", Description: "Bring ladder", Location: "Unit 4", JobId: ptr(int64(42)), StartTime: at(2, 9), EndTime: at(2, 10),
		})
		rr := httptest.NewRecorder()

		// when
		h.UpdateEvent(rr, request(http.MethodPut, "/", "u1", map[string]any{"jobId": nil, "description": nil}, idVars(event.Id)))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var dto EventDTO
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&dto))
		assert.Nil(t, dto.JobId)
		assert.Nil(t, dto.Description)
		require.NotNil(t, dto.Location)
		assert.Equal(t, "Unit 4", *dto.Location)
	})

	t.Run("should leave absent fields untouched", func(t *testing.T) {
		// given
		h, f := setupHandler(t)
		event, _ := f.service.CreateEvent(context.Background(), "u1", Event{Title: "x", JobId: ptr(int64(42)), StartTime: at(2, 9), EndTime: at(2, 10)})
		rr := httptest.NewRecorder()

		// when
		h.UpdateEvent(rr, request(http.MethodPut, "/", "u1", map[string]any{"title": "Quote"}, idVars(event.Id)))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		var dto EventDTO
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&dto))
		assert.Equal(t, "Quote", dto.Title)
		require.NotNil(t, dto.JobId)
		assert.Equal(t, int64(42), *dto.JobId)
	})
}

func TestHandler_GetUpcomingEvents(t *testing.T) {
	for _, limit := range []string{"abc", "0", "-3"} {
		t.Run("should return 400 for limit "+limit, func(t *testing.T) {
			h, _ := setupHandler(t)
			rr := httptest.NewRecorder()

			h.GetUpcomingEvents(rr, request(http.MethodGet, "/api/calendar/upcoming?limit="+limit, "u1", nil, nil))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	t.Run("should return empty array when nothing is scheduled", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		h.GetUpcomingEvents(rr, request(http.MethodGet, "/api/calendar/upcoming", "u1", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `[]`, rr.Body.String())
	})
}

func TestHandler_GetSyncSettings(t *testing.T) {
	t.Run("should return null when nothing is configured", func(t *testing.T) {
		h, _ := setupHandler(t)
		rr := httptest.NewRecorder()

		h.GetSyncSettings(rr, request(http.MethodGet, "/api/calendar/sync-settings", "u1", nil, nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `null`, rr.Body.String())
	})

	t.Run("should redact every token", func(t *testing.T) {
		// given
		h, f := setupHandler(t)
		ctx := context.Background()
		_, err := f.service.EnableGoogleSync(ctx, "u1", "raw-google-access", "raw-google-refresh", at(1, 13), "primary")
		require.NoError(t, err)
		require.NoError(t, f.service.UpdateGoogleSyncToken(ctx, "u1", "raw-google-cursor"))
		rr := httptest.NewRecorder()

		// when
		h.GetSyncSettings(rr, request(http.MethodGet, "/api/calendar/sync-settings", "u1", nil, nil))

		// then
		require.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.NotContains(t, body, "raw-google")
		var dto map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &dto))
		assert.Equal(t, "***", dto["googleAccessToken"])
		assert.Equal(t, "***", dto["googleRefreshToken"])
		assert.Equal(t, "***", dto["googleSyncToken"])
		assert.Nil(t, dto["outlookAccessToken"])
		assert.Nil(t, dto["outlookDeltaToken"])
		assert.Equal(t, "primary", dto["googleCalendarId"])
		assert.Equal(t, true, dto["googleEnabled"])
	})
}

func TestHandler_DisableSync(t *testing.T) {
	// given
	h, f := setupHandler(t)
	ctx := context.Background()
	_, _ = f.service.EnableGoogleSync(ctx, "u1", "g", "g", at(1, 13), "primary")
	_, _ = f.service.EnableOutlookSync(ctx, "u1", "o", "o", at(1, 13), "cal")
	rr := httptest.NewRecorder()

	// when
	h.DisableOutlookSync(rr, request(http.MethodPost, "/api/calendar/sync/outlook/disable", "u1", nil, nil))

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	settings, _ := f.service.GetSyncSettings(ctx, "u1")
	assert.False(t, settings.Outlook.Enabled)
	assert.True(t, settings.Google.Enabled)
}

func TestHandler_GetStats(t *testing.T) {
	// given
	h, f := setupHandler(t)
	ctx := context.Background()
	e, _ := f.service.CreateEvent(ctx, "u1", Event{Title: "x", StartTime: at(1, 9), EndTime: at(1, 10)})
	_, _ = f.service.CompleteEvent(ctx, e.Id, "u1")
	_, _ = f.service.CreateEvent(ctx, "u1", Event{Title: "y", StartTime: at(3, 9), EndTime: at(3, 10)})
	rr := httptest.NewRecorder()

	// when
	h.GetStats(rr, request(http.MethodGet, "/api/calendar/stats", "u1", nil, nil))

	// then
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total":2,"scheduled":1,"completed":1,"cancelled":0,"upcoming":1,"today":1}`, rr.Body.String())
}

func TestHandler_JobEvents(t *testing.T) {
	// given
	h, _ := setupHandler(t)
	created := httptest.NewRecorder()
	h.CreateJobEvent(created, request(http.MethodPost, "/", "u1",
		map[string]any{"title": "Hot water service", "startTime": "2025-03-04T09:00:00Z"},
		map[string]string{"jobId": "42"}))
	require.Equal(t, http.StatusOK, created.Code)
	rr := httptest.NewRecorder()

	// when
	h.GetJobEvents(rr, request(http.MethodGet, "/", "u1", nil, map[string]string{"jobId": "42"}))

	// then
	require.Equal(t, http.StatusOK, rr.Code)
	var events []EventDTO
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), *events[0].JobId)
	assert.Equal(t, time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC), events[0].EndTime.UTC())
}
