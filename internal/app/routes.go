package app

import (
	"github.com/gorilla/mux"
	"github.com/tradiedesk/tradiedesk/internal/metrics"
)

// RegisterRoutes registers all HTTP routes.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Calendar
	r.HandleFunc("/api/calendar/events", deps.CalendarHandler.GetEvents).Methods("GET")
	r.HandleFunc("/api/calendar/events", deps.CalendarHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/calendar/events/{id}", deps.CalendarHandler.GetEvent).Methods("GET")
	r.HandleFunc("/api/calendar/events/{id}", deps.CalendarHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/calendar/events/{id}", deps.CalendarHandler.DeleteEvent).Methods("DELETE")
	r.HandleFunc("/api/calendar/events/{id}/complete", deps.CalendarHandler.CompleteEvent).Methods("POST")
	r.HandleFunc("/api/calendar/events/{id}/cancel", deps.CalendarHandler.CancelEvent).Methods("POST")
	r.HandleFunc("/api/calendar/today", deps.CalendarHandler.GetTodayEvents).Methods("GET")
	r.HandleFunc("/api/calendar/upcoming", deps.CalendarHandler.GetUpcomingEvents).Methods("GET")
	r.HandleFunc("/api/calendar/stats", deps.CalendarHandler.GetStats).Methods("GET")
	r.HandleFunc("/api/calendar/jobs/{jobId}/events", deps.CalendarHandler.GetJobEvents).Methods("GET")
	r.HandleFunc("/api/calendar/jobs/{jobId}/events", deps.CalendarHandler.CreateJobEvent).Methods("POST")

	// Calendar sync
	r.HandleFunc("/api/calendar/sync-settings", deps.CalendarHandler.GetSyncSettings).Methods("GET")
	r.HandleFunc("/api/calendar/sync/google/disable", deps.CalendarHandler.DisableGoogleSync).Methods("POST")
	r.HandleFunc("/api/calendar/sync/outlook/disable", deps.CalendarHandler.DisableOutlookSync).Methods("POST")
	r.HandleFunc("/api/calendar/sync/google/push", deps.CalendarProviderHandler.PushGoogleEvents).Methods("POST")

	// Provider integrations
	r.HandleFunc("/api/integrations/{provider}/auth/login", deps.ProviderAuthHandler.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}/auth/callback", deps.ProviderAuthHandler.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/google/calendars", deps.CalendarProviderHandler.ListGoogleCalendars).Methods("GET")
}
