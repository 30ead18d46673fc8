package calendar_provider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/tradiedesk/tradiedesk/internal/config"
	"github.com/tradiedesk/tradiedesk/internal/utils"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
	"github.com/tradiedesk/tradiedesk/pkg/user"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const testHost = "http://localhost:8181"

type providerFixture struct {
	calendarService *calendar.Service
	repo            *calendar.RepositoryStub
	syncRepo        *calendar.SyncSettingsRepositoryStub
	clock           *utils.MockClock
	oauth           *OAuth
	google          *fakeGoogle
	service         *Service
}

func setupProvider(t *testing.T) providerFixture {
	repo := calendar.NewRepositoryStub()
	syncRepo := calendar.NewSyncSettingsRepositoryStub()
	clock := &utils.MockClock{FixedNow: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	calendarService := calendar.NewService(repo, syncRepo, clock, nil)

	google := newFakeGoogle(t)
	oauth := NewOAuth(config.Application{
		Host:    testHost,
		Google:  config.OAuth{ClientId: "google-client", ClientSecret: "google-secret"},
		Outlook: config.OAuth{ClientId: "outlook-client", ClientSecret: "outlook-secret", Tenant: "common"},
	})
	endpoint := oauth2.Endpoint{AuthURL: google.server.URL + "/auth", TokenURL: google.server.URL + "/token"}
	for _, c := range oauth.configs {
		c.Endpoint = endpoint
	}

	t.Cleanup(func() {
		repo.Cleanup()
		syncRepo.Cleanup()
	})
	return providerFixture{
		calendarService: calendarService,
		repo:            repo,
		syncRepo:        syncRepo,
		clock:           clock,
		oauth:           oauth,
		google:          google,
		service:         NewService(calendarService, oauth, option.WithEndpoint(google.server.URL+"/")),
	}
}

// fakeGoogle serves the token endpoint and the parts of the Calendar API used here.
type fakeGoogle struct {
	server *httptest.Server

	mu            sync.Mutex
	authHeaders   []string
	inserted      []gcal.Event
	updated       map[string]gcal.Event
	failTitles    map[string]bool
	nextId        int
	tokenRequests int
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	g := &fakeGoogle{updated: map[string]gcal.Event{}, failTitles: map[string]bool{}}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGoogle) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/token" {
		g.tokenRequests++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
		return
	}

	g.authHeaders = append(g.authHeaders, r.Header.Get("Authorization"))
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/users/me/calendarList":
		_ = json.NewEncoder(w).Encode(gcal.CalendarList{Items: []*gcal.CalendarListEntry{
			{Id: "primary", Summary: "Jobs", Primary: true},
			{Id: "team@group.calendar.google.com", Summary: "Team"},
		}})
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/calendars/"):
		var event gcal.Event
		_ = json.NewDecoder(r.Body).Decode(&event)
		if g.failTitles[event.Summary] {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid event"}}`))
			return
		}
		g.nextId++
		event.Id = "g-" + strconv.Itoa(g.nextId)
		g.inserted = append(g.inserted, event)
		_ = json.NewEncoder(w).Encode(event)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/calendars/"):
		var event gcal.Event
		_ = json.NewDecoder(r.Body).Decode(&event)
		parts := strings.Split(r.URL.Path, "/")
		event.Id = parts[len(parts)-1]
		g.updated[event.Id] = event
		_ = json.NewEncoder(w).Encode(event)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f providerFixture) connectGoogle(t *testing.T, userId string, expiry time.Time) {
	t.Helper()
	_, err := f.calendarService.EnableGoogleSync(t.Context(), userId, "stored-access", "stored-refresh", expiry, "primary")
	if err != nil {
		t.Fatalf("failed to connect Google: %v", err)
	}
}

func request(method, target, userId string, vars map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if userId != "" {
		req = req.WithContext(user.WithId(req.Context(), userId))
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}
