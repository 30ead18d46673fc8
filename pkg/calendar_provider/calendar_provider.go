package calendar_provider

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

var ErrNotConnected = errors.New("calendar provider is not connected")

type PushResult struct {
	Pushed int `json:"pushed"`
	Failed int `json:"failed"`
}

// Service talks to the external calendars on behalf of a user, using the tokens kept in the
// user's sync settings.
type Service struct {
	calendarService *calendar.Service
	oauth           *OAuth
	apiOptions      []option.ClientOption
}

// NewService creates the provider service. apiOptions are appended to every Google API client.
func NewService(calendarService *calendar.Service, oauth *OAuth, apiOptions ...option.ClientOption) *Service {
	return &Service{
		calendarService: calendarService,
		oauth:           oauth,
		apiOptions:      apiOptions,
	}
}

func (s *Service) ListGoogleCalendars(ctx context.Context, userId string) ([]CalendarItem, error) {
	var items []CalendarItem
	err := s.withGoogleCalendar(ctx, userId, func(c *googleCalendar) error {
		var err error
		items, err = c.listCalendars(ctx)
		return err
	})
	return items, err
}

// PushPendingEvents sends every event that was never synced, or whose last push failed, to the
// user's Google calendar. A failing event is marked sync_failed and the push carries on.
func (s *Service) PushPendingEvents(ctx context.Context, userId string) (PushResult, error) {
	var result PushResult
	err := s.withGoogleCalendar(ctx, userId, func(c *googleCalendar) error {
		events, err := s.calendarService.GetEventsNeedingSync(ctx, userId)
		if err != nil {
			return err
		}
		for _, event := range events {
			googleEventId, err := c.pushEvent(ctx, event)
			if err != nil {
				log.Errorf("%v. Trying to continue", err)
				if _, err := s.calendarService.MarkSyncFailed(ctx, event.Id, userId); err != nil {
					return err
				}
				result.Failed++
				continue
			}
			if _, err := s.calendarService.MarkGoogleSynced(ctx, event.Id, userId, googleEventId); err != nil {
				return err
			}
			result.Pushed++
		}
		return nil
	})
	if err != nil {
		return PushResult{}, err
	}
	log.Debugf("pushed %d events to Google for user %s, %d failed", result.Pushed, userId, result.Failed)
	return result, nil
}

// withGoogleCalendar runs fn against the user's connected Google calendar. A token refreshed
// during fn is written back to the sync settings.
func (s *Service) withGoogleCalendar(ctx context.Context, userId string, fn func(c *googleCalendar) error) error {
	oauthConfig, ok := s.oauth.Config(calendar.ProviderGoogle)
	if !ok {
		return ErrNotConnected
	}
	settings, err := s.calendarService.GetSyncSettings(ctx, userId)
	if err != nil {
		return err
	}
	if settings == nil || !settings.Google.Enabled || settings.Google.AccessToken == "" {
		log.Debug("user is not connected to Google, authentication is required")
		return ErrNotConnected
	}

	stored := &oauth2.Token{
		AccessToken:  settings.Google.AccessToken,
		RefreshToken: settings.Google.RefreshToken,
	}
	if settings.Google.TokenExpiry != nil {
		stored.Expiry = *settings.Google.TokenExpiry
	}
	tokenSource := oauthConfig.TokenSource(ctx, stored)

	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource))}, s.apiOptions...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to create Google Calendar client: %v", err)
		log.Error(err)
		return err
	}

	calendarId := settings.Google.CalendarId
	if calendarId == "" {
		calendarId = defaultCalendarIds[calendar.ProviderGoogle]
	}
	fnErr := fn(&googleCalendar{service: service, calendarId: calendarId})

	s.storeRefreshedToken(ctx, userId, stored, tokenSource)
	return fnErr
}

func (s *Service) storeRefreshedToken(ctx context.Context, userId string, stored *oauth2.Token, tokenSource oauth2.TokenSource) {
	current, err := tokenSource.Token()
	if err != nil || current.AccessToken == stored.AccessToken {
		return
	}
	patch := calendar.ProviderPatch{
		AccessToken: &current.AccessToken,
		TokenExpiry: &current.Expiry,
	}
	if current.RefreshToken != "" {
		patch.RefreshToken = &current.RefreshToken
	}
	if _, err := s.calendarService.UpsertSyncSettings(ctx, userId, calendar.SyncSettingsPatch{Google: &patch}); err != nil {
		log.Warnf("failed to store refreshed Google token for user %s: %v", userId, err)
	}
}
