package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/internal/event_bus"
	"github.com/tradiedesk/tradiedesk/internal/utils"
)

// Service is the calendar façade over the event and sync settings stores. Every operation takes the
// caller's user id explicitly. Lookups that miss, including ones hitting another user's event,
// return nil (or false) without an error.
type Service struct {
	repo     Repository
	syncRepo SyncSettingsRepository
	clock    utils.Clock
	bus      *event_bus.EventBus
}

func NewService(repo Repository, syncRepo SyncSettingsRepository, clock utils.Clock, bus *event_bus.EventBus) *Service {
	return &Service{
		repo:     repo,
		syncRepo: syncRepo,
		clock:    clock,
		bus:      bus,
	}
}

func (s *Service) CreateEvent(ctx context.Context, userId string, event Event) (Event, error) {
	if strings.TrimSpace(event.Title) == "" {
		return Event{}, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if event.StartTime.IsZero() || event.EndTime.IsZero() {
		return Event{}, fmt.Errorf("%w: start and end time are required", ErrInvalidEvent)
	}
	if event.EventType == "" {
		event.EventType = EventTypeJob
	}
	if !event.EventType.IsValid() {
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, event.EventType)
	}
	if event.Status == "" {
		event.Status = StatusScheduled
	}
	if !event.Status.IsValid() {
		return Event{}, fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, event.Status)
	}
	if event.Color == "" {
		event.Color = DefaultColor
	}
	if event.SyncStatus == "" {
		event.SyncStatus = SyncStatusNotSynced
	}

	stored, err := s.repo.StoreEvent(ctx, userId, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store event: %w", err)
	}
	return stored, nil
}

func (s *Service) GetEvent(ctx context.Context, id int64, userId string) (*Event, error) {
	event, err := s.repo.GetEvent(ctx, userId, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func (s *Service) GetEventsByDateRange(ctx context.Context, userId string, start, end time.Time) ([]Event, error) {
	events, err := s.repo.GetEventsInRange(ctx, userId, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

func (s *Service) GetEventsByJob(ctx context.Context, jobId int64, userId string) ([]Event, error) {
	events, err := s.repo.GetEventsByJob(ctx, userId, jobId)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for job %d: %w", jobId, err)
	}
	return events, nil
}

// UpdateEvent applies a partial update. Status changes are published on the event bus.
func (s *Service) UpdateEvent(ctx context.Context, id int64, userId string, patch EventPatch) (*Event, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if patch.SyncStatus == nil && patch.changesRemoteCopy() {
		patch.SyncStatus = ptr(SyncStatusNotSynced)
	}

	var previous *Event
	if patch.Status != nil {
		var err error
		previous, err = s.repo.GetEvent(ctx, userId, id)
		if err != nil {
			return nil, fmt.Errorf("failed to get event: %w", err)
		}
		if previous == nil {
			return nil, nil
		}
	}

	updated, err := s.repo.UpdateEvent(ctx, userId, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if updated != nil && previous != nil && previous.Status != updated.Status {
		s.publish(ctx, event_bus.CalendarEventStatusChanged, event_bus.CalendarEventStatusChangedPayload{
			EventId:   updated.Id,
			UserId:    userId,
			OldStatus: string(previous.Status),
			NewStatus: string(updated.Status),
			ChangedAt: s.clock.Now(),
		})
	}
	return updated, nil
}

// DeleteEvent removes the event physically. It reports false when nothing was deleted.
func (s *Service) DeleteEvent(ctx context.Context, id int64, userId string) (bool, error) {
	deleted, err := s.repo.DeleteEvent(ctx, userId, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	if deleted {
		s.publish(ctx, event_bus.CalendarEventDeleted, event_bus.CalendarEventDeletedPayload{EventId: id, UserId: userId})
	}
	return deleted, nil
}

func (s *Service) GetUpcomingEvents(ctx context.Context, userId string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultUpcomingLimit
	}
	events, err := s.repo.GetUpcomingEvents(ctx, userId, s.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming events: %w", err)
	}
	return events, nil
}

// GetTodayEvents returns events overlapping the current day in the clock's location.
func (s *Service) GetTodayEvents(ctx context.Context, userId string) ([]Event, error) {
	start, end := utils.DayBounds(s.clock.Now())
	return s.GetEventsByDateRange(ctx, userId, start, end)
}

func (s *Service) CreateEventFromJob(ctx context.Context, userId string, jobId int64, job JobDetails) (Event, error) {
	end := job.StartTime.Add(DefaultJobDuration)
	if job.EndTime != nil && !job.EndTime.IsZero() {
		end = *job.EndTime
	}
	return s.CreateEvent(ctx, userId, Event{
		Title:        job.Title,
		Description:  job.Description,
		Location:     job.Location,
		CustomerName: job.CustomerName,
		StartTime:    job.StartTime,
		EndTime:      end,
		Color:        job.Color,
		JobId:        &jobId,
		EventType:    EventTypeJob,
		Status:       StatusScheduled,
	})
}

func (s *Service) CompleteEvent(ctx context.Context, id int64, userId string) (*Event, error) {
	return s.UpdateEvent(ctx, id, userId, EventPatch{Status: ptr(StatusCompleted)})
}

func (s *Service) CancelEvent(ctx context.Context, id int64, userId string) (*Event, error) {
	return s.UpdateEvent(ctx, id, userId, EventPatch{Status: ptr(StatusCancelled)})
}

func (s *Service) GetEventStats(ctx context.Context, userId string) (EventStats, error) {
	now := s.clock.Now()
	dayStart, dayEnd := utils.DayBounds(now)
	stats, err := s.repo.GetStats(ctx, userId, now, dayStart, dayEnd)
	if err != nil {
		return EventStats{}, fmt.Errorf("failed to get event stats: %w", err)
	}
	return stats, nil
}

func (s *Service) GetSyncSettings(ctx context.Context, userId string) (*SyncSettings, error) {
	settings, err := s.syncRepo.GetSyncSettings(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync settings: %w", err)
	}
	return settings, nil
}

func (s *Service) UpsertSyncSettings(ctx context.Context, userId string, patch SyncSettingsPatch) (SyncSettings, error) {
	settings, err := s.syncRepo.UpsertSyncSettings(ctx, userId, patch)
	if err != nil {
		return SyncSettings{}, fmt.Errorf("failed to store sync settings: %w", err)
	}
	return settings, nil
}

func (s *Service) EnableGoogleSync(ctx context.Context, userId, accessToken, refreshToken string, expiry time.Time, calendarId string) (SyncSettings, error) {
	return s.enableSync(ctx, ProviderGoogle, userId, accessToken, refreshToken, expiry, calendarId)
}

func (s *Service) EnableOutlookSync(ctx context.Context, userId, accessToken, refreshToken string, expiry time.Time, calendarId string) (SyncSettings, error) {
	return s.enableSync(ctx, ProviderOutlook, userId, accessToken, refreshToken, expiry, calendarId)
}

func (s *Service) DisableGoogleSync(ctx context.Context, userId string) (SyncSettings, error) {
	return s.disableSync(ctx, ProviderGoogle, userId)
}

func (s *Service) DisableOutlookSync(ctx context.Context, userId string) (SyncSettings, error) {
	return s.disableSync(ctx, ProviderOutlook, userId)
}

func (s *Service) UpdateGoogleSyncToken(ctx context.Context, userId, token string) error {
	return s.updateCursor(ctx, ProviderGoogle, userId, token)
}

func (s *Service) UpdateOutlookDeltaToken(ctx context.Context, userId, token string) error {
	return s.updateCursor(ctx, ProviderOutlook, userId, token)
}

func (s *Service) MarkGoogleSynced(ctx context.Context, eventId int64, userId, externalEventId string) (*Event, error) {
	return s.markSynced(ctx, eventId, userId, EventPatch{GoogleEventId: &externalEventId})
}

func (s *Service) MarkOutlookSynced(ctx context.Context, eventId int64, userId, externalEventId string) (*Event, error) {
	return s.markSynced(ctx, eventId, userId, EventPatch{OutlookEventId: &externalEventId})
}

// MarkSyncFailed flags the event for another push attempt.
func (s *Service) MarkSyncFailed(ctx context.Context, eventId int64, userId string) (*Event, error) {
	event, err := s.repo.UpdateEvent(ctx, userId, eventId, EventPatch{SyncStatus: ptr(SyncStatusSyncFailed)})
	if err != nil {
		return nil, fmt.Errorf("failed to mark event %d as failed: %w", eventId, err)
	}
	return event, nil
}

// GetEventsNeedingSync returns events never synced or whose last push failed.
func (s *Service) GetEventsNeedingSync(ctx context.Context, userId string) ([]Event, error) {
	events, err := s.repo.GetEventsBySyncStatus(ctx, userId, SyncStatusNotSynced, SyncStatusSyncFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get events needing sync: %w", err)
	}
	return events, nil
}

func (s *Service) enableSync(ctx context.Context, provider Provider, userId, accessToken, refreshToken string, expiry time.Time, calendarId string) (SyncSettings, error) {
	patch := patchFor(provider, ProviderPatch{
		Enabled:      ptr(true),
		AccessToken:  &accessToken,
		RefreshToken: &refreshToken,
		TokenExpiry:  &expiry,
		CalendarId:   &calendarId,
		LastSyncAt:   ptr(s.clock.Now()),
	})
	settings, err := s.syncRepo.UpsertSyncSettings(ctx, userId, patch)
	if err != nil {
		return SyncSettings{}, fmt.Errorf("failed to enable %s sync: %w", provider, err)
	}
	return settings, nil
}

// disableSync clears the provider's credentials and cursor. Calendar id and last sync time are kept.
func (s *Service) disableSync(ctx context.Context, provider Provider, userId string) (SyncSettings, error) {
	patch := patchFor(provider, ProviderPatch{
		Enabled:      ptr(false),
		AccessToken:  ptr(""),
		RefreshToken: ptr(""),
		TokenExpiry:  &time.Time{},
		SyncCursor:   ptr(""),
	})
	settings, err := s.syncRepo.UpsertSyncSettings(ctx, userId, patch)
	if err != nil {
		return SyncSettings{}, fmt.Errorf("failed to disable %s sync: %w", provider, err)
	}
	return settings, nil
}

func (s *Service) updateCursor(ctx context.Context, provider Provider, userId, cursor string) error {
	patch := patchFor(provider, ProviderPatch{
		SyncCursor: &cursor,
		LastSyncAt: ptr(s.clock.Now()),
	})
	if _, err := s.syncRepo.UpsertSyncSettings(ctx, userId, patch); err != nil {
		return fmt.Errorf("failed to store %s sync cursor: %w", provider, err)
	}
	return nil
}

func (s *Service) markSynced(ctx context.Context, eventId int64, userId string, patch EventPatch) (*Event, error) {
	patch.SyncStatus = ptr(SyncStatusSynced)
	patch.LastSyncedAt = ptr(s.clock.Now())
	event, err := s.repo.UpdateEvent(ctx, userId, eventId, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to mark event %d as synced: %w", eventId, err)
	}
	return event, nil
}

func (s *Service) publish(ctx context.Context, eventType event_bus.EventType, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(event_bus.NewEvent(ctx, eventType, payload)); err != nil {
		log.WithField("subsystem", "calendar").Warnf("failed to publish %s: %v", eventType, err)
	}
}

func validatePatch(p EventPatch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalidEvent)
	}
	if p.EventType != nil && !p.EventType.IsValid() {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, *p.EventType)
	}
	if p.Status != nil && !p.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, *p.Status)
	}
	return nil
}
