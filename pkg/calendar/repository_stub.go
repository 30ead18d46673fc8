package calendar

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

var errStubFailure = errors.New("stub repository failure")

// RepositoryStub is an in-memory Repository with the same tenant scoping and ordering as RepositoryImpl.
type RepositoryStub struct {
	mu     sync.RWMutex
	events map[int64]Event
	nextId int64
	// Fail makes every call return an error.
	Fail bool
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		events: make(map[int64]Event),
		nextId: 1,
	}
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, userId string, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return Event{}, errStubFailure
	}

	now := time.Now()
	event.Id = r.nextId
	event.UserId = userId
	event.CreatedAt = now
	event.UpdatedAt = now
	r.events[event.Id] = event
	r.nextId++
	return event, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, userId string, id int64) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Fail {
		return nil, errStubFailure
	}

	event, ok := r.events[id]
	if !ok || event.UserId != userId {
		return nil, nil
	}
	return &event, nil
}

func (r *RepositoryStub) GetEventsInRange(ctx context.Context, userId string, start, end time.Time) ([]Event, error) {
	return r.filter(userId, func(e Event) bool {
		return within(e.StartTime, start, end) ||
			within(e.EndTime, start, end) ||
			(!e.StartTime.After(start) && !e.EndTime.Before(end))
	})
}

func (r *RepositoryStub) GetEventsByJob(ctx context.Context, userId string, jobId int64) ([]Event, error) {
	return r.filter(userId, func(e Event) bool {
		return e.JobId != nil && *e.JobId == jobId
	})
}

func (r *RepositoryStub) GetUpcomingEvents(ctx context.Context, userId string, from time.Time, limit int) ([]Event, error) {
	events, err := r.filter(userId, func(e Event) bool {
		return e.Status == StatusScheduled && !e.StartTime.Before(from)
	})
	if err != nil {
		return nil, err
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *RepositoryStub) GetEventsBySyncStatus(ctx context.Context, userId string, statuses ...SyncStatus) ([]Event, error) {
	return r.filter(userId, func(e Event) bool {
		return slices.Contains(statuses, e.SyncStatus)
	})
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, userId string, id int64, patch EventPatch) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return nil, errStubFailure
	}

	e, ok := r.events[id]
	if !ok || e.UserId != userId {
		return nil, nil
	}
	applyPatch(&e, patch)
	e.UpdatedAt = time.Now()
	r.events[id] = e
	return &e, nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, userId string, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail {
		return false, errStubFailure
	}

	e, ok := r.events[id]
	if !ok || e.UserId != userId {
		return false, nil
	}
	delete(r.events, id)
	return true, nil
}

func (r *RepositoryStub) GetStats(ctx context.Context, userId string, now, dayStart, dayEnd time.Time) (EventStats, error) {
	events, err := r.filter(userId, func(e Event) bool { return true })
	if err != nil {
		return EventStats{}, err
	}

	var stats EventStats
	for _, e := range events {
		stats.Total++
		switch e.Status {
		case StatusScheduled:
			stats.Scheduled++
			if !e.StartTime.Before(now) {
				stats.Upcoming++
			}
		case StatusCompleted:
			stats.Completed++
		case StatusCancelled:
			stats.Cancelled++
		}
		if within(e.StartTime, dayStart, dayEnd) {
			stats.Today++
		}
	}
	return stats, nil
}

func (r *RepositoryStub) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[int64]Event)
	r.nextId = 1
	r.Fail = false
}

func (r *RepositoryStub) filter(userId string, keep func(Event) bool) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Fail {
		return nil, errStubFailure
	}

	result := make([]Event, 0)
	for _, e := range r.events {
		if e.UserId == userId && keep(e) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].Id < result[j].Id
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func applyPatch(e *Event, p EventPatch) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.StartTime != nil {
		e.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		e.EndTime = *p.EndTime
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	if p.EventType != nil {
		e.EventType = *p.EventType
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.CustomerName != nil {
		e.CustomerName = *p.CustomerName
	}
	if p.UnlinkJob {
		e.JobId = nil
	} else if p.JobId != nil {
		e.JobId = ptr(*p.JobId)
	}
	if p.GoogleEventId != nil {
		e.GoogleEventId = *p.GoogleEventId
	}
	if p.OutlookEventId != nil {
		e.OutlookEventId = *p.OutlookEventId
	}
	if p.SyncStatus != nil {
		e.SyncStatus = *p.SyncStatus
	}
	if p.LastSyncedAt != nil {
		e.LastSyncedAt = nullTime(*p.LastSyncedAt)
	}
}

// SyncSettingsRepositoryStub is an in-memory SyncSettingsRepository.
type SyncSettingsRepositoryStub struct {
	mu       sync.Mutex
	settings map[string]SyncSettings
}

func NewSyncSettingsRepositoryStub() *SyncSettingsRepositoryStub {
	return &SyncSettingsRepositoryStub{settings: make(map[string]SyncSettings)}
}

func (r *SyncSettingsRepositoryStub) GetSyncSettings(ctx context.Context, userId string) (*SyncSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.settings[userId]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *SyncSettingsRepositoryStub) UpsertSyncSettings(ctx context.Context, userId string, patch SyncSettingsPatch) (SyncSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	s, ok := r.settings[userId]
	if !ok {
		s = SyncSettings{UserId: userId, CreatedAt: now}
	}
	if patch.Google != nil {
		applyProviderPatch(&s.Google, *patch.Google)
	}
	if patch.Outlook != nil {
		applyProviderPatch(&s.Outlook, *patch.Outlook)
	}
	s.UpdatedAt = now
	r.settings[userId] = s
	return s, nil
}

func (r *SyncSettingsRepositoryStub) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = make(map[string]SyncSettings)
}

func applyProviderPatch(s *ProviderSettings, p ProviderPatch) {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.AccessToken != nil {
		s.AccessToken = *p.AccessToken
	}
	if p.RefreshToken != nil {
		s.RefreshToken = *p.RefreshToken
	}
	if p.TokenExpiry != nil {
		s.TokenExpiry = nullTime(*p.TokenExpiry)
	}
	if p.CalendarId != nil {
		s.CalendarId = *p.CalendarId
	}
	if p.LastSyncAt != nil {
		s.LastSyncAt = nullTime(*p.LastSyncAt)
	}
	if p.SyncCursor != nil {
		s.SyncCursor = *p.SyncCursor
	}
}
