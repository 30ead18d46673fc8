package calendar

import (
	"errors"
	"time"
)

var ErrInvalidEvent = errors.New("invalid event")

const (
	DefaultColor         = "#3b82f6"
	DefaultUpcomingLimit = 10
	DefaultJobDuration   = time.Hour
)

type EventType string

const (
	EventTypeJob         EventType = "job"
	EventTypeMeeting     EventType = "meeting"
	EventTypeAppointment EventType = "appointment"
	EventTypeReminder    EventType = "reminder"
	EventTypeBlockTime   EventType = "block_time"
)

var validEventTypes = map[EventType]bool{
	EventTypeJob:         true,
	EventTypeMeeting:     true,
	EventTypeAppointment: true,
	EventTypeReminder:    true,
	EventTypeBlockTime:   true,
}

func (t EventType) IsValid() bool {
	return validEventTypes[t]
}

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true,
	StatusCompleted: true,
	StatusCancelled: true,
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

type SyncStatus string

const (
	SyncStatusNotSynced  SyncStatus = "not_synced"
	SyncStatusSynced     SyncStatus = "synced"
	SyncStatusSyncFailed SyncStatus = "sync_failed"
)

type Event struct {
	Id           int64
	UserId       string
	Title        string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	AllDay       bool
	EventType    EventType
	Status       Status
	Color        string
	CustomerName string
	// JobId is a weak reference to a job owned by another system.
	JobId          *int64
	GoogleEventId  string
	OutlookEventId string
	SyncStatus     SyncStatus
	LastSyncedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EventPatch lists the fields to change. Nil fields are left untouched; a pointer to an empty
// string clears an optional text field. UnlinkJob clears the job link and wins over JobId.
type EventPatch struct {
	Title          *string
	Description    *string
	Location       *string
	StartTime      *time.Time
	EndTime        *time.Time
	AllDay         *bool
	EventType      *EventType
	Status         *Status
	Color          *string
	CustomerName   *string
	JobId          *int64
	GoogleEventId  *string
	OutlookEventId *string
	SyncStatus     *SyncStatus
	LastSyncedAt   *time.Time
	UnlinkJob      bool
}

func (p EventPatch) IsEmpty() bool {
	return p == EventPatch{}
}

// changesRemoteCopy reports whether the patch touches a field mirrored to external calendars.
func (p EventPatch) changesRemoteCopy() bool {
	return p.Title != nil || p.Description != nil || p.Location != nil ||
		p.StartTime != nil || p.EndTime != nil || p.AllDay != nil ||
		p.Status != nil || p.CustomerName != nil
}

// JobDetails is the subset of a job record needed to put it on the calendar.
type JobDetails struct {
	Title        string
	Description  string
	Location     string
	CustomerName string
	StartTime    time.Time
	EndTime      *time.Time
	Color        string
}

type EventStats struct {
	Total     int
	Scheduled int
	Completed int
	Cancelled int
	Upcoming  int
	Today     int
}
