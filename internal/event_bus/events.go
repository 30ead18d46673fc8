package event_bus

import "time"

const (
	CalendarEventStatusChanged EventType = "calendar.event.status_changed"
	CalendarEventDeleted       EventType = "calendar.event.deleted"
)

type CalendarEventStatusChangedPayload struct {
	EventId   int64
	UserId    string
	OldStatus string
	NewStatus string
	ChangedAt time.Time
}

type CalendarEventDeletedPayload struct {
	EventId int64
	UserId  string
}
