package calendar_provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
	gcal "google.golang.org/api/calendar/v3"
)

const eventIdProperty = "tradiedeskEventId"

type CalendarItem struct {
	Id      string
	Summary string
	Primary bool
}

type googleCalendar struct {
	service    *gcal.Service
	calendarId string
}

func (c *googleCalendar) listCalendars(ctx context.Context) ([]CalendarItem, error) {
	calendars, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %v", err)
		log.Error(err)
		return nil, err
	}
	items := make([]CalendarItem, 0, len(calendars.Items))
	for _, cal := range calendars.Items {
		items = append(items, CalendarItem{
			Id:      cal.Id,
			Summary: cal.Summary,
			Primary: cal.Primary,
		})
	}
	return items, nil
}

// pushEvent creates the event in Google Calendar, or replaces it when it was pushed before, and
// returns the Google event id.
func (c *googleCalendar) pushEvent(ctx context.Context, event calendar.Event) (string, error) {
	log.Debugf("Pushing event %d to calendar: %s", event.Id, c.calendarId)
	googleEvent := toGoogleEvent(event)

	var result *gcal.Event
	var err error
	if event.GoogleEventId != "" {
		result, err = c.service.Events.Update(c.calendarId, event.GoogleEventId, googleEvent).Context(ctx).Do()
	} else {
		result, err = c.service.Events.Insert(c.calendarId, googleEvent).Context(ctx).Do()
	}
	if err != nil {
		return "", fmt.Errorf("unable to push event %d to Google Calendar: %v", event.Id, err)
	}
	return result.Id, nil
}

func toGoogleEvent(e calendar.Event) *gcal.Event {
	googleEvent := &gcal.Event{
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Status:      "confirmed",
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{eventIdProperty: strconv.FormatInt(e.Id, 10)},
		},
	}
	if e.CustomerName != "" {
		googleEvent.ExtendedProperties.Private["customerName"] = e.CustomerName
	}
	if e.Status == calendar.StatusCancelled {
		googleEvent.Status = "cancelled"
	}

	if e.AllDay {
		googleEvent.Start = &gcal.EventDateTime{Date: e.StartTime.Format(time.DateOnly)}
		googleEvent.End = &gcal.EventDateTime{Date: allDayEnd(e.StartTime, e.EndTime).Format(time.DateOnly)}
	} else {
		googleEvent.Start = &gcal.EventDateTime{DateTime: e.StartTime.Format(time.RFC3339)}
		googleEvent.End = &gcal.EventDateTime{DateTime: e.EndTime.Format(time.RFC3339)}
	}
	return googleEvent
}

// allDayEnd returns Google's exclusive end date for an all-day event. An end at midnight already
// is exclusive; any other end time covers the rest of its day.
func allDayEnd(start, end time.Time) time.Time {
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	if endDay.Equal(end) && end.After(start) {
		return endDay
	}
	return endDay.AddDate(0, 0, 1)
}
