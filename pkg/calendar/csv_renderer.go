package calendar

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

var csvHeader = []string{"Date", "Start", "End", "Duration", "Title", "Type", "Status", "Customer", "Location", "Job"}

// RenderEventsCsv renders one row per event, with dates and times in loc.
func RenderEventsCsv(events []Event, loc *time.Location) (string, error) {
	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	if err := writer.Write(csvHeader); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}

	for _, e := range events {
		if err := writer.Write(eventRow(e, loc)); err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}
	return b.String(), nil
}

func eventRow(e Event, loc *time.Location) []string {
	start := e.StartTime.In(loc)
	end := e.EndTime.In(loc)
	startTime, endTime := start.Format("15:04"), end.Format("15:04")
	if e.AllDay {
		startTime, endTime = "", ""
	}
	job := ""
	if e.JobId != nil {
		job = strconv.FormatInt(*e.JobId, 10)
	}
	return []string{
		start.Format("02/01/2006"),
		startTime,
		endTime,
		durationToString(end.Sub(start)),
		e.Title,
		string(e.EventType),
		string(e.Status),
		e.CustomerName,
		e.Location,
		job,
	}
}

// durationToString formats d as HH:MM, with hours growing past two digits when needed.
func durationToString(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := strconv.Itoa(int(d.Hours()))
	if len(hours) == 1 {
		hours = "0" + hours
	}
	minutes := strconv.Itoa(int(d.Minutes()) % 60)
	if len(minutes) == 1 {
		minutes = "0" + minutes
	}
	return hours + ":" + minutes
}
