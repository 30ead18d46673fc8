package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/internal/metrics"
)

// Repository stores calendar events. Every method is scoped to userId; rows of other users
// behave as if they did not exist.
type Repository interface {
	StoreEvent(ctx context.Context, userId string, event Event) (Event, error)
	GetEvent(ctx context.Context, userId string, id int64) (*Event, error)
	GetEventsInRange(ctx context.Context, userId string, start, end time.Time) ([]Event, error)
	GetEventsByJob(ctx context.Context, userId string, jobId int64) ([]Event, error)
	GetUpcomingEvents(ctx context.Context, userId string, from time.Time, limit int) ([]Event, error)
	GetEventsBySyncStatus(ctx context.Context, userId string, statuses ...SyncStatus) ([]Event, error)
	UpdateEvent(ctx context.Context, userId string, id int64, patch EventPatch) (*Event, error)
	DeleteEvent(ctx context.Context, userId string, id int64) (bool, error)
	GetStats(ctx context.Context, userId string, now, dayStart, dayEnd time.Time) (EventStats, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const eventColumns = `id, user_id, title, description, location, start_time, end_time, all_day,
	event_type, status, color, customer_name, job_id, google_event_id, outlook_event_id,
	sync_status, last_synced_at, created_at, updated_at`

func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
	}
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, userId string, event Event) (Event, error) {
	defer observeDB(ctx, "calendar_event.insert")()

	query := `INSERT INTO calendar_event (
				user_id,
				title,
				description,
				location,
				start_time,
				end_time,
				all_day,
				event_type,
				status,
				color,
				customer_name,
				job_id,
				google_event_id,
				outlook_event_id,
				sync_status,
				last_synced_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			RETURNING ` + eventColumns

	row := r.db.QueryRow(ctx, query,
		userId,
		event.Title,
		nullString(event.Description),
		nullString(event.Location),
		event.StartTime,
		event.EndTime,
		event.AllDay,
		event.EventType,
		event.Status,
		event.Color,
		nullString(event.CustomerName),
		event.JobId,
		nullString(event.GoogleEventId),
		nullString(event.OutlookEventId),
		event.SyncStatus,
		event.LastSyncedAt,
	)
	stored, err := scanEvent(row)
	if err != nil {
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return Event{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, userId string, id int64) (*Event, error) {
	defer observeDB(ctx, "calendar_event.get")()

	query := `SELECT ` + eventColumns + ` FROM calendar_event WHERE id = $1 AND user_id = $2`
	event, err := scanEvent(r.db.QueryRow(ctx, query, id, userId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not get calendar event: %v", err)
		log.Error(err)
		return nil, err
	}
	return &event, nil
}

// GetEventsInRange returns events overlapping [start, end], both bounds inclusive: events starting
// inside the window, events ending inside it, and events spanning the whole of it.
func (r *RepositoryImpl) GetEventsInRange(ctx context.Context, userId string, start, end time.Time) ([]Event, error) {
	defer observeDB(ctx, "calendar_event.range")()

	query := `SELECT ` + eventColumns + `
			  FROM calendar_event
			  WHERE user_id = $1
			    AND ((start_time BETWEEN $2 AND $3)
			      OR (end_time BETWEEN $2 AND $3)
			      OR (start_time <= $2 AND end_time >= $3))
			  ORDER BY start_time, id`
	return r.queryEvents(ctx, query, userId, start, end)
}

func (r *RepositoryImpl) GetEventsByJob(ctx context.Context, userId string, jobId int64) ([]Event, error) {
	defer observeDB(ctx, "calendar_event.by_job")()

	query := `SELECT ` + eventColumns + `
			  FROM calendar_event
			  WHERE user_id = $1 AND job_id = $2
			  ORDER BY start_time, id`
	return r.queryEvents(ctx, query, userId, jobId)
}

func (r *RepositoryImpl) GetUpcomingEvents(ctx context.Context, userId string, from time.Time, limit int) ([]Event, error) {
	defer observeDB(ctx, "calendar_event.upcoming")()

	query := `SELECT ` + eventColumns + `
			  FROM calendar_event
			  WHERE user_id = $1 AND status = $2 AND start_time >= $3
			  ORDER BY start_time, id
			  LIMIT $4`
	return r.queryEvents(ctx, query, userId, StatusScheduled, from, limit)
}

func (r *RepositoryImpl) GetEventsBySyncStatus(ctx context.Context, userId string, statuses ...SyncStatus) ([]Event, error) {
	defer observeDB(ctx, "calendar_event.by_sync_status")()

	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	query := `SELECT ` + eventColumns + `
			  FROM calendar_event
			  WHERE user_id = $1 AND sync_status = ANY($2)
			  ORDER BY start_time, id`
	return r.queryEvents(ctx, query, userId, values)
}

// UpdateEvent applies patch in a single statement and refreshes updated_at.
// Returns nil when no event with this id belongs to userId.
func (r *RepositoryImpl) UpdateEvent(ctx context.Context, userId string, id int64, patch EventPatch) (*Event, error) {
	defer observeDB(ctx, "calendar_event.update")()

	set := eventSetClause(patch)
	set.cols = append(set.cols, "updated_at = now()")
	args := append(set.args, id, userId)
	query := fmt.Sprintf(`UPDATE calendar_event SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(set.cols, ", "), len(set.args)+1, len(set.args)+2, eventColumns)

	event, err := scanEvent(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return nil, err
	}
	return &event, nil
}

func (r *RepositoryImpl) DeleteEvent(ctx context.Context, userId string, id int64) (bool, error) {
	defer observeDB(ctx, "calendar_event.delete")()

	result, err := r.db.Exec(ctx, `DELETE FROM calendar_event WHERE id = $1 AND user_id = $2`, id, userId)
	if err != nil {
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

// GetStats counts the user's events in one aggregate query. Upcoming means scheduled and starting
// at or after now; today means starting within [dayStart, dayEnd].
func (r *RepositoryImpl) GetStats(ctx context.Context, userId string, now, dayStart, dayEnd time.Time) (EventStats, error) {
	defer observeDB(ctx, "calendar_event.stats")()

	query := `SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE status = 'scheduled'),
				COUNT(*) FILTER (WHERE status = 'completed'),
				COUNT(*) FILTER (WHERE status = 'cancelled'),
				COUNT(*) FILTER (WHERE status = 'scheduled' AND start_time >= $2),
				COUNT(*) FILTER (WHERE start_time BETWEEN $3 AND $4)
			  FROM calendar_event
			  WHERE user_id = $1`

	var stats EventStats
	err := r.db.QueryRow(ctx, query, userId, now, dayStart, dayEnd).Scan(
		&stats.Total,
		&stats.Scheduled,
		&stats.Completed,
		&stats.Cancelled,
		&stats.Upcoming,
		&stats.Today,
	)
	if err != nil {
		err := fmt.Errorf("could not compute event stats: %v", err)
		log.Error(err)
		return EventStats{}, err
	}
	return stats, nil
}

func (r *RepositoryImpl) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		err := fmt.Errorf("could not query calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, 10)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("could not iterate calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	return events, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		e              Event
		description    *string
		location       *string
		customerName   *string
		googleEventId  *string
		outlookEventId *string
	)
	err := row.Scan(
		&e.Id,
		&e.UserId,
		&e.Title,
		&description,
		&location,
		&e.StartTime,
		&e.EndTime,
		&e.AllDay,
		&e.EventType,
		&e.Status,
		&e.Color,
		&customerName,
		&e.JobId,
		&googleEventId,
		&outlookEventId,
		&e.SyncStatus,
		&e.LastSyncedAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	e.Description = deref(description)
	e.Location = deref(location)
	e.CustomerName = deref(customerName)
	e.GoogleEventId = deref(googleEventId)
	e.OutlookEventId = deref(outlookEventId)
	return e, nil
}

type setClause struct {
	cols []string
	args []any
}

func (s *setClause) add(column string, value any) {
	s.args = append(s.args, value)
	s.cols = append(s.cols, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func eventSetClause(p EventPatch) *setClause {
	set := &setClause{}
	if p.Title != nil {
		set.add("title", *p.Title)
	}
	if p.Description != nil {
		set.add("description", nullString(*p.Description))
	}
	if p.Location != nil {
		set.add("location", nullString(*p.Location))
	}
	if p.StartTime != nil {
		set.add("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		set.add("end_time", *p.EndTime)
	}
	if p.AllDay != nil {
		set.add("all_day", *p.AllDay)
	}
	if p.EventType != nil {
		set.add("event_type", *p.EventType)
	}
	if p.Status != nil {
		set.add("status", *p.Status)
	}
	if p.Color != nil {
		set.add("color", *p.Color)
	}
	if p.CustomerName != nil {
		set.add("customer_name", nullString(*p.CustomerName))
	}
	if p.UnlinkJob {
		set.cols = append(set.cols, "job_id = NULL")
	} else if p.JobId != nil {
		set.add("job_id", *p.JobId)
	}
	if p.GoogleEventId != nil {
		set.add("google_event_id", nullString(*p.GoogleEventId))
	}
	if p.OutlookEventId != nil {
		set.add("outlook_event_id", nullString(*p.OutlookEventId))
	}
	if p.SyncStatus != nil {
		set.add("sync_status", *p.SyncStatus)
	}
	if p.LastSyncedAt != nil {
		set.add("last_synced_at", nullTime(*p.LastSyncedAt))
	}
	return set
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
