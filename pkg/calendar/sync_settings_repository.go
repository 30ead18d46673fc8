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
)

type SyncSettingsRepository interface {
	GetSyncSettings(ctx context.Context, userId string) (*SyncSettings, error)
	UpsertSyncSettings(ctx context.Context, userId string, patch SyncSettingsPatch) (SyncSettings, error)
}

type SyncSettingsRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewSyncSettingsRepository(db *pgxpool.Pool) *SyncSettingsRepositoryImpl {
	return &SyncSettingsRepositoryImpl{db: db}
}

const syncSettingsColumns = `user_id,
	google_enabled, google_access_token, google_refresh_token, google_token_expiry,
	google_calendar_id, google_last_sync_at, google_sync_token,
	outlook_enabled, outlook_access_token, outlook_refresh_token, outlook_token_expiry,
	outlook_calendar_id, outlook_last_sync_at, outlook_delta_token,
	created_at, updated_at`

type providerColumns struct {
	enabled, accessToken, refreshToken, tokenExpiry, calendarId, lastSyncAt, cursor string
}

var columnsByProvider = map[Provider]providerColumns{
	ProviderGoogle: {
		enabled:      "google_enabled",
		accessToken:  "google_access_token",
		refreshToken: "google_refresh_token",
		tokenExpiry:  "google_token_expiry",
		calendarId:   "google_calendar_id",
		lastSyncAt:   "google_last_sync_at",
		cursor:       "google_sync_token",
	},
	ProviderOutlook: {
		enabled:      "outlook_enabled",
		accessToken:  "outlook_access_token",
		refreshToken: "outlook_refresh_token",
		tokenExpiry:  "outlook_token_expiry",
		calendarId:   "outlook_calendar_id",
		lastSyncAt:   "outlook_last_sync_at",
		cursor:       "outlook_delta_token",
	},
}

func (r *SyncSettingsRepositoryImpl) GetSyncSettings(ctx context.Context, userId string) (*SyncSettings, error) {
	defer observeDB(ctx, "calendar_sync_settings.get")()

	query := `SELECT ` + syncSettingsColumns + ` FROM calendar_sync_settings WHERE user_id = $1`
	settings, err := scanSyncSettings(r.db.QueryRow(ctx, query, userId))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		err := fmt.Errorf("could not get sync settings: %v", err)
		log.Error(err)
		return nil, err
	}
	return &settings, nil
}

// UpsertSyncSettings creates the user's row on first use and otherwise overwrites only the patched
// columns. The insert and the update are one statement guarded by UNIQUE(user_id).
func (r *SyncSettingsRepositoryImpl) UpsertSyncSettings(ctx context.Context, userId string, patch SyncSettingsPatch) (SyncSettings, error) {
	defer observeDB(ctx, "calendar_sync_settings.upsert")()

	columns := []string{"user_id"}
	args := []any{userId}
	if patch.Google != nil {
		columns, args = appendProviderPatch(columns, args, columnsByProvider[ProviderGoogle], *patch.Google)
	}
	if patch.Outlook != nil {
		columns, args = appendProviderPatch(columns, args, columnsByProvider[ProviderOutlook], *patch.Outlook)
	}

	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "user_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	updates = append(updates, "updated_at = now()")

	query := fmt.Sprintf(`INSERT INTO calendar_sync_settings (%s) VALUES (%s)
			ON CONFLICT (user_id) DO UPDATE SET %s
			RETURNING %s`,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "), syncSettingsColumns)

	settings, err := scanSyncSettings(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		err := fmt.Errorf("could not execute query: %v", err)
		log.Error(err)
		return SyncSettings{}, err
	}
	return settings, nil
}

func appendProviderPatch(columns []string, args []any, c providerColumns, p ProviderPatch) ([]string, []any) {
	if p.Enabled != nil {
		columns, args = append(columns, c.enabled), append(args, *p.Enabled)
	}
	if p.AccessToken != nil {
		columns, args = append(columns, c.accessToken), append(args, nullString(*p.AccessToken))
	}
	if p.RefreshToken != nil {
		columns, args = append(columns, c.refreshToken), append(args, nullString(*p.RefreshToken))
	}
	if p.TokenExpiry != nil {
		columns, args = append(columns, c.tokenExpiry), append(args, nullTime(*p.TokenExpiry))
	}
	if p.CalendarId != nil {
		columns, args = append(columns, c.calendarId), append(args, nullString(*p.CalendarId))
	}
	if p.LastSyncAt != nil {
		columns, args = append(columns, c.lastSyncAt), append(args, nullTime(*p.LastSyncAt))
	}
	if p.SyncCursor != nil {
		columns, args = append(columns, c.cursor), append(args, nullString(*p.SyncCursor))
	}
	return columns, args
}

func scanSyncSettings(row pgx.Row) (SyncSettings, error) {
	var s SyncSettings
	var google, outlook nullableProvider
	err := row.Scan(
		&s.UserId,
		&google.enabled, &google.accessToken, &google.refreshToken, &google.tokenExpiry,
		&google.calendarId, &google.lastSyncAt, &google.cursor,
		&outlook.enabled, &outlook.accessToken, &outlook.refreshToken, &outlook.tokenExpiry,
		&outlook.calendarId, &outlook.lastSyncAt, &outlook.cursor,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return SyncSettings{}, err
	}
	s.Google = google.settings()
	s.Outlook = outlook.settings()
	return s, nil
}

type nullableProvider struct {
	enabled      bool
	accessToken  *string
	refreshToken *string
	tokenExpiry  *time.Time
	calendarId   *string
	lastSyncAt   *time.Time
	cursor       *string
}

func (n nullableProvider) settings() ProviderSettings {
	return ProviderSettings{
		Enabled:      n.enabled,
		AccessToken:  deref(n.accessToken),
		RefreshToken: deref(n.refreshToken),
		TokenExpiry:  n.tokenExpiry,
		CalendarId:   deref(n.calendarId),
		LastSyncAt:   n.lastSyncAt,
		SyncCursor:   deref(n.cursor),
	}
}
