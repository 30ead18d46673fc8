package app

import (
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tradiedesk/tradiedesk/internal/config"
	"github.com/tradiedesk/tradiedesk/internal/event_bus"
	"github.com/tradiedesk/tradiedesk/internal/metrics"
	"github.com/tradiedesk/tradiedesk/internal/ratelimit"
	"github.com/tradiedesk/tradiedesk/internal/utils"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
	"github.com/tradiedesk/tradiedesk/pkg/calendar_provider"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus
	Limiter  *ratelimit.Limiter

	CalendarRepository     *calendar.RepositoryImpl
	SyncSettingsRepository *calendar.SyncSettingsRepositoryImpl
	CalendarService        *calendar.Service
	CalendarHandler        *calendar.Handler

	OAuth                   *calendar_provider.OAuth
	OAuthStateRepository    *calendar_provider.StateRepositoryImpl
	CalendarProviderService *calendar_provider.Service
	CalendarProviderHandler *calendar_provider.Handler
	ProviderAuthHandler     *calendar_provider.AuthHandler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	metrics.SubscribeCalendarEvents(deps.EventBus)
	deps.Limiter = ratelimit.New(cfg.RateLimit.Rps, cfg.RateLimit.Burst)

	validate := validator.New(validator.WithRequiredStructEnabled())

	deps.CalendarRepository = calendar.NewRepository(db)
	deps.SyncSettingsRepository = calendar.NewSyncSettingsRepository(db)
	deps.CalendarService = calendar.NewService(deps.CalendarRepository, deps.SyncSettingsRepository, deps.Clock, deps.EventBus)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService, validate)

	deps.OAuth = calendar_provider.NewOAuth(cfg)
	deps.OAuthStateRepository = calendar_provider.NewStateRepository(db)
	deps.CalendarProviderService = calendar_provider.NewService(deps.CalendarService, deps.OAuth)
	deps.CalendarProviderHandler = calendar_provider.NewHandler(deps.CalendarProviderService)
	deps.ProviderAuthHandler = calendar_provider.NewAuthHandler(deps.OAuth, deps.OAuthStateRepository, deps.CalendarService, deps.Clock)

	return deps
}
