package calendar_provider

import (
	"strings"

	"github.com/tradiedesk/tradiedesk/internal/config"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	gcal "google.golang.org/api/calendar/v3"
)

const outlookCalendarScope = "https://graph.microsoft.com/Calendars.ReadWrite"

// defaultCalendarIds is the calendar a freshly connected provider writes to.
var defaultCalendarIds = map[calendar.Provider]string{
	calendar.ProviderGoogle:  "primary",
	calendar.ProviderOutlook: "calendar",
}

// OAuth holds the OAuth2 client configuration of every provider that has credentials configured.
type OAuth struct {
	host    string
	configs map[calendar.Provider]*oauth2.Config
}

func NewOAuth(cfg config.Application) *OAuth {
	host := strings.TrimSuffix(cfg.Host, "/")
	configs := make(map[calendar.Provider]*oauth2.Config)

	if cfg.Google.ClientId != "" {
		configs[calendar.ProviderGoogle] = &oauth2.Config{
			ClientID:     cfg.Google.ClientId,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  callbackUrl(host, calendar.ProviderGoogle),
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		}
	}
	if cfg.Outlook.ClientId != "" {
		tenant := cfg.Outlook.Tenant
		if tenant == "" {
			tenant = "common"
		}
		configs[calendar.ProviderOutlook] = &oauth2.Config{
			ClientID:     cfg.Outlook.ClientId,
			ClientSecret: cfg.Outlook.ClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(tenant),
			RedirectURL:  callbackUrl(host, calendar.ProviderOutlook),
			Scopes:       []string{"offline_access", outlookCalendarScope},
		}
	}

	return &OAuth{host: host, configs: configs}
}

// Config returns the provider's OAuth2 configuration, or false when the provider is unknown or has
// no client credentials.
func (o *OAuth) Config(provider calendar.Provider) (*oauth2.Config, bool) {
	c, ok := o.configs[provider]
	return c, ok
}

func callbackUrl(host string, provider calendar.Provider) string {
	return host + "/api/integrations/" + string(provider) + "/auth/callback"
}
