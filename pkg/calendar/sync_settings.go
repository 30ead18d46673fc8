package calendar

import "time"

type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
)

func (p Provider) IsValid() bool {
	return p == ProviderGoogle || p == ProviderOutlook
}

type SyncSettings struct {
	UserId    string
	Google    ProviderSettings
	Outlook   ProviderSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderSettings holds one provider's credentials and incremental sync cursor.
// SyncCursor is Google's sync token or Outlook's delta token.
type ProviderSettings struct {
	Enabled      bool
	AccessToken  string
	RefreshToken string
	TokenExpiry  *time.Time
	CalendarId   string
	LastSyncAt   *time.Time
	SyncCursor   string
}

func (s SyncSettings) For(provider Provider) ProviderSettings {
	if provider == ProviderOutlook {
		return s.Outlook
	}
	return s.Google
}

// ProviderPatch mirrors ProviderSettings with optional fields. A pointer to "" or to the zero
// time stores NULL.
type ProviderPatch struct {
	Enabled      *bool
	AccessToken  *string
	RefreshToken *string
	TokenExpiry  *time.Time
	CalendarId   *string
	LastSyncAt   *time.Time
	SyncCursor   *string
}

type SyncSettingsPatch struct {
	Google  *ProviderPatch
	Outlook *ProviderPatch
}

func patchFor(provider Provider, p ProviderPatch) SyncSettingsPatch {
	if provider == ProviderOutlook {
		return SyncSettingsPatch{Outlook: &p}
	}
	return SyncSettingsPatch{Google: &p}
}

func ptr[T any](v T) *T {
	return &v
}
