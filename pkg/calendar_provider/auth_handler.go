package calendar_provider

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/tradiedesk/tradiedesk/internal/rest"
	"github.com/tradiedesk/tradiedesk/internal/utils"
	"github.com/tradiedesk/tradiedesk/pkg/calendar"
	"github.com/tradiedesk/tradiedesk/pkg/user"
	"golang.org/x/oauth2"
)

// stateTTL bounds the time between a login request and the provider's callback.
const stateTTL = 10 * time.Minute

type AuthRedirectDTO struct {
	RedirectUrl string `json:"redirectUrl"`
}

type AuthHandler struct {
	oauth           *OAuth
	states          StateRepository
	calendarService *calendar.Service
	clock           utils.Clock
}

func NewAuthHandler(oauth *OAuth, states StateRepository, calendarService *calendar.Service, clock utils.Clock) *AuthHandler {
	return &AuthHandler{
		oauth:           oauth,
		states:          states,
		calendarService: calendarService,
		clock:           clock,
	}
}

// OAuthLogin godoc
// @Summary Start a calendar provider login
// @Tags Integrations
// @Produce json
// @Param provider path string true "google or outlook"
// @Param finalUrl query string false "Where the browser lands after the callback"
// @Success 200 {object} AuthRedirectDTO
// @Router /api/integrations/{provider}/auth/login [get]
// @Security BearerAuth
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	userId, ok := currentUser(w, r)
	if !ok {
		return
	}
	provider := calendar.Provider(mux.Vars(r)["provider"])
	oauthConfig, ok := h.oauth.Config(provider)
	if !ok {
		rest.WriteError(w, http.StatusNotFound, "Unknown provider")
		return
	}

	finalUrl, ok := h.resolveFinalUrl(r.URL.Query().Get("finalUrl"))
	if !ok {
		rest.WriteError(w, http.StatusBadRequest, "Invalid finalUrl")
		return
	}

	state := OAuthState{
		Nonce:     uuid.New().String(),
		UserId:    userId,
		Provider:  provider,
		FinalUrl:  finalUrl,
		CreatedAt: h.clock.Now(),
	}
	if err := h.states.StoreState(r.Context(), state); err != nil {
		log.WithField("provider", provider).Errorf("failed to store oauth state for user %s: %v", userId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle provider authentication")
		return
	}

	log.Tracef("Redirecting to %s auth URL with nonce: %s", provider, state.Nonce)
	u := oauthConfig.AuthCodeURL(state.Nonce, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	rest.WriteJSON(w, http.StatusOK, AuthRedirectDTO{RedirectUrl: u})
}

// OAuthCallback is the provider's redirect target. The caller is identified by the state nonce,
// not by the request's credentials.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := calendar.Provider(mux.Vars(r)["provider"])
	logger := log.WithField("provider", provider)

	state, err := h.states.ConsumeState(r.Context(), r.FormValue("state"))
	if err != nil {
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle provider authentication")
		return
	}
	if state == nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid OAuth state")
		return
	}

	oauthConfig, ok := h.oauth.Config(provider)
	switch {
	case !ok || state.Provider != provider:
		logger.Warnf("oauth state %s was issued for %s", state.Nonce, state.Provider)
		redirectWithResult(w, r, state.FinalUrl, false)
		return
	case h.clock.Now().Sub(state.CreatedAt) > stateTTL:
		logger.Warnf("oauth state %s expired", state.Nonce)
		redirectWithResult(w, r, state.FinalUrl, false)
		return
	case r.FormValue("error") != "":
		logger.Infof("provider login declined for user %s: %s", state.UserId, r.FormValue("error"))
		redirectWithResult(w, r, state.FinalUrl, false)
		return
	}

	token, err := oauthConfig.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		logger.Errorf("unable to exchange code for token: %v", err)
		redirectWithResult(w, r, state.FinalUrl, false)
		return
	}

	calendarId := defaultCalendarIds[provider]
	if provider == calendar.ProviderOutlook {
		_, err = h.calendarService.EnableOutlookSync(r.Context(), state.UserId, token.AccessToken, token.RefreshToken, token.Expiry, calendarId)
	} else {
		_, err = h.calendarService.EnableGoogleSync(r.Context(), state.UserId, token.AccessToken, token.RefreshToken, token.Expiry, calendarId)
	}
	if err != nil {
		logger.Errorf("unable to store token for user %s: %v", state.UserId, err)
		redirectWithResult(w, r, state.FinalUrl, false)
		return
	}

	logger.Debugf("stored %s token for user %s", provider, state.UserId)
	redirectWithResult(w, r, state.FinalUrl, true)
}

// resolveFinalUrl accepts relative paths and absolute URLs on the configured host.
func (h *AuthHandler) resolveFinalUrl(finalUrl string) (string, bool) {
	if finalUrl == "" {
		return h.oauth.host + "/", true
	}
	if strings.HasPrefix(finalUrl, "/") && !strings.HasPrefix(finalUrl, "//") {
		return finalUrl, true
	}
	if h.oauth.host != "" && (finalUrl == h.oauth.host || strings.HasPrefix(finalUrl, h.oauth.host+"/")) {
		return finalUrl, true
	}
	return "", false
}

func redirectWithResult(w http.ResponseWriter, r *http.Request, finalUrl string, success bool) {
	u, err := url.Parse(finalUrl)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid finalUrl")
		return
	}
	q := u.Query()
	q.Set("success", strconv.FormatBool(success))
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return userId, true
}
