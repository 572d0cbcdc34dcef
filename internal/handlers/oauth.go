package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/newsdesk/apiserver/internal/oauth"
	"github.com/newsdesk/apiserver/internal/services"
)

// OAuthLogin redirects to the provider's consent page.
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	state, err := oauth.NewState()
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	target, err := h.bridge.AuthCodeURL(provider, state)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.cookies.setState(w, state)
	http.Redirect(w, r, target, http.StatusFound)
}

// OAuthCallback finishes the code exchange, opens a session and sends the
// browser back to the client application.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !h.bridge.Enabled(provider) {
		writeServiceError(w, r, oauth.ErrUnknownProvider)
		return
	}

	query := r.URL.Query()
	expected := h.cookies.popState(w, r)
	state := query.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		h.metrics.AuthFailed("oauth_state")
		writeServiceError(w, r, services.ErrOAuthAuthenticationFailed)
		return
	}
	if reason := strings.TrimSpace(query.Get("error")); reason != "" {
		logging.FromContext(r.Context()).Info("oauth consent declined", "provider", provider, "reason", reason)
		h.metrics.AuthFailed("oauth_declined")
		writeServiceError(w, r, services.ErrOAuthAuthenticationFailed)
		return
	}

	profile, err := h.bridge.Exchange(r.Context(), provider, query.Get("code"))
	if err != nil {
		h.metrics.AuthFailed("oauth_exchange")
		writeServiceError(w, r, err)
		return
	}

	session, err := h.accounts.LoginWithProvider(r.Context(), profile)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// The login may have created or linked an account.
	h.cache.InvalidateByPrefix(usersBasePath)
	h.startSession(w, session)
	http.Redirect(w, r, h.clientURL, http.StatusFound)
}
