package handlers

import (
	"errors"
	"net/http"
	"time"
)

const (
	SessionCookieName = "jwt"
	stateCookieName   = "oauth_state"
	stateCookieTTL    = 10 * time.Minute
)

// ErrNoSession is returned by SessionCookies.Read when no session cookie was sent.
var ErrNoSession = errors.New("no session cookie")

// SessionCookies carries the refresh token in an httpOnly cookie. Every
// issuance clears the previous cookie first; logout only clears.
type SessionCookies struct {
	secure bool
	maxAge time.Duration
}

// NewSessionCookies returns a transport whose cookies live for maxAge.
// Browsers drop SameSite=None cookies that are not Secure, so insecure
// (local) setups fall back to Lax.
func NewSessionCookies(secure bool, maxAge time.Duration) *SessionCookies {
	return &SessionCookies{secure: secure, maxAge: maxAge}
}

func (c *SessionCookies) sameSite() http.SameSite {
	if c.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// Rotate replaces the session cookie with value.
func (c *SessionCookies) Rotate(w http.ResponseWriter, value string) {
	c.Clear(w)
	c.set(w, value)
}

func (c *SessionCookies) set(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite(),
	})
}

// Clear expires the session cookie in the browser.
func (c *SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite(),
	})
}

// Read returns the refresh token sent with r.
func (c *SessionCookies) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoSession
	}
	return cookie.Value, nil
}

func (c *SessionCookies) setState(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/login",
		MaxAge:   int(stateCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popState returns the OAuth state cookie and expires it.
func (c *SessionCookies) popState(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth/login",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil {
		return ""
	}
	return cookie.Value
}
