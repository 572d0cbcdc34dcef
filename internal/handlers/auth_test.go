package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/newsdesk/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterVerifyLogin(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/auth/register", RegisterRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, StatusSuccess, decodeEnvelope(t, rec).Status)

	rec = h.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.Equal(t, http.StatusForbidden, rec.Code)

	link := h.events.lastLink(t, mq.EventVerificationRequested)
	assert.Equal(t, "/auth/verify-account", link.Path)
	rec = h.do(t, http.MethodGet, "/auth/verify-account?"+link.RawQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	access, _ := h.login(t, "ada@example.com")
	assert.NotEmpty(t, access)
}

// listUsers fetches the admin user listing and returns its cache header and
// total.
func (h *harness) listUsers(t *testing.T, admin string) (string, int) {
	t.Helper()
	rec := h.do(t, http.MethodGet, "/api/v1/users/", nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page ListResponse[types.Account]
	decodeData(t, rec, &page)
	return rec.Header().Get(cache.HeaderCache), page.Total
}

func TestAccountWrites_InvalidateUserList(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "admin@example.com", types.RoleAdmin, true)
	admin, _ := h.login(t, "admin@example.com")

	h.listUsers(t, admin)
	state, total := h.listUsers(t, admin)
	require.Equal(t, "HIT", state)
	require.Equal(t, 1, total)

	rec := h.do(t, http.MethodPost, "/auth/register", RegisterRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	state, total = h.listUsers(t, admin)
	assert.Equal(t, "MISS", state)
	assert.Equal(t, 2, total)

	link := h.events.lastLink(t, mq.EventVerificationRequested)
	rec = h.do(t, http.MethodGet, "/auth/verify-account?"+link.RawQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	state, _ = h.listUsers(t, admin)
	assert.Equal(t, "MISS", state)

	rec = h.do(t, http.MethodPost, "/auth/forget-password", ForgetPasswordRequest{Email: "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	h.listUsers(t, admin)

	link = h.events.lastLink(t, mq.EventPasswordResetRequested)
	rec = h.do(t, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{
		Token:    link.Query().Get("token"),
		Password: "a brand new password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	state, _ = h.listUsers(t, admin)
	assert.Equal(t, "MISS", state)
}

func TestVerifyAccount_MissingToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/auth/verify-account", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MissingToken", decodeEnvelope(t, rec).Message)
}

func TestLogin_UnverifiedSetsNoCookie(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "new@example.com", types.RoleUser, false)

	rec := h.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "new@example.com", Password: testPassword})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, StatusFail, env.Status)
	assert.Equal(t, "AccountUnverified", env.Message)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)

	tests := []struct {
		name    string
		req     LoginRequest
		status  int
		message string
	}{
		{"missing password", LoginRequest{Email: "reader@example.com"}, http.StatusBadRequest, "MissingCredentials"},
		{"unknown email", LoginRequest{Email: "nobody@example.com", Password: testPassword}, http.StatusNotFound, "AccountNotFound"},
		{"wrong password", LoginRequest{Email: "reader@example.com", Password: "wrong"}, http.StatusUnauthorized, "InvalidCredentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/auth/login", tt.req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeEnvelope(t, rec).Message)
			assert.Empty(t, rec.Header().Values("Set-Cookie"))
		})
	}
}

func TestLogin_ClearsThenSetsCookie(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)

	rec := h.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "reader@example.com", Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	lines := sessionSetCookies(rec)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], SessionCookieName+"=;"), lines[0])
	assert.Contains(t, lines[0], "Max-Age=0")

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
}

func TestExpiredAccessTokenRecoversThroughRefresh(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)
	access, cookie := h.login(t, "reader@example.com")

	h.clock.Advance(16 * time.Minute)

	rec := h.do(t, http.MethodGet, "/api/v1/users/me", nil, withBearer(access))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, StatusAccessTokenExpired, decodeEnvelope(t, rec).Status)

	rec = h.do(t, http.MethodGet, "/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session SessionResponse
	decodeData(t, rec, &session)
	require.NotEmpty(t, session.AccessToken)

	lines := sessionSetCookies(rec)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], SessionCookieName+"=;"), lines[0])
	next := sessionCookie(rec)
	require.NotNil(t, next)
	assert.NotEqual(t, cookie.Value, next.Value)

	rec = h.do(t, http.MethodGet, "/api/v1/users/me", nil, withBearer(session.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_ReplayedCookieIsRejected(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)
	_, cookie := h.login(t, "reader@example.com")

	rec := h.do(t, http.MethodGet, "/auth/refresh", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, StatusFail, env.Status)
	assert.Equal(t, "RefreshTokenInvalid", env.Message)

	// The failed attempt still clears the cookie and sets nothing new.
	lines := sessionSetCookies(rec)
	require.Len(t, lines, 1)
	assert.Nil(t, sessionCookie(rec))
}

func TestRefresh_Expired(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)
	_, cookie := h.login(t, "reader@example.com")

	h.clock.Advance(8 * 24 * time.Hour)

	rec := h.do(t, http.MethodGet, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, StatusRefreshTokenExpired, decodeEnvelope(t, rec).Status)
}

func TestRefresh_MissingCookie(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/auth/refresh", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MissingToken", decodeEnvelope(t, rec).Message)
}

func TestLogout_OnlyClears(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)
	_, cookie := h.login(t, "reader@example.com")

	rec := h.do(t, http.MethodGet, "/auth/logout", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	lines := sessionSetCookies(rec)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Max-Age=0")

	rec = h.do(t, http.MethodGet, "/auth/refresh", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_WithoutCookie(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/auth/logout", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, sessionSetCookies(rec), 1)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "reader@example.com", types.RoleUser, true)

	rec := h.do(t, http.MethodPost, "/auth/forget-password", ForgetPasswordRequest{Email: "reader@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	link := h.events.lastLink(t, mq.EventPasswordResetRequested)
	rec = h.do(t, http.MethodGet, "/auth/reset-password?"+link.RawQuery, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `name="password"`)

	form := url.Values{
		"token":    {link.Query().Get("token")},
		"password": {"a brand new password"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/reset-password", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "reader@example.com", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "reader@example.com", Password: "a brand new password"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The link is single use.
	rec = h.do(t, http.MethodGet, "/auth/reset-password?"+link.RawQuery, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPasswordForm_InvalidToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/auth/reset-password?token=nope", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or has expired")
}
