package handlers

import (
	"errors"
	"html/template"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/newsdesk/apiserver/internal/oauth"
	"github.com/newsdesk/apiserver/internal/observability"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
)

// AuthHandler serves the session endpoints under /auth.
type AuthHandler struct {
	accounts  *services.AccountService
	cookies   *SessionCookies
	bridge    *oauth.Bridge
	metrics   *observability.Metrics
	cache     *cache.ResponseCache
	clientURL string
}

// NewAuthHandler constructs an AuthHandler. bridge may be nil when no OAuth
// provider is configured. responses is the cache the user listing is served
// from; account writes made here invalidate it.
func NewAuthHandler(
	accounts *services.AccountService,
	cookies *SessionCookies,
	bridge *oauth.Bridge,
	metrics *observability.Metrics,
	responses *cache.ResponseCache,
	clientURL string,
) *AuthHandler {
	if bridge == nil {
		bridge = oauth.NewBridge()
	}
	return &AuthHandler{
		accounts:  accounts,
		cookies:   cookies,
		bridge:    bridge,
		metrics:   metrics,
		cache:     responses,
		clientURL: clientURL,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Get("/refresh", h.Refresh)
	r.Get("/logout", h.Logout)
	r.Get("/verify-account", h.VerifyAccount)
	r.Get("/reset-password", h.ResetPasswordForm)
	r.Post("/reset-password", h.ResetPassword)
	r.Post("/forget-password", h.ForgetPassword)
	r.Get("/login/{provider}", h.OAuthLogin)
	r.Get("/login/{provider}/callback", h.OAuthCallback)
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgetPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// SessionResponse is returned whenever a new token pair is issued. The
// refresh token travels only in the cookie.
type SessionResponse struct {
	AccessToken string              `json:"accessToken"`
	Account     types.PublicAccount `json:"account"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateByPrefix(usersBasePath)
	writeSuccess(w, http.StatusCreated, "verification link sent", account.Public())
}

// Login checks credentials and opens a session. Failures never touch the
// cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if reply, ok := replyFor(err); ok {
			h.metrics.AuthFailed(strings.ToLower(reply.message))
		}
		writeServiceError(w, r, err)
		return
	}
	h.startSession(w, session)
	writeSuccess(w, http.StatusOK, "", SessionResponse{
		AccessToken: session.AccessToken.Value,
		Account:     session.Account.Public(),
	})
}

func (h *AuthHandler) startSession(w http.ResponseWriter, session services.Session) {
	h.metrics.TokenIssued("access")
	h.metrics.TokenIssued("refresh")
	h.cookies.Rotate(w, session.RefreshToken.Value)
}

// Refresh rotates the session cookie. The old cookie is cleared before
// anything else, so a failed refresh always leaves the client logged out.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, err := h.cookies.Read(r)
	if err != nil {
		h.metrics.Refreshed("missing")
		writeFail(w, http.StatusUnauthorized, "MissingToken")
		return
	}
	h.cookies.Clear(w)

	session, err := h.accounts.Refresh(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRefreshTokenExpired):
			h.metrics.Refreshed("expired")
		case errors.Is(err, services.ErrRefreshTokenInvalid):
			h.metrics.Refreshed("invalid")
		default:
			h.metrics.Refreshed("error")
		}
		writeServiceError(w, r, err)
		return
	}

	h.metrics.Refreshed("ok")
	h.metrics.TokenIssued("access")
	h.metrics.TokenIssued("refresh")
	h.cookies.set(w, session.RefreshToken.Value)
	writeSuccess(w, http.StatusOK, "", SessionResponse{
		AccessToken: session.AccessToken.Value,
		Account:     session.Account.Public(),
	})
}

// Logout forgets the session and clears the cookie. It succeeds without a
// cookie too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw, err := h.cookies.Read(r); err == nil {
		if err := h.accounts.Logout(r.Context(), raw); err != nil {
			logging.FromContext(r.Context()).Warn("session not removed on logout", "error", err)
		}
	}
	h.cookies.Clear(w)
	writeSuccess(w, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("verificationToken"))
	if raw == "" {
		writeFail(w, http.StatusBadRequest, "MissingToken")
		return
	}
	account, err := h.accounts.VerifyAccount(r.Context(), raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateByPrefix(usersBasePath)
	writeSuccess(w, http.StatusOK, "account verified", account.Public())
}

func (h *AuthHandler) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.accounts.ForgetPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "reset link sent", nil)
}

var resetPasswordPage = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Reset password</title></head>
<body>
{{if .Valid}}
<form method="POST" action="/auth/reset-password">
  <input type="hidden" name="token" value="{{.Token}}">
  <label>New password <input type="password" name="password" minlength="8" required></label>
  <button type="submit">Reset password</button>
</form>
{{else}}
<p>This link is invalid or has expired.</p>
{{end}}
</body>
</html>
`))

// ResetPasswordForm serves the page a reset link points at.
func (h *AuthHandler) ResetPasswordForm(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	status := http.StatusOK
	valid := false
	if token != "" {
		_, err := h.accounts.CheckResetToken(r.Context(), token)
		switch {
		case err == nil:
			valid = true
		case errors.Is(err, services.ErrAccountTokenInvalid):
		default:
			writeInternal(w, r, err)
			return
		}
	}
	if !valid {
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resetPasswordPage.Execute(w, struct {
		Valid bool
		Token string
	}{valid, token}); err != nil {
		logging.FromContext(r.Context()).Error("render reset form", "error", err)
	}
}

// ResetPassword accepts the form posted by ResetPasswordForm or a JSON body.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			writeFail(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			writeFail(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.Token = r.PostForm.Get("token")
		req.Password = r.PostForm.Get("password")
	}

	if strings.TrimSpace(req.Token) == "" {
		writeFail(w, http.StatusBadRequest, "MissingToken")
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), strings.TrimSpace(req.Token), req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateByPrefix(usersBasePath)
	writeSuccess(w, http.StatusOK, "password updated", nil)
}
