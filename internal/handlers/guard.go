package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/newsdesk/apiserver/internal/observability"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/internal/tokens"
	"github.com/newsdesk/apiserver/types"
)

type contextKey string

const contextAuthKey contextKey = "auth"

// AuthContext identifies the caller of an authenticated request.
type AuthContext struct {
	AccountID int
	Role      types.Role
}

// AuthFromContext returns the AuthContext attached by Guard.RequireAuth.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(contextAuthKey).(AuthContext)
	return auth, ok
}

func withAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, contextAuthKey, auth)
}

// AccountLookup resolves the account behind a verified token.
type AccountLookup interface {
	Get(ctx context.Context, id int) (types.Account, error)
}

// Guard authenticates requests carrying a bearer access token.
type Guard struct {
	tokens   *tokens.Service
	accounts AccountLookup
	metrics  *observability.Metrics
}

func NewGuard(tokenService *tokens.Service, accounts AccountLookup, metrics *observability.Metrics) *Guard {
	return &Guard{
		tokens:   tokenService,
		accounts: accounts,
		metrics:  metrics,
	}
}

// RequireAuth verifies the access token, loads the account and attaches an
// AuthContext. The role comes from the stored account, so a demotion takes
// effect before the token expires.
func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			g.metrics.AuthFailed("missing_token")
			writeFail(w, http.StatusUnauthorized, "MissingToken")
			return
		}

		claims, err := g.tokens.ParseAccess(raw)
		if err != nil {
			if errors.Is(err, tokens.ErrExpired) {
				g.metrics.AuthFailed("access_expired")
				writeServiceError(w, r, services.ErrAccessTokenExpired)
				return
			}
			g.metrics.AuthFailed("access_invalid")
			writeServiceError(w, r, services.ErrAccessTokenInvalid)
			return
		}

		accountID, err := claims.AccountID()
		if err != nil {
			g.metrics.AuthFailed("access_invalid")
			writeServiceError(w, r, services.ErrAccessTokenInvalid)
			return
		}

		account, err := g.accounts.Get(r.Context(), accountID)
		if err != nil {
			if errors.Is(err, services.ErrAccountNotFound) {
				g.metrics.AuthFailed("account_not_found")
			}
			writeServiceError(w, r, err)
			return
		}

		ctx := withAuth(r.Context(), AuthContext{AccountID: account.ID, Role: account.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets the request through only if the authenticated role is one
// of roles. It must run after RequireAuth and never looks at the token.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				writeFail(w, http.StatusUnauthorized, "MissingToken")
				return
			}
			if !slices.Contains(roles, auth.Role) {
				writeServiceError(w, r, services.ErrInsufficientRole)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
