package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newsdesk/apiserver/internal/observability"
	"github.com/newsdesk/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_RequireAuth(t *testing.T) {
	h := newHarness(t)
	reader := h.seedAccount(t, "reader@example.com", types.RoleUser, true)

	access, err := h.issuer.IssueAccess(reader.ID, reader.Role)
	require.NoError(t, err)
	refresh, err := h.issuer.IssueRefresh(reader.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		status  int
		marker  string
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, StatusFail, "MissingToken"},
		{"wrong scheme", "Basic " + access.Value, http.StatusUnauthorized, StatusFail, "MissingToken"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, StatusFail, "AccessTokenInvalid"},
		{"refresh token as access", "Bearer " + refresh.Value, http.StatusUnauthorized, StatusFail, "AccessTokenInvalid"},
		{"valid token", "Bearer " + access.Value, http.StatusOK, StatusSuccess, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.Equal(t, tt.marker, env.Status)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestGuard_DeletedAccount(t *testing.T) {
	h := newHarness(t)
	reader := h.seedAccount(t, "reader@example.com", types.RoleUser, true)
	access, _ := h.login(t, "reader@example.com")

	require.NoError(t, h.mem.Accounts().Delete(context.Background(), reader.ID))

	rec := h.do(t, http.MethodGet, "/api/v1/users/me", nil, withBearer(access))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "AccountNotFound", decodeEnvelope(t, rec).Message)
}

func TestGuard_RoleComesFromStoredAccount(t *testing.T) {
	h := newHarness(t)
	author := h.seedAccount(t, "author@example.com", types.RoleAuthor, true)
	access, _ := h.login(t, "author@example.com")

	// The token still claims author after the demotion.
	_, err := h.accounts.ChangeRole(context.Background(), author.ID, types.RoleUser)
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/v1/articles", map[string]any{
		"title": "t", "content": "c", "category_id": 1,
	}, withBearer(access))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "InsufficientRole", decodeEnvelope(t, rec).Message)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireRole(types.RoleAdmin, types.RoleAuthor)(ok)

	tests := []struct {
		name   string
		auth   *AuthContext
		status int
	}{
		{"no auth context", nil, http.StatusUnauthorized},
		{"user", &AuthContext{AccountID: 1, Role: types.RoleUser}, http.StatusForbidden},
		{"author", &AuthContext{AccountID: 2, Role: types.RoleAuthor}, http.StatusNoContent},
		{"admin", &AuthContext{AccountID: 3, Role: types.RoleAdmin}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.auth != nil {
				req = req.WithContext(withAuth(req.Context(), *tt.auth))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGuard_CountsFailures(t *testing.T) {
	h := newHarness(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	guard := NewGuard(h.issuer, h.accounts, metrics)
	handler := guard.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthFailuresTotal.WithLabelValues("missing_token")))
}
