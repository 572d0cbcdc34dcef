package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) createCategory(t *testing.T, token, name string) types.Category {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/categories", types.Category{Name: name}, withBearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var category types.Category
	decodeData(t, rec, &category)
	return category
}

func TestCategories_CacheHitAndInvalidation(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "admin@example.com", types.RoleAdmin, true)
	admin, _ := h.login(t, "admin@example.com")
	category := h.createCategory(t, admin, "World")
	itemPath := fmt.Sprintf("/api/v1/categories/%d", category.ID)

	rec := h.do(t, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(cache.HeaderCache))

	rec = h.do(t, http.MethodGet, "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get(cache.HeaderCache))
	assert.Contains(t, rec.Body.String(), "World")

	h.do(t, http.MethodGet, itemPath, nil)
	rec = h.do(t, http.MethodGet, itemPath, nil)
	assert.Equal(t, "HIT", rec.Header().Get(cache.HeaderCache))

	rec = h.do(t, http.MethodPatch, itemPath, map[string]string{"name": "Politics"}, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/v1/categories", nil)
	assert.Equal(t, "MISS", rec.Header().Get(cache.HeaderCache))
	assert.Contains(t, rec.Body.String(), "Politics")

	rec = h.do(t, http.MethodGet, itemPath, nil)
	assert.Equal(t, "MISS", rec.Header().Get(cache.HeaderCache))
	assert.Contains(t, rec.Body.String(), "Politics")
}

func TestCategories_QueryIsPartOfKey(t *testing.T) {
	h := newHarness(t)

	h.do(t, http.MethodGet, "/api/v1/categories?page=1", nil)
	rec := h.do(t, http.MethodGet, "/api/v1/categories?page=2", nil)

	assert.Equal(t, "MISS", rec.Header().Get(cache.HeaderCache))
	_, ok := h.cache.Get(cache.Key(http.MethodGet, "/api/v1/categories", "page=1"))
	assert.True(t, ok)
}

func TestCategories_ErrorsAreNotCached(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/categories/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/v1/categories/999", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get(cache.HeaderCache))
	assert.Equal(t, "CategoryNotFound", decodeEnvelope(t, rec).Message)
}

func TestCategories_WritesNeedAdmin(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "author@example.com", types.RoleAuthor, true)
	author, _ := h.login(t, "author@example.com")

	rec := h.do(t, http.MethodPost, "/api/v1/categories", types.Category{Name: "Sports"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/categories", types.Category{Name: "Sports"}, withBearer(author))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "InsufficientRole", decodeEnvelope(t, rec).Message)
}

func TestCategories_DeleteInUse(t *testing.T) {
	h := newHarness(t)
	h.seedAccount(t, "admin@example.com", types.RoleAdmin, true)
	admin, _ := h.login(t, "admin@example.com")
	category := h.createCategory(t, admin, "World")

	rec := h.do(t, http.MethodPost, "/api/v1/articles", map[string]any{
		"title": "Headline", "content": "Body", "category_id": category.ID,
	}, withBearer(admin))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/categories/%d", category.ID), nil, withBearer(admin))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CategoryInUse", decodeEnvelope(t, rec).Message)
}
