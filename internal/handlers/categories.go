package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
)

// CategoryHandler provides HTTP handlers for categories.
type CategoryHandler struct {
	categories *services.CategoryService
	cache      *cache.ResponseCache
}

func NewCategoryHandler(categories *services.CategoryService, responses *cache.ResponseCache) *CategoryHandler {
	return &CategoryHandler{categories: categories, cache: responses}
}

// CategoryRouter registers category routes on the given router. Reads are
// public and cached; writes are admin only.
func CategoryRouter(r chi.Router, h *CategoryHandler, guard *Guard) {
	admin := r.With(guard.RequireAuth, RequireRole(types.RoleAdmin))
	cached := r.With(h.cache.Middleware())

	cached.Get("/", h.ListCategories)
	admin.Post("/", h.CreateCategory)
	r.Route("/{categoryID}", func(r chi.Router) {
		r.With(h.cache.Middleware()).Get("/", h.GetCategory)
		r.With(guard.RequireAuth, RequireRole(types.RoleAdmin)).Patch("/", h.UpdateCategory)
		r.With(guard.RequireAuth, RequireRole(types.RoleAdmin)).Delete("/", h.DeleteCategory)
	})
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.categories.List(r.Context(), offset, limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", ListResponse[types.Category]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "categoryID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	category, err := h.categories.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", category)
}

func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req types.Category
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	category, err := h.categories.Create(r.Context(), types.Category{Name: req.Name, Description: req.Description})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateRequest(r)
	writeSuccess(w, http.StatusCreated, "category created", category)
}

func (h *CategoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "categoryID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch services.CategoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	category, err := h.categories.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateRequest(r)
	writeSuccess(w, http.StatusOK, "category updated", category)
}

func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "categoryID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.categories.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateRequest(r)
	writeSuccess(w, http.StatusOK, "category deleted", nil)
}
