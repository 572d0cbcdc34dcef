package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
)

// ArticleHandler provides HTTP handlers for articles.
type ArticleHandler struct {
	articles *services.ArticleService
	cache    *cache.ResponseCache
}

func NewArticleHandler(articles *services.ArticleService, responses *cache.ResponseCache) *ArticleHandler {
	return &ArticleHandler{articles: articles, cache: responses}
}

// ArticleRouter registers article routes on the given router. Writes need an
// author or admin; the per-author permission triple is checked by the service.
func ArticleRouter(r chi.Router, h *ArticleHandler, guard *Guard) {
	writers := RequireRole(types.RoleAuthor, types.RoleAdmin)

	r.With(h.cache.Middleware()).Get("/", h.ListArticles)
	r.With(guard.RequireAuth, writers).Post("/", h.CreateArticle)
	r.Route("/{articleID}", func(r chi.Router) {
		r.With(h.cache.Middleware()).Get("/", h.GetArticle)
		r.With(guard.RequireAuth, writers).Patch("/", h.UpdateArticle)
		r.With(guard.RequireAuth, writers).Delete("/", h.DeleteArticle)
	})
}

func actorFrom(r *http.Request) services.Actor {
	auth, _ := AuthFromContext(r.Context())
	return services.Actor{AccountID: auth.AccountID, Role: auth.Role}
}

func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	categoryID, err := parseOptionalInt(query.Get("category"))
	if err != nil || categoryID < 0 {
		writeFail(w, http.StatusBadRequest, "invalid category")
		return
	}
	authorID, err := parseOptionalInt(query.Get("author"))
	if err != nil || authorID < 0 {
		writeFail(w, http.StatusBadRequest, "invalid author")
		return
	}

	items, total, err := h.articles.List(r.Context(), types.ArticleFilter{CategoryID: categoryID, AuthorID: authorID}, offset, limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", ListResponse[types.Article]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "articleID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	article, err := h.articles.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", article)
}

func (h *ArticleHandler) CreateArticle(w http.ResponseWriter, r *http.Request) {
	var in services.ArticleInput
	if err := decodeJSON(r, &in); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	article, err := h.articles.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateRequest(r)
	writeSuccess(w, http.StatusCreated, "article created", article)
}

func (h *ArticleHandler) UpdateArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "articleID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var in services.ArticleInput
	if err := decodeJSON(r, &in); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	article, err := h.articles.Update(r.Context(), actorFrom(r), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateRequest(r)
	writeSuccess(w, http.StatusOK, "article updated", article)
}

func (h *ArticleHandler) DeleteArticle(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "articleID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.articles.Delete(r.Context(), actorFrom(r), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateRequest(r)
	writeSuccess(w, http.StatusOK, "article deleted", nil)
}
