package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/newsdesk/apiserver/internal/cache"
	"github.com/newsdesk/apiserver/internal/services"
	"github.com/newsdesk/apiserver/types"
)

const (
	maxAvatarBytes  = 5 << 20
	formFieldAvatar = "avatar"
)

// Cache prefixes touched by writes outside their own collection.
const (
	usersBasePath    = "/api/v1/users"
	articlesBasePath = "/api/v1/articles"
)

// UserHandler serves account administration and the caller's own profile.
type UserHandler struct {
	accounts    *services.AccountService
	permissions *services.PermissionsRegistry
	cache       *cache.ResponseCache
}

func NewUserHandler(accounts *services.AccountService, permissions *services.PermissionsRegistry, responses *cache.ResponseCache) *UserHandler {
	return &UserHandler{
		accounts:    accounts,
		permissions: permissions,
		cache:       responses,
	}
}

// UserRouter registers user routes on the given router. Every route needs
// an access token.
func UserRouter(r chi.Router, h *UserHandler, guard *Guard) {
	r.Use(guard.RequireAuth)

	r.With(RequireRole(types.RoleAdmin), h.cache.Middleware()).Get("/", h.ListUsers)
	r.Get("/me", h.Me)
	r.With(RequireRole(types.RoleAuthor)).Patch("/me/avatar", h.UpdateAvatar)
	r.Route("/{userID}", func(r chi.Router) {
		r.Delete("/", h.DeleteUser)
		r.With(RequireRole(types.RoleAdmin)).Patch("/role", h.ChangeRole)
		r.With(RequireRole(types.RoleAdmin)).Get("/permissions", h.GetPermissions)
		r.With(RequireRole(types.RoleAdmin)).Patch("/permissions", h.UpdatePermissions)
	})
}

type ChangeRoleRequest struct {
	Role types.Role `json:"role"`
}

// MeResponse is the caller's account, with the permission triple for authors.
type MeResponse struct {
	Account     types.Account            `json:"account"`
	Permissions *types.AuthorPermissions `json:"permissions,omitempty"`
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.accounts.List(r.Context(), offset, limit)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", ListResponse[types.Account]{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())
	account, err := h.accounts.Get(r.Context(), auth.AccountID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := MeResponse{Account: account}
	if account.Role == types.RoleAuthor {
		perms, err := h.permissions.Get(r.Context(), account.ID)
		if err != nil && !errors.Is(err, services.ErrNotAuthor) {
			writeInternal(w, r, err)
			return
		}
		if err == nil {
			resp.Permissions = &perms
		}
	}
	writeSuccess(w, http.StatusOK, "", resp)
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	auth, _ := AuthFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+(1<<20))
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeFail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	data, err := readFileLimited(file, maxAvatarBytes)
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		writeFail(w, http.StatusBadRequest, "avatar must be an image")
		return
	}

	account, err := h.accounts.SetAvatar(r.Context(), auth.AccountID, services.AvatarUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateByPrefix(usersBasePath)
	writeSuccess(w, http.StatusOK, "avatar updated", account.Public())
}

func (h *UserHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var req ChangeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.accounts.ChangeRole(r.Context(), id, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateByPrefix(usersBasePath)
	writeSuccess(w, http.StatusOK, "role updated", account.Public())
}

func (h *UserHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	perms, err := h.permissions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", perms)
}

func (h *UserHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch types.PermissionsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	perms, err := h.permissions.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.cache.InvalidateByPrefix(usersBasePath)
	writeSuccess(w, http.StatusOK, "permissions updated", perms)
}

// DeleteUser removes an account. Admins may delete anyone but another
// admin; everyone else only themselves.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "userID")
	if err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}
	auth, _ := AuthFromContext(r.Context())
	if auth.Role != types.RoleAdmin && auth.AccountID != id {
		writeServiceError(w, r, services.ErrInsufficientRole)
		return
	}

	if err := h.accounts.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Articles of the account go with it.
	h.cache.InvalidateByPrefix(usersBasePath)
	h.cache.InvalidateByPrefix(articlesBasePath)
	writeSuccess(w, http.StatusOK, "account deleted", nil)
}
