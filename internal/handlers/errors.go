package handlers

import (
	"errors"
	"net/http"

	"github.com/newsdesk/apiserver/internal/oauth"
	"github.com/newsdesk/apiserver/internal/services"
)

type errorReply struct {
	err     error
	status  int
	marker  string
	message string
}

// errorReplies maps service errors to what the client sees. The first match
// wins, so more specific errors come first.
var errorReplies = []errorReply{
	{services.ErrMissingCredentials, http.StatusBadRequest, StatusFail, "MissingCredentials"},
	{services.ErrMissingFields, http.StatusBadRequest, StatusFail, "MissingFields"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, StatusFail, "InvalidCredentials"},
	{services.ErrAccountUnverified, http.StatusForbidden, StatusFail, "AccountUnverified"},
	{services.ErrAccountNotFound, http.StatusNotFound, StatusFail, "AccountNotFound"},
	{services.ErrDuplicateAccount, http.StatusConflict, StatusFail, "DuplicateAccount"},

	{services.ErrAccessTokenExpired, http.StatusUnauthorized, StatusAccessTokenExpired, "AccessTokenExpired"},
	{services.ErrAccessTokenInvalid, http.StatusUnauthorized, StatusFail, "AccessTokenInvalid"},
	{services.ErrRefreshTokenExpired, http.StatusUnauthorized, StatusRefreshTokenExpired, "RefreshTokenExpired"},
	{services.ErrRefreshTokenInvalid, http.StatusUnauthorized, StatusFail, "RefreshTokenInvalid"},
	{services.ErrAccountTokenInvalid, http.StatusBadRequest, StatusFail, "LinkInvalidOrExpired"},

	{services.ErrInsufficientRole, http.StatusForbidden, StatusFail, "InsufficientRole"},
	{services.ErrInsufficientPermission, http.StatusForbidden, StatusFail, "InsufficientPermission"},
	{services.ErrAdminImmutable, http.StatusForbidden, StatusFail, "AdminImmutable"},
	{services.ErrInvalidRole, http.StatusBadRequest, StatusFail, "InvalidRole"},
	{services.ErrNotAuthor, http.StatusNotFound, StatusFail, "NotAuthor"},

	{services.ErrOAuthProfileIncomplete, http.StatusBadRequest, StatusFail, "OAuthProfileIncomplete"},
	{services.ErrOAuthAuthenticationFailed, http.StatusUnauthorized, StatusFail, "OAuthAuthenticationFailed"},
	{oauth.ErrUnknownProvider, http.StatusNotFound, StatusFail, "UnknownProvider"},

	{services.ErrCategoryNotFound, http.StatusNotFound, StatusFail, "CategoryNotFound"},
	{services.ErrCategoryExists, http.StatusConflict, StatusFail, "CategoryExists"},
	{services.ErrCategoryInUse, http.StatusConflict, StatusFail, "CategoryInUse"},
	{services.ErrArticleNotFound, http.StatusNotFound, StatusFail, "ArticleNotFound"},
	{services.ErrMediaNotFound, http.StatusBadRequest, StatusFail, "MediaNotFound"},
}

// replyFor returns the mapped reply for err, if any.
func replyFor(err error) (errorReply, bool) {
	for _, reply := range errorReplies {
		if errors.Is(err, reply.err) {
			return reply, true
		}
	}
	return errorReply{}, false
}

// writeServiceError answers with the mapped reply for err, or a logged 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reply, ok := replyFor(err)
	if !ok {
		writeInternal(w, r, err)
		return
	}
	writeStatus(w, reply.status, reply.marker, reply.message)
}
