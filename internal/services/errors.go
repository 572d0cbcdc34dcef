package services

import (
	"errors"

	"github.com/newsdesk/apiserver/internal/oauth"
)

// Credential errors
var (
	ErrMissingCredentials = errors.New("missing credentials")       // 400
	ErrMissingFields      = errors.New("missing required fields")   // 400
	ErrInvalidCredentials = errors.New("invalid email or password") // 401
	ErrAccountUnverified  = errors.New("account not verified")      // 403
	ErrAccountNotFound    = errors.New("account not found")         // 404
	ErrDuplicateAccount   = errors.New("account already exists")    // 409
)

// Token errors
var (
	ErrAccessTokenExpired  = errors.New("access token expired")           // 401
	ErrAccessTokenInvalid  = errors.New("access token invalid")           // 401
	ErrRefreshTokenExpired = errors.New("refresh token expired")          // 401
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")          // 401
	ErrAccountTokenInvalid = errors.New("link is invalid or has expired") // 400
)

// Authorization errors
var (
	ErrInsufficientRole       = errors.New("insufficient role")            // 403
	ErrInsufficientPermission = errors.New("insufficient permission")      // 403
	ErrAdminImmutable         = errors.New("admin accounts are immutable") // 403
	ErrInvalidRole            = errors.New("invalid role")                 // 400
	ErrNotAuthor              = errors.New("account is not an author")     // 404
)

// OAuth errors
var (
	ErrOAuthProfileIncomplete    = oauth.ErrProfileIncomplete    // 400
	ErrOAuthAuthenticationFailed = oauth.ErrAuthenticationFailed // 401
)

// Content errors
var (
	ErrCategoryNotFound = errors.New("category not found")          // 404
	ErrCategoryExists   = errors.New("category already exists")     // 409
	ErrCategoryInUse    = errors.New("category still has articles") // 409
	ErrArticleNotFound  = errors.New("article not found")           // 404
	ErrMediaNotFound    = errors.New("media not found")             // 400
)
