package services

import (
	"context"
	"errors"
	"strings"

	"github.com/newsdesk/apiserver/internal/oauth"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/internal/tokens"
	"github.com/newsdesk/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// Session is a freshly issued token pair and the account it belongs to.
type Session struct {
	AccessToken  tokens.Token
	RefreshToken tokens.Token
	Account      types.Account
}

// Login checks a password login and opens a session.
func (s *AccountService) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrAccountNotFound
		}
		return Session{}, err
	}

	if account.PasswordHash == "" {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !account.Verified {
		return Session{}, ErrAccountUnverified
	}

	return s.openSession(ctx, account)
}

// LoginWithProvider finds or creates the account behind an OAuth profile
// and opens a session. A profile whose email matches an existing account is
// linked to it.
func (s *AccountService) LoginWithProvider(ctx context.Context, profile oauth.Profile) (Session, error) {
	if profile.ProviderAccountID == "" || profile.DisplayName == "" {
		return Session{}, ErrOAuthProfileIncomplete
	}

	account, err := s.accounts.GetByProvider(ctx, profile.Provider, profile.ProviderAccountID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		account, err = s.linkOrCreate(ctx, profile)
		if err != nil {
			return Session{}, err
		}
	default:
		return Session{}, err
	}

	return s.openSession(ctx, account)
}

func (s *AccountService) linkOrCreate(ctx context.Context, profile oauth.Profile) (types.Account, error) {
	provider := profile.Provider
	subject := profile.ProviderAccountID

	if profile.Email != "" {
		existing, err := s.accounts.GetByEmail(ctx, profile.Email)
		if err == nil {
			// An unverified row's password was never proven to belong to the
			// email owner.
			if !existing.Verified {
				if err := s.sessions.DeleteByAccount(ctx, existing.ID); err != nil {
					return types.Account{}, err
				}
				existing.PasswordHash = ""
			}
			existing.Provider = &provider
			existing.ProviderAccountID = &subject
			existing.Verified = true
			return s.accounts.Update(ctx, existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return types.Account{}, err
		}
	}

	account := types.Account{
		Name:              profile.DisplayName,
		Verified:          true,
		Role:              types.RoleUser,
		Provider:          &provider,
		ProviderAccountID: &subject,
	}
	if profile.Email != "" {
		email := strings.ToLower(profile.Email)
		account.Email = &email
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Account{}, ErrDuplicateAccount
		}
		return types.Account{}, err
	}
	return created, nil
}

// Refresh rotates a refresh token. The presented token is consumed whether
// or not the rest of the rotation succeeds, so it can never be replayed.
func (s *AccountService) Refresh(ctx context.Context, raw string) (Session, error) {
	claims, err := s.issuer.ParseRefresh(raw)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return Session{}, ErrRefreshTokenExpired
		}
		return Session{}, ErrRefreshTokenInvalid
	}

	session, err := s.sessions.Consume(ctx, claims.ID, s.issuer.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrRefreshTokenInvalid
		}
		return Session{}, err
	}

	accountID, _ := claims.AccountID()
	if session.AccountID != accountID {
		return Session{}, ErrRefreshTokenInvalid
	}

	// Role and avatar come from the current row, not from the old token.
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return Session{}, err
	}
	return s.openSession(ctx, account)
}

// Logout forgets the session behind raw. Unusable tokens are ignored.
func (s *AccountService) Logout(ctx context.Context, raw string) error {
	claims, err := s.issuer.ParseRefresh(raw)
	if err != nil {
		return nil
	}
	return s.sessions.Delete(ctx, claims.ID)
}

func (s *AccountService) openSession(ctx context.Context, account types.Account) (Session, error) {
	access, err := s.issuer.IssueAccess(account.ID, account.Role)
	if err != nil {
		return Session{}, err
	}
	refresh, err := s.issuer.IssueRefresh(account.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.Create(ctx, types.RefreshSession{
		ID:        refresh.ID,
		AccountID: account.ID,
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return Session{}, err
	}
	return Session{AccessToken: access, RefreshToken: refresh, Account: account}, nil
}
