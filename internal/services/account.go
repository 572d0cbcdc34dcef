package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/newsdesk/apiserver/internal/logging"
	"github.com/newsdesk/apiserver/internal/mq"
	"github.com/newsdesk/apiserver/internal/storage"
	"github.com/newsdesk/apiserver/internal/store"
	"github.com/newsdesk/apiserver/internal/tokens"
	"github.com/newsdesk/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id int) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	GetByProvider(ctx context.Context, provider, subject string) (types.Account, error)
	List(ctx context.Context, offset, limit int) ([]types.Account, int, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Update(ctx context.Context, account types.Account) (types.Account, error)
	Delete(ctx context.Context, id int) error
	ChangeRole(ctx context.Context, id int, fn store.RoleChangeFunc) (types.Account, error)
}

// SessionRepository defines persistence operations for refresh sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.RefreshSession) error
	Consume(ctx context.Context, id string, now time.Time) (types.RefreshSession, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccount(ctx context.Context, accountID int) error
}

// TokenRepository defines persistence operations for single-use account tokens.
type TokenRepository interface {
	Put(ctx context.Context, token types.AccountToken) error
	Exists(ctx context.Context, accountID int, purpose types.TokenPurpose, value string) (bool, error)
	Consume(ctx context.Context, accountID int, purpose types.TokenPurpose, value string) error
}

// EventPublisher hands account mail requests to the broker.
type EventPublisher interface {
	PublishAccountEvent(ctx context.Context, ev mq.AccountEvent) error
}

// AccountDeps bundles the collaborators of AccountService.
type AccountDeps struct {
	Accounts    AccountRepository
	Sessions    SessionRepository
	Tokens      TokenRepository
	Permissions *PermissionsRegistry
	Issuer      *tokens.Service
	Events      EventPublisher
	Media       *storage.Storage
	// BaseURL prefixes the links sent in verification and reset mails.
	BaseURL string
}

// AccountService encapsulates account and session use-cases.
type AccountService struct {
	accounts    AccountRepository
	sessions    SessionRepository
	tokens      TokenRepository
	permissions *PermissionsRegistry
	issuer      *tokens.Service
	events      EventPublisher
	media       *storage.Storage
	baseURL     string
}

func NewAccountService(deps AccountDeps) *AccountService {
	return &AccountService{
		accounts:    deps.Accounts,
		sessions:    deps.Sessions,
		tokens:      deps.Tokens,
		permissions: deps.Permissions,
		issuer:      deps.Issuer,
		events:      deps.Events,
		media:       deps.Media,
		baseURL:     strings.TrimRight(deps.BaseURL, "/"),
	}
}

// RegisterInput is the payload of a password registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an unverified account and requests a verification mail.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return types.Account{}, ErrMissingCredentials
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return types.Account{}, fmt.Errorf("%w: invalid email", ErrMissingCredentials)
	}
	if len(in.Password) < minPasswordLength {
		return types.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrMissingCredentials, minPasswordLength)
	}

	if _, err := s.accounts.GetByEmail(ctx, in.Email); err == nil {
		return types.Account{}, ErrDuplicateAccount
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Account{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.Account{}, err
	}

	email := in.Email
	account, err := s.accounts.Create(ctx, types.Account{
		Name:         in.Name,
		Email:        &email,
		PasswordHash: string(hashed),
		Role:         types.RoleUser,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Account{}, ErrDuplicateAccount
		}
		return types.Account{}, err
	}

	if err := s.sendAccountLink(ctx, account, types.PurposeVerification); err != nil {
		logging.FromContext(ctx).Warn("verification mail not queued", "account_id", account.ID, "error", err)
	}
	return account, nil
}

// VerifyAccount redeems a verification link.
func (s *AccountService) VerifyAccount(ctx context.Context, raw string) (types.Account, error) {
	claims, err := s.issuer.ParseVerification(raw)
	if err != nil {
		return types.Account{}, ErrAccountTokenInvalid
	}
	accountID, _ := claims.AccountID()

	if err := s.tokens.Consume(ctx, accountID, types.PurposeVerification, raw); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountTokenInvalid
		}
		return types.Account{}, err
	}

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return types.Account{}, err
	}
	if account.Verified {
		return account, nil
	}
	account.Verified = true
	return s.accounts.Update(ctx, account)
}

// ForgetPassword requests a password reset mail for email.
func (s *AccountService) ForgetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrMissingCredentials
	}
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return s.sendAccountLink(ctx, account, types.PurposeResetPassword)
}

// CheckResetToken reports which account an outstanding reset link belongs to.
func (s *AccountService) CheckResetToken(ctx context.Context, raw string) (int, error) {
	claims, err := s.issuer.ParseReset(raw)
	if err != nil {
		return 0, ErrAccountTokenInvalid
	}
	accountID, _ := claims.AccountID()
	ok, err := s.tokens.Exists(ctx, accountID, types.PurposeResetPassword, raw)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrAccountTokenInvalid
	}
	return accountID, nil
}

// ResetPassword redeems a reset link, stores the new password and ends every
// session of the account.
func (s *AccountService) ResetPassword(ctx context.Context, raw, password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrMissingCredentials, minPasswordLength)
	}
	claims, err := s.issuer.ParseReset(raw)
	if err != nil {
		return ErrAccountTokenInvalid
	}
	accountID, _ := claims.AccountID()

	if err := s.tokens.Consume(ctx, accountID, types.PurposeResetPassword, raw); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountTokenInvalid
		}
		return err
	}

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	account.PasswordHash = string(hashed)
	// The link proves control of the mailbox.
	account.Verified = true
	if _, err := s.accounts.Update(ctx, account); err != nil {
		return err
	}
	return s.sessions.DeleteByAccount(ctx, accountID)
}

func (s *AccountService) sendAccountLink(ctx context.Context, account types.Account, purpose types.TokenPurpose) error {
	if account.Email == nil {
		return errors.New("account has no email")
	}

	var (
		tok       tokens.Token
		err       error
		eventType mq.EventType
		link      string
	)
	switch purpose {
	case types.PurposeVerification:
		tok, err = s.issuer.IssueVerification(account.ID)
		eventType = mq.EventVerificationRequested
		link = s.baseURL + "/auth/verify-account?" + url.Values{"verificationToken": {tok.Value}}.Encode()
	case types.PurposeResetPassword:
		tok, err = s.issuer.IssueReset(account.ID)
		eventType = mq.EventPasswordResetRequested
		link = s.baseURL + "/auth/reset-password?" + url.Values{"token": {tok.Value}}.Encode()
	default:
		return fmt.Errorf("unknown token purpose %q", purpose)
	}
	if err != nil {
		return err
	}

	if err := s.tokens.Put(ctx, types.AccountToken{
		AccountID: account.ID,
		Purpose:   purpose,
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
	}); err != nil {
		return err
	}

	return s.events.PublishAccountEvent(ctx, mq.AccountEvent{
		Type:      eventType,
		AccountID: account.ID,
		Email:     *account.Email,
		Name:      account.Name,
		Link:      link,
	})
}

func (s *AccountService) Get(ctx context.Context, id int) (types.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (s *AccountService) List(ctx context.Context, offset, limit int) ([]types.Account, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.accounts.List(ctx, offset, limit)
}

// ChangeRole moves an account between user and author. The permission row
// and avatar follow the role in the same transaction; admins never change.
func (s *AccountService) ChangeRole(ctx context.Context, id int, role types.Role) (types.Account, error) {
	if role != types.RoleUser && role != types.RoleAuthor {
		return types.Account{}, ErrInvalidRole
	}

	var droppedAvatar *string
	account, err := s.accounts.ChangeRole(ctx, id, func(ctx context.Context, tx store.RoleTx, current types.Account) (types.Role, error) {
		switch {
		case current.Role == types.RoleAdmin:
			return "", ErrAdminImmutable
		case current.Role == role:
			return current.Role, nil
		case current.Role == types.RoleUser && role == types.RoleAuthor:
			if err := s.permissions.GrantOnPromotion(ctx, tx, current.ID); err != nil {
				return "", err
			}
		case current.Role == types.RoleAuthor && role == types.RoleUser:
			if err := s.permissions.RevokeOnDemotion(ctx, tx, current.ID); err != nil {
				return "", err
			}
			droppedAvatar = current.Avatar
		}
		return role, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Account{}, ErrAccountNotFound
		}
		return types.Account{}, err
	}

	if droppedAvatar != nil {
		s.removeMedia(ctx, *droppedAvatar)
	}
	return account, nil
}

// Delete removes an account. Admin accounts cannot be deleted.
func (s *AccountService) Delete(ctx context.Context, id int) error {
	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if account.Role == types.RoleAdmin {
		return ErrAdminImmutable
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if account.Avatar != nil {
		s.removeMedia(ctx, *account.Avatar)
	}
	return nil
}

// AvatarUpload is an image to store as an author's avatar.
type AvatarUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SetAvatar stores the upload and points the author's avatar at it.
func (s *AccountService) SetAvatar(ctx context.Context, id int, upload AvatarUpload) (types.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return types.Account{}, err
	}
	if account.Role != types.RoleAuthor {
		return types.Account{}, ErrInsufficientRole
	}

	key := fmt.Sprintf("avatars/%d/%s%s", id, uuid.NewString(), strings.ToLower(path.Ext(upload.Filename)))
	mediaURL, err := s.media.Put(ctx, key, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return types.Account{}, fmt.Errorf("store avatar: %w", err)
	}

	previous := account.Avatar
	account.Avatar = &mediaURL
	updated, err := s.accounts.Update(ctx, account)
	if err != nil {
		s.removeMedia(ctx, mediaURL)
		return types.Account{}, err
	}
	if previous != nil {
		s.removeMedia(ctx, *previous)
	}
	return updated, nil
}

// removeMedia deletes an object after the database already let go of it.
// Failures leave an orphan object behind and are only logged.
func (s *AccountService) removeMedia(ctx context.Context, mediaURL string) {
	if s.media == nil {
		return
	}
	if err := s.media.DeleteURL(ctx, mediaURL); err != nil {
		logging.FromContext(ctx).Warn("media not removed", "url", mediaURL, "error", err)
	}
}

// EnsureAdmin creates a verified admin account unless email is already
// registered. Admins cannot be created any other way.
func (s *AccountService) EnsureAdmin(ctx context.Context, name, email, password string) (types.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < minPasswordLength {
		return types.Account{}, ErrMissingCredentials
	}
	existing, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.Account{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.Account{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}
	return s.accounts.Create(ctx, types.Account{
		Name:         strings.TrimSpace(name),
		Email:        &email,
		PasswordHash: string(hashed),
		Verified:     true,
		Role:         types.RoleAdmin,
	})
}
