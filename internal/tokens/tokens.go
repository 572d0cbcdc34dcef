// Package tokens issues and verifies the signed tokens used for sessions,
// account verification and password resets.
package tokens

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/newsdesk/apiserver/types"
)

var (
	// ErrExpired is returned for a correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other verification failure.
	ErrInvalid = errors.New("token invalid")
)

// Kind identifies the purpose a token was minted for. Each kind is signed
// with its own secret, so a token of one kind never verifies as another.
type Kind string

const (
	KindAccess       Kind = "access"
	KindRefresh      Kind = "refresh"
	KindVerification Kind = "verification"
	KindReset        Kind = "reset"
)

const (
	DefaultAccessTTL       = 15 * time.Minute
	DefaultRefreshTTL      = 7 * 24 * time.Hour
	DefaultVerificationTTL = 15 * time.Minute
	DefaultResetTTL        = 15 * time.Minute
)

// Config carries secret material and lifetimes. Zero TTLs take the defaults.
type Config struct {
	AccessSecret       string
	RefreshSecret      string
	VerificationSecret string
	ResetSecret        string

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Claims is the payload carried by every token kind. Role is only set on
// access tokens.
type Claims struct {
	Role types.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AccountID returns the subject as an account id.
func (c *Claims) AccountID() (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Subject))
	if err != nil || id < 1 {
		return 0, ErrInvalid
	}
	return id, nil
}

// Token is a signed token together with the id and expiry baked into it.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

type key struct {
	secret []byte
	ttl    time.Duration
}

// Service mints and verifies tokens. It holds no per-token state.
type Service struct {
	keys map[Kind]key
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService validates cfg and returns a ready Service. Every secret must be
// set and no two kinds may share one.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	entries := []struct {
		kind   Kind
		secret string
		ttl    time.Duration
		def    time.Duration
	}{
		{KindAccess, cfg.AccessSecret, cfg.AccessTTL, DefaultAccessTTL},
		{KindRefresh, cfg.RefreshSecret, cfg.RefreshTTL, DefaultRefreshTTL},
		{KindVerification, cfg.VerificationSecret, cfg.VerificationTTL, DefaultVerificationTTL},
		{KindReset, cfg.ResetSecret, cfg.ResetTTL, DefaultResetTTL},
	}

	s := &Service{
		keys: make(map[Kind]key, len(entries)),
		now:  time.Now,
	}
	seen := make(map[string]Kind, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.secret) == "" {
			return nil, errors.New(string(e.kind) + " token secret is required")
		}
		if other, ok := seen[e.secret]; ok {
			return nil, errors.New(string(e.kind) + " token secret must differ from " + string(other))
		}
		seen[e.secret] = e.kind

		ttl := e.ttl
		if ttl <= 0 {
			ttl = e.def
		}
		s.keys[e.kind] = key{secret: []byte(e.secret), ttl: ttl}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the configured lifetime of kind.
// Now is the service's clock. Callers checking token-bound state against
// expiry use it so they agree with verification.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) TTL(kind Kind) time.Duration {
	return s.keys[kind].ttl
}

func (s *Service) IssueAccess(accountID int, role types.Role) (Token, error) {
	return s.issue(KindAccess, accountID, role)
}

func (s *Service) IssueRefresh(accountID int) (Token, error) {
	return s.issue(KindRefresh, accountID, "")
}

func (s *Service) IssueVerification(accountID int) (Token, error) {
	return s.issue(KindVerification, accountID, "")
}

func (s *Service) IssueReset(accountID int) (Token, error) {
	return s.issue(KindReset, accountID, "")
}

func (s *Service) ParseAccess(raw string) (*Claims, error) {
	return s.parse(KindAccess, raw)
}

func (s *Service) ParseRefresh(raw string) (*Claims, error) {
	return s.parse(KindRefresh, raw)
}

func (s *Service) ParseVerification(raw string) (*Claims, error) {
	return s.parse(KindVerification, raw)
}

func (s *Service) ParseReset(raw string) (*Claims, error) {
	return s.parse(KindReset, raw)
}

func (s *Service) issue(kind Kind, accountID int, role types.Role) (Token, error) {
	k := s.keys[kind]
	now := s.now()
	expiresAt := now.Add(k.ttl)
	id := uuid.NewString()

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   strconv.Itoa(accountID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(k.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ID: id, ExpiresAt: expiresAt}, nil
}

func (s *Service) parse(kind Kind, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalid
	}
	k := s.keys[kind]

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return k.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		// Expiry is only reported once the signature has checked out.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if !token.Valid {
		return nil, ErrInvalid
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}
