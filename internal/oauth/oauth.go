// Package oauth turns a provider authorization code into an identity profile.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

var (
	ErrUnknownProvider      = errors.New("unknown oauth provider")
	ErrAuthenticationFailed = errors.New("oauth authentication failed")
	ErrProfileIncomplete    = errors.New("oauth profile incomplete")
)

// Profile is the identity a provider vouches for. Email is empty when the
// provider did not share a verified address.
type Profile struct {
	Provider          string
	ProviderAccountID string
	DisplayName       string
	Email             string
}

// Provider runs the authorization code flow against one identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Profile, error)
}

// Bridge dispatches to the configured providers by name.
type Bridge struct {
	providers map[string]Provider
}

func NewBridge(providers ...Provider) *Bridge {
	b := &Bridge{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		b.providers[p.Name()] = p
	}
	return b
}

// Enabled reports whether name has a configured provider.
func (b *Bridge) Enabled(name string) bool {
	_, ok := b.providers[name]
	return ok
}

func (b *Bridge) AuthCodeURL(name, state string) (string, error) {
	p, ok := b.providers[name]
	if !ok {
		return "", ErrUnknownProvider
	}
	return p.AuthCodeURL(state), nil
}

// Exchange redeems code with the named provider. Failures of the exchange
// itself wrap ErrAuthenticationFailed; a profile without an id or display
// name yields ErrProfileIncomplete.
func (b *Bridge) Exchange(ctx context.Context, name, code string) (Profile, error) {
	p, ok := b.providers[name]
	if !ok {
		return Profile{}, ErrUnknownProvider
	}
	if strings.TrimSpace(code) == "" {
		return Profile{}, fmt.Errorf("%w: missing authorization code", ErrAuthenticationFailed)
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, ErrProfileIncomplete) || errors.Is(err, ErrAuthenticationFailed) {
			return Profile{}, err
		}
		return Profile{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	profile.Provider = name
	profile.ProviderAccountID = strings.TrimSpace(profile.ProviderAccountID)
	profile.DisplayName = strings.TrimSpace(profile.DisplayName)
	profile.Email = strings.TrimSpace(profile.Email)
	if profile.ProviderAccountID == "" || profile.DisplayName == "" {
		return Profile{}, ErrProfileIncomplete
	}
	return profile, nil
}

// NewState returns an unguessable value for the state parameter.
func NewState() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
