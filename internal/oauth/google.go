package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/newsdesk/apiserver/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleIssuer  = "https://accounts.google.com"
	googleKeysURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// GoogleProvider signs users in with Google and trusts the id_token claims.
type GoogleProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
}

// NewGoogle builds the provider without contacting Google; signing keys are
// fetched lazily on the first verification.
func NewGoogle(ctx context.Context, cfg config.OAuthProviderConfig) *GoogleProvider {
	keySet := oidc.NewRemoteKeySet(ctx, googleKeysURL)
	verifier := oidc.NewVerifier(googleIssuer, keySet, &oidc.Config{ClientID: cfg.ClientID})
	return newGoogle(cfg, endpoints.Google, verifier)
}

func newGoogle(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: verifier,
	}
}

func (p *GoogleProvider) Name() string { return ProviderGoogle }

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: exchange: %v", ErrAuthenticationFailed, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Profile{}, fmt.Errorf("%w: missing id_token", ErrAuthenticationFailed)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: verify id_token: %v", ErrAuthenticationFailed, err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return Profile{}, errors.Join(ErrAuthenticationFailed, err)
	}

	profile := Profile{
		ProviderAccountID: claims.Subject,
		DisplayName:       claims.Name,
	}
	if claims.EmailVerified {
		profile.Email = claims.Email
	}
	return profile, nil
}
