package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/newsdesk/apiserver/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookProvider signs users in with Facebook and reads the Graph profile.
type FacebookProvider struct {
	oauth2Config *oauth2.Config
	graphURL     string
}

func NewFacebook(cfg config.OAuthProviderConfig) *FacebookProvider {
	return newFacebook(cfg, endpoints.Facebook, facebookGraphURL)
}

func newFacebook(cfg config.OAuthProviderConfig, endpoint oauth2.Endpoint, graphURL string) *FacebookProvider {
	return &FacebookProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"email", "public_profile"},
		},
		graphURL: graphURL,
	}
}

func (p *FacebookProvider) Name() string { return ProviderFacebook }

func (p *FacebookProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type facebookUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (p *FacebookProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: exchange: %v", ErrAuthenticationFailed, err)
	}

	query := url.Values{"fields": {"id,name,email"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/me?"+query.Encode(), nil)
	if err != nil {
		return Profile{}, err
	}

	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: graph request: %v", ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: graph returned %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var user facebookUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Profile{}, fmt.Errorf("%w: decode profile: %v", ErrAuthenticationFailed, err)
	}

	return Profile{
		ProviderAccountID: user.ID,
		DisplayName:       user.Name,
		Email:             user.Email,
	}, nil
}
