package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trackd.sh/internal/derrors"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// GoogleUser is the subset of the userinfo response the dashboard needs.
type GoogleUser struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// GoogleOAuth exchanges authorization codes with Google's OAuth endpoints.
type GoogleOAuth struct {
	clientID     string
	clientSecret string
	redirectURL  string
	client       *http.Client

	// endpoint overrides, for tests
	tokenURL    string
	userInfoURL string
}

// NewGoogleOAuth creates an OAuth client. Configured reports false until
// both client ID and secret are set.
func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *GoogleOAuth {
	return &GoogleOAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		client:       &http.Client{Timeout: 15 * time.Second},
		tokenURL:     googleTokenURL,
		userInfoURL:  googleUserInfoURL,
	}
}

// Configured reports whether OAuth credentials are present.
func (g *GoogleOAuth) Configured() bool {
	return g.clientID != "" && g.clientSecret != ""
}

// ConsentURL builds the Google consent-screen redirect target.
func (g *GoogleOAuth) ConsentURL() string {
	params := url.Values{
		"client_id":     {g.clientID},
		"redirect_uri":  {g.redirectURL},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"access_type":   {"offline"},
	}
	return googleAuthURL + "?" + params.Encode()
}

// Exchange trades an authorization code for the user's profile.
func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	form := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {g.redirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindUnavailable, "token endpoint unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, derrors.Newf(derrors.KindInvalid, "failed to exchange code for tokens (status %d)", resp.StatusCode)
	}

	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to decode token response")
	}
	if tokens.AccessToken == "" {
		return nil, derrors.New(derrors.KindInvalid, "token response missing access_token")
	}

	return g.fetchUser(ctx, tokens.AccessToken)
}

func (g *GoogleOAuth) fetchUser(ctx context.Context, accessToken string) (*GoogleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to build userinfo request")
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", accessToken))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.KindUnavailable, "userinfo endpoint unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, derrors.Newf(derrors.KindInvalid, "failed to get user info (status %d)", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, derrors.Wrap(err, derrors.KindInternal, "failed to decode userinfo response")
	}
	return &user, nil
}
