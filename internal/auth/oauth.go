package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/rs/xid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// StateCookie remembers the state value between the redirect to GitHub and
// the callback. A callback whose state differs from the cookie is rejected.
const StateCookie = "oauth_state"

const githubAPI = "https://api.github.com"

// ErrNoGitHubIdentity means GitHub answered but gave us no usable account.
var ErrNoGitHubIdentity = errors.New("auth: GitHub returned no user id")

// GitHubUser is the identity a vault account is linked to. ID never changes
// for a GitHub account; Login can.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GitHubProvider runs the authorization code flow against GitHub. The
// client secret only ever leaves this process on the token exchange.
type GitHubProvider struct {
	oauth *oauth2.Config
	api   string
}

// NewGitHubProvider asks for read:user and user:email. callbackURL must be
// identical to the one registered on the GitHub OAuth app.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		api: githubAPI,
	}
}

// NewState returns an unguessable-enough value for the state parameter.
func NewState() string {
	return xid.New().String()
}

// AuthURL is where /auth/github/login sends the browser.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the GitHub identity behind it.
//
// A hidden profile email is filled from the primary verified address on
// /user/emails. Failing that lookup is not an error; the account is keyed
// on the GitHub id and the email stays empty.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: GitHub code exchange: %w", err)
	}
	client := p.oauth.Client(ctx, tok)

	var who GitHubUser
	if err := p.fetch(ctx, client, "/user", &who); err != nil {
		return nil, err
	}
	if who.ID == 0 {
		return nil, ErrNoGitHubIdentity
	}

	if who.Email == "" {
		var emails []githubEmail
		if err := p.fetch(ctx, client, "/user/emails", &emails); err == nil {
			who.Email = primaryVerified(emails)
		}
	}
	return &who, nil
}

func primaryVerified(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

func (p *GitHubProvider) fetch(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.api+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building GitHub request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: GitHub %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: GitHub %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: GitHub %s: decoding: %w", path, err)
	}
	return nil
}
