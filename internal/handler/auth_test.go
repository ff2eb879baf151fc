package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/handler"
)

// fakeGitHub stands in for auth.GitHubProvider.
type fakeGitHub struct {
	user    *auth.GitHubUser
	err     error
	gotCode string
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	f.gotCode = code
	return f.user, f.err
}

func newAuthHandler(h *harness, github handler.GitHubOAuth) *handler.AuthHandler {
	return handler.NewAuthHandler(h.auth, h.profiles, github, handler.CookieConfig{TTL: time.Hour}, h.logger)
}

type authBody struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Token string `json:"token"`
}

func TestAuthHandler_Signup(t *testing.T) {
	h := newHarness(t)
	ah := newAuthHandler(h, nil)

	rr := httptest.NewRecorder()
	ah.HandleSignup(rr, jsonRequest(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "Ada@Example.com",
		"password": "correct horse battery",
	}))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decode[authBody](t, rr)
	assert.Equal(t, "ada@example.com", body.User.Email)
	assert.NotContains(t, rr.Body.String(), "password")

	cookie := findCookie(rr, auth.TokenCookie)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, body.Token, cookie.Value)

	userID, err := h.tokens.Validate(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, body.User.ID, userID)

	// Same address again.
	rr = httptest.NewRecorder()
	ah.HandleSignup(rr, jsonRequest(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "ada@example.com",
		"password": "another password",
	}))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	ah.HandleSignup(rr, jsonRequest(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "bob@example.com",
		"password": "short",
	}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "password", decode[handler.ErrorResponse](t, rr).Field)
}

func TestAuthHandler_Login(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "ada@example.com")
	ah := newAuthHandler(h, nil)

	tests := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"correct", "ada@example.com", "correct horse battery", http.StatusOK},
		{"wrong password", "ada@example.com", "battery horse correct", http.StatusUnauthorized},
		{"unknown email", "nobody@example.com", "correct horse battery", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ah.HandleLogin(rr, jsonRequest(http.MethodPost, "/api/auth/login", "", map[string]string{
				"email":    tt.email,
				"password": tt.password,
			}))

			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.want == http.StatusOK, findCookie(rr, auth.TokenCookie) != nil)
		})
	}
}

func TestAuthHandler_GitHubLogin(t *testing.T) {
	h := newHarness(t)

	t.Run("not configured", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newAuthHandler(h, nil).HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("redirects with state", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newAuthHandler(h, &fakeGitHub{}).HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
		state := findCookie(rr, auth.StateCookie)
		require.NotNil(t, state)
		assert.NotEmpty(t, state.Value)

		loc, err := url.Parse(rr.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, state.Value, loc.Query().Get("state"))
	})
}

func callback(ah *handler.AuthHandler, query, cookieState string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+query, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: auth.StateCookie, Value: cookieState})
	}
	rr := httptest.NewRecorder()
	ah.HandleGitHubCallback(rr, req)
	return rr
}

func TestAuthHandler_GitHubCallback(t *testing.T) {
	t.Run("state mismatch", func(t *testing.T) {
		h := newHarness(t)
		gh := &fakeGitHub{user: &auth.GitHubUser{ID: 1, Login: "octo"}}

		for name, rr := range map[string]*httptest.ResponseRecorder{
			"no cookie": callback(newAuthHandler(h, gh), "state=abc&code=xyz", ""),
			"different": callback(newAuthHandler(h, gh), "state=abc&code=xyz", "other"),
		} {
			assert.Equal(t, http.StatusBadRequest, rr.Code, name)
		}
		assert.Empty(t, gh.gotCode, "code must not be exchanged")
	})

	t.Run("user denied", func(t *testing.T) {
		h := newHarness(t)
		rr := callback(newAuthHandler(h, &fakeGitHub{}), "state=abc&error=access_denied", "abc")

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/login?auth=denied", rr.Header().Get("Location"))
	})

	t.Run("exchange fails", func(t *testing.T) {
		h := newHarness(t)
		rr := callback(newAuthHandler(h, &fakeGitHub{err: errors.New("boom")}), "state=abc&code=xyz", "abc")

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Nil(t, findCookie(rr, auth.TokenCookie))
	})

	t.Run("signs in and sets the session", func(t *testing.T) {
		h := newHarness(t)
		gh := &fakeGitHub{user: &auth.GitHubUser{ID: 42, Login: "octocat", Name: "Octo Cat", Email: "octo@example.com"}}
		ah := newAuthHandler(h, gh)

		rr := callback(ah, "state=abc&code=xyz", "abc")

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
		assert.Equal(t, "xyz", gh.gotCode)

		session := findCookie(rr, auth.TokenCookie)
		require.NotNil(t, session)
		userID, err := h.tokens.Validate(session.Value)
		require.NoError(t, err)

		cleared := findCookie(rr, auth.StateCookie)
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge)

		// /api/me for the new account.
		rr = httptest.NewRecorder()
		ah.HandleMe(rr, jsonRequest(http.MethodGet, "/api/me", userID, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		me := decode[struct {
			User struct {
				Login string `json:"login"`
			} `json:"user"`
			Profile struct {
				FullName string `json:"full_name"`
				PlanType string `json:"plan_type"`
			} `json:"profile"`
		}](t, rr)
		assert.Equal(t, "octocat", me.User.Login)
		assert.Equal(t, "Octo Cat", me.Profile.FullName)
		assert.Equal(t, "free", me.Profile.PlanType)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	h := newHarness(t)
	rr := httptest.NewRecorder()
	newAuthHandler(h, nil).HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	cookie := findCookie(rr, auth.TokenCookie)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}
