package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/service"
)

// GitHubOAuth is the part of auth.GitHubProvider the handler needs.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

const stateCookieAge = 10 * 60

// CookieConfig controls the session cookie.
type CookieConfig struct {
	// Secure should be true in production (HTTPS only).
	Secure bool
	TTL    time.Duration
}

// AuthHandler owns the session cookie. Signup and login speak JSON; the
// GitHub flow is browser redirects.
type AuthHandler struct {
	auth     *service.AuthService
	profiles *service.ProfileService
	github   GitHubOAuth // nil when GitHub sign-in is not configured
	cookie   CookieConfig
	logger   *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	profiles *service.ProfileService,
	github GitHubOAuth,
	cookie CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:     authService,
		profiles: profiles,
		github:   github,
		cookie:   cookie,
		logger:   logger,
	}
}

type signupRequest struct {
	Email    string `json:"email" validate:"notblank,email,max=254"`
	Password string `json:"password" validate:"min=8,max=72"`
	FullName string `json:"full_name" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"notblank"`
	Password string `json:"password" validate:"notblank"`
}

type authResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// HandleSignup: POST /api/auth/signup → 201 {user, token} and the cookie.
// A taken email is 409.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, authResponse{User: res.User, Token: res.Token})
}

// HandleLogin: POST /api/auth/login → 200 {user, token} and the cookie.
// Every failure is the same 401.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, authResponse{User: res.User, Token: res.Token})
}

// HandleGitHubLogin: GET /auth/github/login. Sends the browser to GitHub
// with a fresh state that is also pinned in a 10 minute cookie.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	state := auth.NewState()
	http.SetCookie(w, h.cookieFor(auth.StateCookie, state, stateCookieAge))
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback: GET /auth/github/callback?code=&state=
//
// The state cookie is cleared on every callback that gets past the state
// check, so a given state can complete at most one sign-in.
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()

	pinned, err := r.Cookie(auth.StateCookie)
	if err != nil || pinned.Value == "" || q.Get("state") != pinned.Value {
		h.logger.Warn("github callback rejected", slog.String("reason", "state mismatch"))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, h.cookieFor(auth.StateCookie, "", -1))

	if reason := q.Get("error"); reason != "" {
		h.logger.Info("github sign-in declined", slog.String("error", reason))
		http.Redirect(w, r, "/login?auth=denied", http.StatusSeeOther)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	identity, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), identity)
	if err != nil {
		h.logger.Error("github sign-in failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSession(w, res.Token)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HandleLogout: POST /api/auth/logout. Sessions are stateless, so this only
// expires the cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookieFor(auth.TokenCookie, "", -1))
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type meResponse struct {
	User    *model.User    `json:"user"`
	Profile *model.Profile `json:"profile"`
}

// HandleMe returns the signed-in user with their profile.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: user, Profile: profile})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, h.cookieFor(auth.TokenCookie, token, int(h.cookie.TTL.Seconds())))
}

// cookieFor builds the HttpOnly, SameSite=Lax cookies this handler sets.
// maxAge -1 deletes the cookie.
func (h *AuthHandler) cookieFor(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/dashboard"
	}
	return next
}
