package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// TokenCookie carries the session JWT. It is HttpOnly, so page scripts
// never see it.
const TokenCookie = "token"

type ctxKey struct{}

// WithUserID attaches an authenticated user to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext reports the signed-in user, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id, id != ""
}

// RequireAuth guards the JSON API. Requests without a valid session get a
// 401 in the same envelope the handlers use for errors.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return gate(tokens, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
	})
}

// RequirePageAuth guards HTML pages. Anonymous visitors are sent to the
// login page, which returns them to where they started.
func RequirePageAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return gate(tokens, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
	})
}

// OptionalAuth identifies the caller when it can and lets everyone through.
// A stale or forged cookie is treated as no cookie.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := sessionUser(r, tokens); err == nil {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func gate(tokens *TokenService, deny http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := sessionUser(r, tokens)
			if err != nil {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// sessionUser validates the bearer header when present, else the cookie.
func sessionUser(r *http.Request, tokens *TokenService) (string, error) {
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return tokens.Validate(strings.TrimSpace(bearer))
	}
	c, err := r.Cookie(TokenCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(c.Value)
}
