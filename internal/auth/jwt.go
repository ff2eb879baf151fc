// Package auth covers who is calling: session tokens, password hashing,
// GitHub sign-in and the middleware that puts a user ID on the request.
//
// A session is a signed JWT carried in the HttpOnly "token" cookie. Scripts
// may send the same token as "Authorization: Bearer <jwt>". Nothing about a
// session is stored server side; the signature and the exp claim are the
// whole story, so signing out just clears the cookie.
//
// Session payload:
//
//	{"iss":"snippet-vault","aud":["session"],"sub":"<user id>","iat":...,"exp":...}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer          = "snippet-vault"
	sessionAudience = "session"

	// MinSecretLength guards against a placeholder JWT_SECRET reaching
	// production.
	MinSecretLength = 16

	DefaultTokenTTL = 24 * time.Hour
)

var (
	// ErrTokenExpired lets handlers say "sign in again" instead of
	// treating an old cookie like a forged one.
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: invalid token")
)

// TokenService signs and checks session tokens with one HMAC key.
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long a fresh session lasts. The session cookie uses it as Max-Age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate issues a session for userID lasting TTL().
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration issues a session with an explicit lifetime. A
// negative d yields a token that is already expired.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue a session without a user ID")
	}

	issued := s.now()
	payload := jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{sessionAudience},
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(d)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Validate returns the user ID of a genuine, unexpired session.
//
// Only HS256 is accepted, which rules out "alg":"none" and RS/HS key
// confusion. Issuer, audience and exp are all required.
func (s *TokenService) Validate(raw string) (string, error) {
	var payload jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(raw, &payload,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	case payload.Subject == "":
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return payload.Subject, nil
}
