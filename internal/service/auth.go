// Accounts come from two doors: email + password, and GitHub. Either way
// the account is born with a free-plan profile in the same transaction, and
// the caller leaves with a session token.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/mailer"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = auth.MaxPasswordBytes
)

// PlanLimits are the quotas a new free account starts with.
type PlanLimits struct {
	Snippets     int
	Boilerplates int
}

// DefaultPlanLimits matches the model defaults.
var DefaultPlanLimits = PlanLimits{
	Snippets:     model.DefaultSnippetLimit,
	Boilerplates: model.DefaultBoilerplateLimit,
}

// AuthService signs people up and in. mail may be nil; the welcome message
// is a courtesy and never blocks signup.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mail      mailer.Mailer
	limits    PlanLimits
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mail mailer.Mailer,
	limits PlanLimits,
	logger *slog.Logger,
) *AuthService {
	if limits.Snippets <= 0 {
		limits.Snippets = DefaultPlanLimits.Snippets
	}
	if limits.Boilerplates <= 0 {
		limits.Boilerplates = DefaultPlanLimits.Boilerplates
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mail:      mail,
		limits:    limits,
		logger:    logger,
	}
}

// AuthResult is a signed-in account and its fresh session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an email + password account with a free profile.
// A taken email is apperror.ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName, _, _ = strings.Cut(email, "@")
	}

	user := &model.User{Email: email, PasswordHash: hash}
	profile := s.newProfile(fullName, "")
	if err := s.users.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict("user email", email)
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	s.sendWelcome(ctx, user.Email, fullName)

	return s.issue(user)
}

// Login checks email + password. Every failure mode (unknown email, GitHub
// only account, wrong password) is the same 401 so the endpoint can't be
// used to probe which emails exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, invalid
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.Decoy(password)
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash unreadable", slog.String("userID", user.ID))
		}
		return nil, invalid
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub identity.
// The repository matches on GitHub id first, then on email (linking an
// existing password account), and otherwise creates user and profile.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, errors.New("service/auth: no GitHub identity to sign in")
	}

	githubID := ghUser.ID
	user := &model.User{
		GitHubID: &githubID,
		Login:    ghUser.Login,
		Email:    strings.ToLower(strings.TrimSpace(ghUser.Email)),
	}

	name := ghUser.Name
	if name == "" {
		name = ghUser.Login
	}
	profile := s.newProfile(name, ghUser.AvatarURL)

	if err := s.users.UpsertGitHub(ctx, user, profile); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("github sign-in",
		slog.String("userID", user.ID),
		slog.String("github_login", user.Login),
	)

	return s.issue(user)
}

// GetUserByID is used by /api/me after the middleware has validated the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("no user in session")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken resolves a session token to its user id.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) newProfile(fullName, avatarURL string) *model.Profile {
	p := model.NewFreeProfile("", fullName, avatarURL)
	p.SnippetLimit = s.limits.Snippets
	p.BoilerplateLimit = s.limits.Boilerplates
	return p
}

func (s *AuthService) sendWelcome(ctx context.Context, to, name string) {
	if s.mail == nil || to == "" {
		return
	}
	if err := s.mail.SendWelcome(ctx, to, name); err != nil {
		s.logger.Warn("welcome email failed",
			slog.String("error", err.Error()),
		)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "email must be a valid address")
	}
	return email, nil
}
