package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

const (
	MaxFullNameLength = 100
	MaxBioLength      = 500
)

type ProfileInput struct {
	FullName  string
	AvatarURL string
	Bio       string
}

// ProfileService reads and edits the display half of an account. Plan
// fields are read-only here; only BillingService changes them.
type ProfileService struct {
	repo   repository.ProfileRepository
	logger *slog.Logger
}

func NewProfileService(repo repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, logger: logger}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileInput) (*model.Profile, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	fullName := strings.TrimSpace(in.FullName)
	if utf8.RuneCountInString(fullName) > MaxFullNameLength {
		return nil, apperror.ValidationFailed("full_name",
			fmt.Sprintf("full name must be %d characters or less", MaxFullNameLength))
	}
	bio := strings.TrimSpace(in.Bio)
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}
	avatar := strings.TrimSpace(in.AvatarURL)
	if avatar != "" {
		u, err := url.Parse(avatar)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperror.ValidationFailed("avatar_url", "avatar URL must be an http(s) URL")
		}
	}

	profile.FullName = fullName
	profile.Bio = bio
	profile.AvatarURL = avatar

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}
	s.logger.Info("profile updated", slog.String("user_id", userID))
	return profile, nil
}
