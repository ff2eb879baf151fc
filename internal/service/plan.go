package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/metrics"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

// PlanService answers "may this user create one more X?".
//
// QUOTA RULE:
//
//	allowed  iff  plan_type == "pro"  OR  count < limit
//
// The check here is advisory: it lets the API answer early and cheaply. The
// binding check is the guarded INSERT in the repository, which re-counts in
// the same statement, so two concurrent creates can't both squeeze past it.
type PlanService struct {
	profiles     repository.ProfileRepository
	snippets     repository.SnippetRepository
	boilerplates repository.BoilerplateRepository
	logger       *slog.Logger
}

func NewPlanService(
	profiles repository.ProfileRepository,
	snippets repository.SnippetRepository,
	boilerplates repository.BoilerplateRepository,
	logger *slog.Logger,
) *PlanService {
	return &PlanService{
		profiles:     profiles,
		snippets:     snippets,
		boilerplates: boilerplates,
		logger:       logger,
	}
}

// PlanStatus is what GET /api/user/plan returns.
type PlanStatus struct {
	Plan                 string `json:"plan"`
	PlanStatus           string `json:"planStatus"`
	SnippetCount         int    `json:"snippetCount"`
	SnippetLimit         int    `json:"snippetLimit"`
	CanCreateSnippet     bool   `json:"canCreateSnippet"`
	BoilerplateCount     int    `json:"boilerplateCount"`
	BoilerplateLimit     int    `json:"boilerplateLimit"`
	CanCreateBoilerplate bool   `json:"canCreateBoilerplate"`
}

func (s *PlanService) Status(ctx context.Context, userID string) (*PlanStatus, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	snippets, err := s.snippets.CountByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/plan: counting snippets: %w", err)
	}
	boilerplates, err := s.boilerplates.CountByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/plan: counting boilerplates: %w", err)
	}

	return &PlanStatus{
		Plan:                 profile.PlanType,
		PlanStatus:           profile.PlanStatus,
		SnippetCount:         snippets,
		SnippetLimit:         snippetLimit(profile),
		CanCreateSnippet:     allowed(profile, snippets, profile.SnippetLimit),
		BoilerplateCount:     boilerplates,
		BoilerplateLimit:     boilerplateLimit(profile),
		CanCreateBoilerplate: allowed(profile, boilerplates, profile.BoilerplateLimit),
	}, nil
}

// CheckSnippetQuota returns the limit to hand to the guarded insert, or
// apperror.ErrLimitReached if the user is already at it.
func (s *PlanService) CheckSnippetQuota(ctx context.Context, userID string) (int, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	count, err := s.snippets.CountByOwner(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/plan: counting snippets: %w", err)
	}
	if !allowed(profile, count, profile.SnippetLimit) {
		return 0, s.rejected("snippet", userID, profile.SnippetLimit)
	}
	return snippetLimit(profile), nil
}

func (s *PlanService) CheckBoilerplateQuota(ctx context.Context, userID string) (int, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	count, err := s.boilerplates.CountByOwner(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("service/plan: counting boilerplates: %w", err)
	}
	if !allowed(profile, count, profile.BoilerplateLimit) {
		return 0, s.rejected("boilerplate", userID, profile.BoilerplateLimit)
	}
	return boilerplateLimit(profile), nil
}

// ObserveRejection records a rejection that came from the guarded insert
// rather than from the advisory check (the concurrent-create case).
func (s *PlanService) ObserveRejection(err error, resource, userID string) {
	if errors.Is(err, apperror.ErrLimitReached) {
		metrics.RecordQuotaRejection(resource)
		s.logger.Info("quota reached at insert",
			slog.String("resource", resource),
			slog.String("user_id", userID),
		)
	}
}

func (s *PlanService) rejected(resource, userID string, limit int) error {
	metrics.RecordQuotaRejection(resource)
	s.logger.Info("quota reached",
		slog.String("resource", resource),
		slog.String("user_id", userID),
		slog.Int("limit", limit),
	)
	return apperror.LimitReached(resource, limit)
}

func allowed(p *model.Profile, count, limit int) bool {
	return p.IsPro() || count < limit
}

// Pro users are bounded only by the sentinel so the guarded insert never
// rejects them.
func snippetLimit(p *model.Profile) int {
	if p.IsPro() {
		return model.UnlimitedLimit
	}
	return p.SnippetLimit
}

func boilerplateLimit(p *model.Profile) int {
	if p.IsPro() {
		return model.UnlimitedLimit
	}
	return p.BoilerplateLimit
}
