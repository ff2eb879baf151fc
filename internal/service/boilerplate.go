package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

type BoilerplateInput struct {
	Title       string
	Description string
	Code        *string
	Languages   []string
	Tags        []string
	Files       []model.FileDescriptor
	IsFavorite  bool
}

// BoilerplateService mirrors SnippetService for project templates. The
// differences: a set of languages instead of one, no folders, no sharing.
type BoilerplateService struct {
	repo   repository.BoilerplateRepository
	plans  *PlanService
	logger *slog.Logger
}

func NewBoilerplateService(repo repository.BoilerplateRepository, plans *PlanService, logger *slog.Logger) *BoilerplateService {
	return &BoilerplateService{repo: repo, plans: plans, logger: logger}
}

func (s *BoilerplateService) Create(ctx context.Context, userID string, in BoilerplateInput) (*model.Boilerplate, error) {
	b, err := buildBoilerplate(userID, in)
	if err != nil {
		return nil, err
	}

	limit, err := s.plans.CheckBoilerplateQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateWithinLimit(ctx, b, limit); err != nil {
		if errors.Is(err, apperror.ErrLimitReached) {
			s.plans.ObserveRejection(err, "boilerplate", userID)
			return nil, err
		}
		s.logger.Error("failed to create boilerplate",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating boilerplate: %w", err)
	}

	s.logger.Info("boilerplate created",
		slog.String("id", b.ID),
		slog.String("user_id", userID),
		slog.Int("files", len(b.Files)),
	)
	return b, nil
}

func (s *BoilerplateService) Get(ctx context.Context, userID, id string) (*model.Boilerplate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "boilerplate ID is required")
	}
	return s.repo.GetByID(ctx, userID, id)
}

func (s *BoilerplateService) List(ctx context.Context, userID string, limit, offset int) ([]model.Boilerplate, error) {
	limit, offset = clampList(limit, offset)
	list, err := s.repo.List(ctx, userID, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list boilerplates", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing boilerplates: %w", err)
	}
	return list, nil
}

func (s *BoilerplateService) Update(ctx context.Context, userID, id string, in BoilerplateInput) (*model.Boilerplate, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := buildBoilerplate(userID, in)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating boilerplate: %w", err)
	}
	return s.repo.GetByID(ctx, userID, id)
}

func (s *BoilerplateService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("boilerplate deleted", slog.String("id", id))
	return nil
}

func (s *BoilerplateService) ToggleFavorite(ctx context.Context, userID, id string) (*model.Boilerplate, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetFavorite(ctx, userID, id, !existing.IsFavorite); err != nil {
		return nil, err
	}
	existing.IsFavorite = !existing.IsFavorite
	return existing, nil
}

func buildBoilerplate(userID string, in BoilerplateInput) (*model.Boilerplate, error) {
	title, description, err := validateText(in.Title, in.Description)
	if err != nil {
		return nil, err
	}

	languages, err := cleanTags("languages", in.Languages)
	if err != nil {
		return nil, err
	}
	if len(languages) == 0 {
		return nil, apperror.ValidationFailed("languages", "at least one language is required")
	}

	tags, err := cleanTags("tags", in.Tags)
	if err != nil {
		return nil, err
	}

	code, err := normalizeCode(in.Code)
	if err != nil {
		return nil, err
	}

	b := &model.Boilerplate{
		UserID:      userID,
		Title:       title,
		Description: description,
		Code:        code,
		Languages:   languages,
		Tags:        tags,
		Files:       in.Files,
		IsFavorite:  in.IsFavorite,
	}
	if b.Files == nil {
		b.Files = []model.FileDescriptor{}
	}
	if !b.HasContent() {
		return nil, apperror.ValidationFailed("code", "a boilerplate needs code or at least one file")
	}
	return b, nil
}
