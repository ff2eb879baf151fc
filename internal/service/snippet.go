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

// PublicCache is the read-through cache in front of public snippet reads.
// Entries carry the repository version stamp they were built under.
// *cache.PublicSnippetCache implements it; a nil one disables caching.
type PublicCache interface {
	Get(ctx context.Context, publicID string) (view *model.PublicSnippet, version string, ok bool)
	Set(ctx context.Context, version string, view *model.PublicSnippet)
	Invalidate(ctx context.Context, publicID string)
}

// SnippetInput is the writable part of a snippet. Create and Update (PUT)
// both take the full set; there is no partial update.
type SnippetInput struct {
	Title       string
	Description string
	Code        *string
	Language    string
	Tags        []string
	Files       []model.FileDescriptor
	FolderID    *string
	IsFavorite  bool
}

// SnippetService handles business logic for code snippets.
//
// STRUCT FIELDS:
// - repo, folders: the database interfaces (injected, not created here)
// - plans: quota checks before create
// - cache: dropped entries on update/delete so a stale public view never lingers
// - logger: for structured logging of business events
type SnippetService struct {
	repo    repository.SnippetRepository
	folders repository.FolderRepository
	plans   *PlanService
	cache   PublicCache
	logger  *slog.Logger
}

func NewSnippetService(
	repo repository.SnippetRepository,
	folders repository.FolderRepository,
	plans *PlanService,
	cache PublicCache,
	logger *slog.Logger,
) *SnippetService {
	return &SnippetService{
		repo:    repo,
		folders: folders,
		plans:   plans,
		cache:   cache,
		logger:  logger,
	}
}

// Create validates and saves a new snippet.
//
// ORDER MATTERS:
//  1. Validate input (400s never count against the quota)
//  2. Check the folder belongs to the caller
//  3. Advisory quota check (fast LIMIT_REACHED without a write)
//  4. Guarded insert: the count is re-checked inside the INSERT itself
func (s *SnippetService) Create(ctx context.Context, userID string, in SnippetInput) (*model.Snippet, error) {
	snippet, err := s.build(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	limit, err := s.plans.CheckSnippetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateWithinLimit(ctx, snippet, limit); err != nil {
		if errors.Is(err, apperror.ErrLimitReached) {
			s.plans.ObserveRejection(err, "snippet", userID)
			return nil, err
		}
		s.logger.Error("failed to create snippet",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("user_id", userID),
	)
	return snippet, nil
}

// Get returns the caller's snippet. Someone else's snippet is NotFound.
func (s *SnippetService) Get(ctx context.Context, userID, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	return s.repo.GetByID(ctx, userID, id)
}

// List returns the caller's snippets, newest first.
func (s *SnippetService) List(ctx context.Context, userID string, filter model.SnippetFilter) ([]model.Snippet, error) {
	filter.Limit, filter.Offset = clampList(filter.Limit, filter.Offset)
	filter.Tag = strings.ToLower(strings.TrimSpace(filter.Tag))
	filter.Language = strings.ToLower(strings.TrimSpace(filter.Language))
	filter.Query = strings.TrimSpace(filter.Query)

	snippets, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update replaces the writable fields. Sharing state is untouched: use
// ShareService for that.
func (s *SnippetService) Update(ctx context.Context, userID, id string, in SnippetInput) (*model.Snippet, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.build(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.UserID = existing.UserID
	updated.CreatedAt = existing.CreatedAt

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update snippet",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.invalidate(ctx, existing)
	return s.repo.GetByID(ctx, userID, id)
}

// Delete removes the snippet. Its public link, if any, stops resolving.
func (s *SnippetService) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.invalidate(ctx, existing)
	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}

// ToggleFavorite flips is_favorite and returns the new snippet.
func (s *SnippetService) ToggleFavorite(ctx context.Context, userID, id string) (*model.Snippet, error) {
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

// build validates input into a new, unsaved snippet.
func (s *SnippetService) build(ctx context.Context, userID string, in SnippetInput) (*model.Snippet, error) {
	title, description, err := validateText(in.Title, in.Description)
	if err != nil {
		return nil, err
	}

	language := strings.ToLower(strings.TrimSpace(in.Language))
	if language == "" {
		return nil, apperror.ValidationFailed("language", "language is required")
	}
	if len(language) > MaxLanguageLength {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("language must be %d characters or less", MaxLanguageLength))
	}

	code, err := normalizeCode(in.Code)
	if err != nil {
		return nil, err
	}

	tags, err := cleanTags("tags", in.Tags)
	if err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		UserID:      userID,
		Title:       title,
		Description: description,
		Code:        code,
		Language:    language,
		Tags:        tags,
		Files:       in.Files,
		IsFavorite:  in.IsFavorite,
	}
	if snippet.Files == nil {
		snippet.Files = []model.FileDescriptor{}
	}
	if !snippet.HasContent() {
		return nil, apperror.ValidationFailed("code", "a snippet needs code or at least one file")
	}

	if in.FolderID != nil && strings.TrimSpace(*in.FolderID) != "" {
		folderID := strings.TrimSpace(*in.FolderID)
		if _, err := s.folders.GetByID(ctx, userID, folderID); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, apperror.ValidationFailed("folder_id", "folder does not exist")
			}
			return nil, err
		}
		snippet.FolderID = &folderID
	}

	return snippet, nil
}

func (s *SnippetService) invalidate(ctx context.Context, snippet *model.Snippet) {
	if s.cache != nil && snippet.PublicID != nil {
		s.cache.Invalidate(ctx, *snippet.PublicID)
	}
}
