package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

const MaxFolderNameLength = 100

// DefaultFolderColor is used when a folder is created without one.
const DefaultFolderColor = "#6366f1"

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type FolderInput struct {
	Name        string
	Description string
	Color       string
}

// FolderService manages folders. Deleting a folder never deletes snippets:
// the repository detaches them in the same transaction.
type FolderService struct {
	repo   repository.FolderRepository
	logger *slog.Logger
}

func NewFolderService(repo repository.FolderRepository, logger *slog.Logger) *FolderService {
	return &FolderService{repo: repo, logger: logger}
}

func (s *FolderService) Create(ctx context.Context, userID string, in FolderInput) (*model.Folder, error) {
	folder, err := buildFolder(in)
	if err != nil {
		return nil, err
	}
	folder.UserID = userID

	if err := s.repo.Create(ctx, folder); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	s.logger.Info("folder created", slog.String("id", folder.ID), slog.String("user_id", userID))
	return folder, nil
}

// List returns the caller's folders with their snippet counts.
func (s *FolderService) List(ctx context.Context, userID string) ([]model.Folder, error) {
	folders, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

func (s *FolderService) Update(ctx context.Context, userID, id string, in FolderInput) (*model.Folder, error) {
	existing, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := buildFolder(in)
	if err != nil {
		return nil, err
	}
	existing.Name = updated.Name
	existing.Description = updated.Description
	existing.Color = updated.Color

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, userID, id)
}

func (s *FolderService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("folder deleted", slog.String("id", id))
	return nil
}

func buildFolder(in FolderInput) (*model.Folder, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "folder name is required")
	}
	if utf8.RuneCountInString(name) > MaxFolderNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("folder name must be %d characters or less", MaxFolderNameLength))
	}

	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = DefaultFolderColor
	}
	if !hexColor.MatchString(color) {
		return nil, apperror.ValidationFailed("color", "color must be a hex color like #aabbcc")
	}

	return &model.Folder{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Color:       strings.ToLower(color),
	}, nil
}
