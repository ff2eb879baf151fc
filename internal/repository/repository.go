// Package repository declares the storage interfaces the service layer
// depends on. The sqlite sub-package is the production implementation.
//
// Every method that touches user content takes the owner's id and filters on
// it; that filter is the only isolation between tenants.
package repository

import (
	"context"

	"github.com/sakif/snippet-vault/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type SnippetRepository interface {
	// CreateWithinLimit inserts the snippet only if the owner has fewer than
	// limit snippets, as a single statement. Returns apperror.ErrLimitReached
	// when the guard rejects the insert.
	CreateWithinLimit(ctx context.Context, snippet *model.Snippet, limit int) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Snippet, error)
	List(ctx context.Context, ownerID string, filter model.SnippetFilter) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, ownerID, id string) error
	SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// Share marks the snippet public. An existing public_id is kept; the
	// given one is only used when none is stored yet. Returns
	// apperror.ErrConflict if publicID collides with another snippet.
	Share(ctx context.Context, ownerID, id, publicID, publicURL string) (*model.Snippet, error)
	Unshare(ctx context.Context, ownerID, id string) (*model.Snippet, error)
	// GetPublic returns the snippet only if it is currently public.
	GetPublic(ctx context.Context, publicID string) (*model.Snippet, error)
	// PublicVersion stamps the current public state of a snippet and its
	// author's profile. The stamp changes whenever either row is written;
	// a snippet that is not public is NotFound.
	PublicVersion(ctx context.Context, publicID string) (string, error)
}

type BoilerplateRepository interface {
	CreateWithinLimit(ctx context.Context, b *model.Boilerplate, limit int) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Boilerplate, error)
	List(ctx context.Context, ownerID string, opts ListOptions) ([]model.Boilerplate, error)
	Update(ctx context.Context, b *model.Boilerplate) error
	Delete(ctx context.Context, ownerID, id string) error
	SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

type FolderRepository interface {
	Create(ctx context.Context, folder *model.Folder) error
	GetByID(ctx context.Context, ownerID, id string) (*model.Folder, error)
	List(ctx context.Context, ownerID string) ([]model.Folder, error)
	Update(ctx context.Context, folder *model.Folder) error
	// Delete detaches the folder's snippets (folder_id = NULL) and removes
	// the folder in one transaction.
	Delete(ctx context.Context, ownerID, id string) error
}

type UserRepository interface {
	// CreateWithProfile inserts the user and its free-plan profile atomically.
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error
	// UpsertGitHub finds the user by GitHub id, refreshing login/email, or
	// creates user + profile on first sign-in.
	UpsertGitHub(ctx context.Context, user *model.User, profile *model.Profile) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, profile *model.Profile) error
}

type PaymentRepository interface {
	// ApplyUpgrade switches the profile to pro/active and appends the
	// completed payment row in one transaction. A duplicate payment for
	// the same provider transaction returns apperror.ErrConflict and
	// leaves nothing changed.
	ApplyUpgrade(ctx context.Context, upgrade *model.PlanUpgrade) error
	// RecordPayment appends a ledger row without touching the profile.
	RecordPayment(ctx context.Context, payment *model.Payment) error
	ListPayments(ctx context.Context, userID string) ([]model.Payment, error)
}
