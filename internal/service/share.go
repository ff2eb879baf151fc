package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

const (
	// PublicIDLength is 10 base-62 characters: ~59 bits, far past guessable.
	PublicIDLength = 10
	// shareAttempts bounds retries when a freshly minted id collides.
	shareAttempts = 5
)

const publicIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ShareService manages the private → public lifecycle of snippets.
//
// STATE MACHINE:
//
//	private ──Share──▶ public ──Unshare──▶ private (public_id kept)
//	   ▲                                      │
//	   └───────────── Share again ◀───────────┘ (same public_id, same URL)
//
// A public_id is minted at most once per snippet. The repository's
// COALESCE(public_id, ?) makes that hold even when two Share calls race.
type ShareService struct {
	snippets repository.SnippetRepository
	profiles repository.ProfileRepository
	cache    PublicCache
	siteURL  string
	logger   *slog.Logger

	// newID is swapped in tests to force collisions.
	newID func() (string, error)
}

func NewShareService(
	snippets repository.SnippetRepository,
	profiles repository.ProfileRepository,
	cache PublicCache,
	siteURL string,
	logger *slog.Logger,
) *ShareService {
	return &ShareService{
		snippets: snippets,
		profiles: profiles,
		cache:    cache,
		siteURL:  strings.TrimRight(siteURL, "/"),
		logger:   logger,
		newID:    NewPublicID,
	}
}

// Share makes the caller's snippet public and returns it with its public
// id and URL. Sharing an already public snippet returns the same link.
func (s *ShareService) Share(ctx context.Context, userID, id string) (*model.Snippet, error) {
	existing, err := s.snippets.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if existing.PublicID != nil {
		// COALESCE keeps the stored id; nothing to mint.
		return s.snippets.Share(ctx, userID, id, *existing.PublicID, s.PublicURL(*existing.PublicID))
	}

	for attempt := 1; attempt <= shareAttempts; attempt++ {
		publicID, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("service/share: minting public id: %w", err)
		}

		shared, err := s.snippets.Share(ctx, userID, id, publicID, s.PublicURL(publicID))
		if err == nil {
			s.logger.Info("snippet shared",
				slog.String("id", id),
				slog.String("public_id", *shared.PublicID),
			)
			return shared, nil
		}
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Warn("public id collision, retrying",
			slog.String("id", id),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("service/share: no free public id after %d attempts", shareAttempts)
}

// Unshare hides the snippet. Its public_id is kept for a later re-share.
func (s *ShareService) Unshare(ctx context.Context, userID, id string) (*model.Snippet, error) {
	snippet, err := s.snippets.Unshare(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if snippet.PublicID != nil && s.cache != nil {
		s.cache.Invalidate(ctx, *snippet.PublicID)
	}
	s.logger.Info("snippet unshared", slog.String("id", id))
	return snippet, nil
}

// GetPublic resolves a public link for an anonymous reader.
//
// STRICT READ: the snippet must currently be public. A private snippet,
// even one with a stored public_id, is NotFound, and this method never
// changes sharing state.
//
// The repository's version stamp is read before anything else. A cached
// view is served only when its stamp matches; a fresh view is cached under
// the stamp read before the row, so a write that lands mid-read leaves an
// entry that the next request rejects.
func (s *ShareService) GetPublic(ctx context.Context, publicID string) (*model.PublicSnippet, error) {
	publicID = strings.TrimSpace(publicID)
	if !validPublicID(publicID) {
		return nil, apperror.NotFound("public snippet", publicID)
	}

	version, err := s.snippets.PublicVersion(ctx, publicID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if view, cached, ok := s.cache.Get(ctx, publicID); ok && cached == version {
			return view, nil
		}
	}

	snippet, err := s.snippets.GetPublic(ctx, publicID)
	if err != nil {
		return nil, err
	}

	var author model.PublicAuthor
	profile, err := s.profiles.GetProfile(ctx, snippet.UserID)
	switch {
	case err == nil:
		author = profile.Author()
	case errors.Is(err, apperror.ErrNotFound):
		// Render without an author card rather than failing the page.
	default:
		return nil, err
	}

	view := snippet.ToPublic(author)
	if s.cache != nil {
		s.cache.Set(ctx, version, view)
	}
	return view, nil
}

// PublicURL is the short link for a public id: {site}/s/{publicId}.
func (s *ShareService) PublicURL(publicID string) string {
	return s.siteURL + "/s/" + publicID
}

// NewPublicID returns PublicIDLength characters drawn uniformly from
// [A-Za-z0-9] using crypto/rand.
func NewPublicID() (string, error) {
	size := big.NewInt(int64(len(publicIDAlphabet)))
	b := make([]byte, PublicIDLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = publicIDAlphabet[n.Int64()]
	}
	return string(b), nil
}

// validPublicID rejects obviously malformed ids before they reach the
// cache or the database.
func validPublicID(id string) bool {
	if len(id) < PublicIDLength || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune(publicIDAlphabet, c) {
			return false
		}
	}
	return true
}
