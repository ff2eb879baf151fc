// Package service contains the business logic layer of the application.
//
// Layering:
//
//	Handler (HTTP) → Service (rules) → Repository (SQL)
//
// cmd/seed drives the same services as the HTTP handlers.
//
// DEPENDENCY INJECTION:
// Every service takes repository interfaces (and the small Mailer / ObjectStore
// / PublicCache interfaces), NOT *sqlite.DB. In tests we pass in-memory fakes
// (see fakes_test.go); server.New passes the real stores.
//
// OWNERSHIP:
// Every method that touches user content takes the caller's userID first and
// hands it to the repository, which filters on it. A snippet that belongs to
// somebody else is indistinguishable from one that doesn't exist (404).
package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-vault/internal/apperror"
)

// Validation limits shared by snippets and boilerplates.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxCodeLength        = 100000 // ~100KB of code
	MaxTags              = 20
	MaxTagLength         = 40
	MaxLanguageLength    = 40
	DefaultListLimit     = 50
	MaxListLimit         = 200
)

// cleanTags trims, lower-cases and de-duplicates tags, keeping first-seen
// order. Empty entries are dropped.
func cleanTags(field string, tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLength {
			return nil, apperror.ValidationFailed(field, fmt.Sprintf("%s entries must be %d characters or less", field, MaxTagLength))
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, apperror.ValidationFailed(field, fmt.Sprintf("at most %d %s are allowed", MaxTags, field))
	}
	return out, nil
}

// validateText checks the fields every content type shares and returns the
// trimmed title and description.
func validateText(title, description string) (string, string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", "", apperror.ValidationFailed("title", fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", "", apperror.ValidationFailed("description", fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return title, description, nil
}

// normalizeCode maps an empty or whitespace-only body to nil so the
// code-or-files rule sees "no code".
func normalizeCode(code *string) (*string, error) {
	if code == nil || strings.TrimSpace(*code) == "" {
		return nil, nil
	}
	if len(*code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code", fmt.Sprintf("code must be %d bytes or less", MaxCodeLength))
	}
	c := *code
	return &c, nil
}

func clampList(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
