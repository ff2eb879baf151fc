package model

import "time"

// Boilerplate is a reusable project template. Unlike a Snippet it is tagged
// with a set of languages and is usually made of several uploaded files.
type Boilerplate struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Code        *string          `json:"code"`
	Languages   []string         `json:"languages"`
	Tags        []string         `json:"tags"`
	Files       []FileDescriptor `json:"files"`
	IsFavorite  bool             `json:"is_favorite"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasContent reports whether the boilerplate has code or at least one file.
func (b *Boilerplate) HasContent() bool {
	return (b.Code != nil && *b.Code != "") || len(b.Files) > 0
}

// IsMultiFile is true when the boilerplate was uploaded as a set of files.
func (b *Boilerplate) IsMultiFile() bool {
	return len(b.Files) > 1
}
