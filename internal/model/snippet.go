// Package model holds the vault's records: users and profiles, snippets,
// boilerplates, folders and payments, plus the public projections of them.
package model

import "time"

// FileDescriptor describes one uploaded file as returned by the object store.
// Path is the object key inside the bucket; URL is what browsers fetch.
type FileDescriptor struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// Snippet represents a saved code snippet owned by one user.
//
// A snippet holds either code or at least one uploaded file (never neither).
// PublicID is minted the first time the owner shares the snippet and never
// changes afterwards, even across unshare/reshare cycles.
//
// Pointer fields (*string) are nullable columns: nil means "not set", which
// is different from an empty string for Code and FolderID.
type Snippet struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Code        *string          `json:"code"`
	Language    string           `json:"language"`
	Tags        []string         `json:"tags"`
	Files       []FileDescriptor `json:"files"`
	IsFavorite  bool             `json:"is_favorite"`
	IsPublic    bool             `json:"is_public"`
	PublicID    *string          `json:"public_id"`
	PublicURL   *string          `json:"public_url"`
	FolderID    *string          `json:"folder_id"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// HasContent reports whether the snippet satisfies the code-or-files rule.
func (s *Snippet) HasContent() bool {
	return (s.Code != nil && *s.Code != "") || len(s.Files) > 0
}

// PublicSnippet is the only shape of a snippet that leaves the server
// without authentication. It deliberately omits owner ids, folder, favorite
// flag and upload paths.
type PublicSnippet struct {
	PublicID    string       `json:"public_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Code        *string      `json:"code"`
	Language    string       `json:"language"`
	Tags        []string     `json:"tags"`
	Files       []PublicFile `json:"files"`
	CreatedAt   time.Time    `json:"created_at"`
	Author      PublicAuthor `json:"author"`
}

// PublicFile is a FileDescriptor without the storage path.
type PublicFile struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// PublicAuthor is the minimal author card shown next to a shared snippet.
type PublicAuthor struct {
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

// ToPublic projects a snippet and its owner's profile onto the public shape.
func (s *Snippet) ToPublic(author PublicAuthor) *PublicSnippet {
	p := &PublicSnippet{
		Title:       s.Title,
		Description: s.Description,
		Code:        s.Code,
		Language:    s.Language,
		Tags:        s.Tags,
		Files:       make([]PublicFile, 0, len(s.Files)),
		CreatedAt:   s.CreatedAt,
		Author:      author,
	}
	if s.PublicID != nil {
		p.PublicID = *s.PublicID
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	for _, f := range s.Files {
		p.Files = append(p.Files, PublicFile{URL: f.URL, Name: f.Name, Size: f.Size, Type: f.Type})
	}
	return p
}

// SnippetFilter narrows List results. Zero values mean "no filter".
type SnippetFilter struct {
	FolderID      string
	Tag           string
	Language      string
	FavoritesOnly bool
	Query         string
	Limit         int
	Offset        int
}
