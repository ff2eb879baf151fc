package model

import "time"

// Folder groups snippets. A snippet belongs to at most one folder; deleting
// the folder detaches its snippets instead of deleting them.
type Folder struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Color        string    `json:"color"`
	SnippetCount int       `json:"snippet_count"`
	CreatedAt    time.Time `json:"created_at"`
}
