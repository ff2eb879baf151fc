package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/xid"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// If *SnippetDB stops satisfying repository.SnippetRepository the build
// breaks here instead of somewhere in server wiring.
var _ repository.SnippetRepository = (*SnippetDB)(nil)

// SnippetDB stores snippets.
type SnippetDB struct {
	conn *sql.DB
}

const snippetColumns = `id, user_id, title, description, code, language, tags, files,
	is_favorite, is_public, public_id, public_url, folder_id, created_at, updated_at`

// CreateWithinLimit inserts a snippet if, and only if, the owner currently
// has fewer than limit snippets.
//
// ATOMIC QUOTA:
// A separate "SELECT COUNT(*)" followed by "INSERT" leaves a window where two
// concurrent requests both see count = limit-1 and both insert. Folding the
// count into the INSERT's own WHERE clause closes that window: SQLite runs
// the whole statement under its write lock, so the check and the write see
// the same state.
//
//	INSERT INTO snippets (...) SELECT ?, ?, ... WHERE (SELECT COUNT(*) ...) < ?
//
// If the WHERE is false the SELECT yields no row and nothing is inserted;
// RowsAffected() == 0 tells us the limit was hit.
func (s *SnippetDB) CreateWithinLimit(ctx context.Context, snippet *model.Snippet, limit int) error {
	snippet.ID = xid.New().String()
	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	if snippet.Tags == nil {
		snippet.Tags = []string{}
	}
	if snippet.Files == nil {
		snippet.Files = []model.FileDescriptor{}
	}

	tags, err := encodeJSON(snippet.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding snippet tags: %w", err)
	}
	files, err := encodeJSON(snippet.Files)
	if err != nil {
		return fmt.Errorf("sqlite: encoding snippet files: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, user_id, title, description, code, language, tags, files,
			is_favorite, is_public, folder_id, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM snippets WHERE user_id = ?) < ?`,
		snippet.ID,
		snippet.UserID,
		snippet.Title,
		snippet.Description,
		nullString(snippet.Code),
		snippet.Language,
		tags,
		files,
		snippet.IsFavorite,
		nullString(snippet.FolderID),
		snippet.CreatedAt,
		snippet.UpdatedAt,
		snippet.UserID,
		limit,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		snippet.ID = ""
		return apperror.LimitReached("snippet", limit)
	}

	// New snippets are always private; sharing goes through Share.
	snippet.IsPublic = false
	snippet.PublicID = nil
	snippet.PublicURL = nil
	return nil
}

// GetByID retrieves one of the owner's snippets.
//
// A snippet that exists but belongs to someone else is reported exactly like
// one that doesn't exist, so callers can't probe for other users' ids.
func (s *SnippetDB) GetByID(ctx context.Context, ownerID, id string) (*model.Snippet, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	snippet, err := scanSnippet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	return snippet, nil
}

// GetPublic looks a snippet up by its share id. Both conditions are in the
// WHERE clause: a row whose public_id matches but is_public = 0 is simply
// not returned.
func (s *SnippetDB) GetPublic(ctx context.Context, publicID string) (*model.Snippet, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE public_id = ? AND is_public = 1`,
		publicID,
	)
	snippet, err := scanSnippet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("public snippet", publicID)
		}
		return nil, fmt.Errorf("sqlite: getting public snippet %s: %w", publicID, err)
	}
	return snippet, nil
}

// PublicVersion reads the two updated_at columns a public view is built
// from. The profile side is a LEFT JOIN so a missing profile still stamps.
func (s *SnippetDB) PublicVersion(ctx context.Context, publicID string) (string, error) {
	var (
		snippetAt time.Time
		profileAt sql.NullTime
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT s.updated_at, p.updated_at
		   FROM snippets s
		   LEFT JOIN profiles p ON p.user_id = s.user_id
		  WHERE s.public_id = ? AND s.is_public = 1`,
		publicID,
	).Scan(&snippetAt, &profileAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", apperror.NotFound("public snippet", publicID)
		}
		return "", fmt.Errorf("sqlite: stamping public snippet %s: %w", publicID, err)
	}
	version := snippetAt.UTC().Format(time.RFC3339Nano)
	if profileAt.Valid {
		version += "|" + profileAt.Time.UTC().Format(time.RFC3339Nano)
	}
	return version, nil
}

// List returns the owner's snippets, newest first, narrowed by filter.
//
// The WHERE clause is assembled from fixed fragments; user input only ever
// travels through the args slice as ? parameters.
func (s *SnippetDB) List(ctx context.Context, ownerID string, filter model.SnippetFilter) ([]model.Snippet, error) {
	limit, offset := clampPage(filter.Limit, filter.Offset)

	where := []string{"user_id = ?"}
	args := []any{ownerID}

	if filter.FolderID != "" {
		where = append(where, "folder_id = ?")
		args = append(args, filter.FolderID)
	}
	if filter.Language != "" {
		where = append(where, "language = ?")
		args = append(args, filter.Language)
	}
	if filter.FavoritesOnly {
		where = append(where, "is_favorite = 1")
	}
	if filter.Tag != "" {
		// tags is a JSON array column; json_each expands it into rows.
		where = append(where, "EXISTS (SELECT 1 FROM json_each(snippets.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + q + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit, offset)

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, limit)
	for rows.Next() {
		snippet, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *snippet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Update writes the editable fields. Sharing state (is_public, public_id,
// public_url) is NOT touched here; only Share/Unshare change it.
func (s *SnippetDB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now().UTC()

	tags, err := encodeJSON(snippet.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding snippet tags: %w", err)
	}
	files, err := encodeJSON(snippet.Files)
	if err != nil {
		return fmt.Errorf("sqlite: encoding snippet files: %w", err)
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET title = ?, description = ?, code = ?, language = ?, tags = ?, files = ?,
		     folder_id = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		snippet.Title,
		snippet.Description,
		nullString(snippet.Code),
		snippet.Language,
		tags,
		files,
		nullString(snippet.FolderID),
		snippet.UpdatedAt,
		snippet.ID,
		snippet.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}
	return requireRow(result, "snippet", snippet.ID)
}

// Delete hard-deletes one of the owner's snippets.
func (s *SnippetDB) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return requireRow(result, "snippet", id)
}

func (s *SnippetDB) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE snippets SET is_favorite = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		favorite, time.Now().UTC(), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting favorite on snippet %s: %w", id, err)
	}
	return requireRow(result, "snippet", id)
}

func (s *SnippetDB) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets WHERE user_id = ?`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting snippets for %s: %w", ownerID, err)
	}
	return count, nil
}

// Share publishes the snippet in one statement.
//
// IDEMPOTENT MINT:
// COALESCE(public_id, ?) keeps an existing id and only falls back to the
// freshly generated one when the column is NULL. In an UPDATE every
// right-hand side reads the row's OLD values, so the CASE for public_url sees
// the same "was it NULL?" answer as the COALESCE. Two concurrent share calls
// therefore converge on whichever id was written first.
//
// is_public = 1 is set unconditionally, which also repairs a row that had an
// id but was left private.
func (s *SnippetDB) Share(ctx context.Context, ownerID, id, publicID, publicURL string) (*model.Snippet, error) {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET public_url = CASE WHEN public_id IS NULL THEN ? ELSE public_url END,
		     public_id  = COALESCE(public_id, ?),
		     is_public  = 1,
		     updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		publicURL, publicID, time.Now().UTC(), id, ownerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("public snippet", publicID)
		}
		return nil, fmt.Errorf("sqlite: sharing snippet %s: %w", id, err)
	}
	if err := requireRow(result, "snippet", id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, ownerID, id)
}

// Unshare hides the snippet from the public read path. public_id and
// public_url are kept so a later Share returns the same link.
func (s *SnippetDB) Unshare(ctx context.Context, ownerID, id string) (*model.Snippet, error) {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE snippets SET is_public = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: unsharing snippet %s: %w", id, err)
	}
	if err := requireRow(result, "snippet", id); err != nil {
		return nil, err
	}
	return s.GetByID(ctx, ownerID, id)
}

func scanSnippet(row scanner) (*model.Snippet, error) {
	var (
		snippet                             model.Snippet
		code, publicID, publicURL, folderID sql.NullString
		tags, files                         string
	)
	err := row.Scan(
		&snippet.ID,
		&snippet.UserID,
		&snippet.Title,
		&snippet.Description,
		&code,
		&snippet.Language,
		&tags,
		&files,
		&snippet.IsFavorite,
		&snippet.IsPublic,
		&publicID,
		&publicURL,
		&folderID,
		&snippet.CreatedAt,
		&snippet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	snippet.Code = stringPtr(code)
	snippet.PublicID = stringPtr(publicID)
	snippet.PublicURL = stringPtr(publicURL)
	snippet.FolderID = stringPtr(folderID)

	if snippet.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if snippet.Files, err = decodeFiles(files); err != nil {
		return nil, fmt.Errorf("decoding files: %w", err)
	}
	return &snippet, nil
}

func decodeFiles(raw string) ([]model.FileDescriptor, error) {
	out := []model.FileDescriptor{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// requireRow turns "0 rows affected" into NotFound, the same way for every
// owner-scoped UPDATE/DELETE.
func requireRow(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
