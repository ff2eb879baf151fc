package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

var _ repository.BoilerplateRepository = (*BoilerplateDB)(nil)

// BoilerplateDB stores boilerplates. It mirrors SnippetDB without the
// sharing and folder columns.
type BoilerplateDB struct {
	conn *sql.DB
}

const boilerplateColumns = `id, user_id, title, description, code, languages, tags, files,
	is_favorite, created_at, updated_at`

// CreateWithinLimit uses the same guarded INSERT ... SELECT ... WHERE as
// SnippetDB.CreateWithinLimit.
func (s *BoilerplateDB) CreateWithinLimit(ctx context.Context, b *model.Boilerplate, limit int) error {
	b.ID = xid.New().String()
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Languages == nil {
		b.Languages = []string{}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if b.Files == nil {
		b.Files = []model.FileDescriptor{}
	}

	languages, tags, files, err := encodeBoilerplateLists(b)
	if err != nil {
		return err
	}

	result, err := s.conn.ExecContext(ctx,
		`INSERT INTO boilerplates (id, user_id, title, description, code, languages, tags, files,
			is_favorite, created_at, updated_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM boilerplates WHERE user_id = ?) < ?`,
		b.ID, b.UserID, b.Title, b.Description, nullString(b.Code),
		languages, tags, files, b.IsFavorite, b.CreatedAt, b.UpdatedAt,
		b.UserID, limit,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating boilerplate: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		b.ID = ""
		return apperror.LimitReached("boilerplate", limit)
	}
	return nil
}

func (s *BoilerplateDB) GetByID(ctx context.Context, ownerID, id string) (*model.Boilerplate, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+boilerplateColumns+` FROM boilerplates WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	b, err := scanBoilerplate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("boilerplate", id)
		}
		return nil, fmt.Errorf("sqlite: getting boilerplate %s: %w", id, err)
	}
	return b, nil
}

// List returns the owner's boilerplates, newest first.
func (s *BoilerplateDB) List(ctx context.Context, ownerID string, opts repository.ListOptions) ([]model.Boilerplate, error) {
	limit, offset := clampPage(opts.Limit, opts.Offset)

	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+boilerplateColumns+` FROM boilerplates
		 WHERE user_id = ?
		 ORDER BY created_at DESC
		 LIMIT ? OFFSET ?`,
		ownerID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing boilerplates: %w", err)
	}
	defer rows.Close()

	out := make([]model.Boilerplate, 0, limit)
	for rows.Next() {
		b, err := scanBoilerplate(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning boilerplate row: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating boilerplates: %w", err)
	}
	return out, nil
}

func (s *BoilerplateDB) Update(ctx context.Context, b *model.Boilerplate) error {
	b.UpdatedAt = time.Now().UTC()

	languages, tags, files, err := encodeBoilerplateLists(b)
	if err != nil {
		return err
	}

	result, err := s.conn.ExecContext(ctx,
		`UPDATE boilerplates
		 SET title = ?, description = ?, code = ?, languages = ?, tags = ?, files = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		b.Title, b.Description, nullString(b.Code), languages, tags, files, b.UpdatedAt,
		b.ID, b.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating boilerplate %s: %w", b.ID, err)
	}
	return requireRow(result, "boilerplate", b.ID)
}

func (s *BoilerplateDB) Delete(ctx context.Context, ownerID, id string) error {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM boilerplates WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting boilerplate %s: %w", id, err)
	}
	return requireRow(result, "boilerplate", id)
}

func (s *BoilerplateDB) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE boilerplates SET is_favorite = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		favorite, time.Now().UTC(), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting favorite on boilerplate %s: %w", id, err)
	}
	return requireRow(result, "boilerplate", id)
}

func (s *BoilerplateDB) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM boilerplates WHERE user_id = ?`, ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting boilerplates for %s: %w", ownerID, err)
	}
	return count, nil
}

func encodeBoilerplateLists(b *model.Boilerplate) (languages, tags, files string, err error) {
	if languages, err = encodeJSON(b.Languages); err != nil {
		return "", "", "", fmt.Errorf("sqlite: encoding boilerplate languages: %w", err)
	}
	if tags, err = encodeJSON(b.Tags); err != nil {
		return "", "", "", fmt.Errorf("sqlite: encoding boilerplate tags: %w", err)
	}
	if files, err = encodeJSON(b.Files); err != nil {
		return "", "", "", fmt.Errorf("sqlite: encoding boilerplate files: %w", err)
	}
	return languages, tags, files, nil
}

func scanBoilerplate(row scanner) (*model.Boilerplate, error) {
	var (
		b                      model.Boilerplate
		code                   sql.NullString
		languages, tags, files string
	)
	err := row.Scan(
		&b.ID, &b.UserID, &b.Title, &b.Description, &code,
		&languages, &tags, &files,
		&b.IsFavorite, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Code = stringPtr(code)
	if b.Languages, err = decodeStrings(languages); err != nil {
		return nil, fmt.Errorf("decoding languages: %w", err)
	}
	if b.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}
	if b.Files, err = decodeFiles(files); err != nil {
		return nil, fmt.Errorf("decoding files: %w", err)
	}
	return &b, nil
}
