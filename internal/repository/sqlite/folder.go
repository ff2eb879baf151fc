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

var _ repository.FolderRepository = (*FolderDB)(nil)

// FolderDB stores folders.
type FolderDB struct {
	conn *sql.DB
}

// folderSelect joins in the snippet count so the sidebar can render
// "Work (12)" without a second query per folder.
const folderSelect = `SELECT f.id, f.user_id, f.name, f.description, f.color, f.created_at,
	COUNT(s.id) AS snippet_count
	FROM folders f
	LEFT JOIN snippets s ON s.folder_id = f.id AND s.user_id = f.user_id`

func (s *FolderDB) Create(ctx context.Context, folder *model.Folder) error {
	folder.ID = xid.New().String()
	folder.CreatedAt = time.Now().UTC()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO folders (id, user_id, name, description, color, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		folder.ID, folder.UserID, folder.Name, folder.Description, folder.Color, folder.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating folder: %w", err)
	}
	return nil
}

func (s *FolderDB) GetByID(ctx context.Context, ownerID, id string) (*model.Folder, error) {
	row := s.conn.QueryRowContext(ctx,
		folderSelect+` WHERE f.id = ? AND f.user_id = ? GROUP BY f.id`,
		id, ownerID,
	)
	folder, err := scanFolder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("folder", id)
		}
		return nil, fmt.Errorf("sqlite: getting folder %s: %w", id, err)
	}
	return folder, nil
}

// List returns all of the owner's folders alphabetically.
func (s *FolderDB) List(ctx context.Context, ownerID string) ([]model.Folder, error) {
	rows, err := s.conn.QueryContext(ctx,
		folderSelect+` WHERE f.user_id = ? GROUP BY f.id ORDER BY f.name COLLATE NOCASE`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing folders: %w", err)
	}
	defer rows.Close()

	folders := []model.Folder{}
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning folder row: %w", err)
		}
		folders = append(folders, *folder)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating folders: %w", err)
	}
	return folders, nil
}

func (s *FolderDB) Update(ctx context.Context, folder *model.Folder) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE folders SET name = ?, description = ?, color = ? WHERE id = ? AND user_id = ?`,
		folder.Name, folder.Description, folder.Color, folder.ID, folder.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating folder %s: %w", folder.ID, err)
	}
	return requireRow(result, "folder", folder.ID)
}

// Delete detaches the folder's snippets and removes the folder.
//
// The FK already says ON DELETE SET NULL, but that only fires when
// foreign_keys is enabled on the connection. Doing it explicitly inside the
// same transaction means snippets are never left pointing at a missing folder.
func (s *FolderDB) Delete(ctx context.Context, ownerID, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning folder delete: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if _, err := tx.ExecContext(ctx,
		`UPDATE snippets SET folder_id = NULL WHERE folder_id = ? AND user_id = ?`,
		id, ownerID,
	); err != nil {
		return fmt.Errorf("sqlite: detaching snippets from folder %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM folders WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting folder %s: %w", id, err)
	}
	if err := requireRow(result, "folder", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing folder delete: %w", err)
	}
	return nil
}

func scanFolder(row scanner) (*model.Folder, error) {
	var folder model.Folder
	err := row.Scan(
		&folder.ID,
		&folder.UserID,
		&folder.Name,
		&folder.Description,
		&folder.Color,
		&folder.CreatedAt,
		&folder.SnippetCount,
	)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}
