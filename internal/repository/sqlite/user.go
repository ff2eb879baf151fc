package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

var (
	_ repository.UserRepository    = (*UserDB)(nil)
	_ repository.ProfileRepository = (*UserDB)(nil)
)

// UserDB stores users and their profiles. Both live behind one type because
// a user row is never written without its profile.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, email, password_hash, github_id, login, created_at, updated_at`

const profileColumns = `user_id, full_name, avatar_url, bio, plan_type, plan_status,
	snippet_limit, boilerplate_limit, payment_customer_id, payment_subscription_id, updated_at`

// CreateWithProfile inserts the user and its profile in one transaction.
// A duplicate email surfaces as apperror.ErrConflict.
func (s *UserDB) CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning user create: %w", err)
	}
	defer tx.Rollback()

	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	profile.UserID = user.ID
	if err := insertProfile(ctx, tx, profile); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user create: %w", err)
	}
	return nil
}

// UpsertGitHub resolves a GitHub sign-in to a local user.
//
// Lookup order:
//  1. a user already linked to this GitHub id: refresh login (and email if
//     we never had one)
//  2. a user with the same email: link the GitHub id to it
//  3. nobody: create user + profile
//
// On return user holds the stored row.
func (s *UserDB) UpsertGitHub(ctx context.Context, user *model.User, profile *model.Profile) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("github_id", "github id is required")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning github upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	existing, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID))
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET login = ?, email = COALESCE(email, ?), updated_at = ? WHERE id = ?`,
			user.Login, emailValue(user.Email), now, existing.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user email", user.Email)
			}
			return fmt.Errorf("sqlite: refreshing github user: %w", err)
		}
	case err == sql.ErrNoRows:
		existing = nil
	default:
		return fmt.Errorf("sqlite: looking up github user: %w", err)
	}

	if existing == nil && user.Email != "" {
		existing, err = scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(user.Email)))
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET github_id = ?, login = ?, updated_at = ? WHERE id = ?`,
				*user.GitHubID, user.Login, now, existing.ID,
			)
			if err != nil {
				return fmt.Errorf("sqlite: linking github account: %w", err)
			}
		case err == sql.ErrNoRows:
			existing = nil
		default:
			return fmt.Errorf("sqlite: looking up user by email: %w", err)
		}
	}

	if existing == nil {
		if err := insertUser(ctx, tx, user); err != nil {
			return err
		}
		profile.UserID = user.ID
		if err := insertProfile(ctx, tx, profile); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing github upsert: %w", err)
	}

	if existing != nil {
		stored, err := s.GetUserByID(ctx, existing.ID)
		if err != nil {
			return err
		}
		*user = *stored
	}
	return nil
}

func (s *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func (s *UserDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	user, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

func (s *UserDB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)

	var p model.Profile
	err := row.Scan(
		&p.UserID,
		&p.FullName,
		&p.AvatarURL,
		&p.Bio,
		&p.PlanType,
		&p.PlanStatus,
		&p.SnippetLimit,
		&p.BoilerplateLimit,
		&p.PaymentCustomerID,
		&p.PaymentSubscriptionID,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", userID, err)
	}
	return &p, nil
}

// UpdateProfile writes the user-editable display fields only. Plan columns
// change exclusively through PaymentDB.ApplyUpgrade.
func (s *UserDB) UpdateProfile(ctx context.Context, profile *model.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	result, err := s.conn.ExecContext(ctx,
		`UPDATE profiles SET full_name = ?, avatar_url = ?, bio = ?, updated_at = ? WHERE user_id = ?`,
		profile.FullName, profile.AvatarURL, profile.Bio, profile.UpdatedAt, profile.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", profile.UserID, err)
	}
	return requireRow(result, "profile", profile.UserID)
}

func insertUser(ctx context.Context, tx *sql.Tx, user *model.User) error {
	user.ID = xid.New().String()
	user.Email = normalizeEmail(user.Email)
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, github_id, login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, emailValue(user.Email), user.PasswordHash, githubID, user.Login, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func insertProfile(ctx context.Context, tx *sql.Tx, p *model.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.FullName, p.AvatarURL, p.Bio, p.PlanType, p.PlanStatus,
		p.SnippetLimit, p.BoilerplateLimit, p.PaymentCustomerID, p.PaymentSubscriptionID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating profile: %w", err)
	}
	return nil
}

func scanUser(row scanner) (*model.User, error) {
	var (
		user     model.User
		email    sql.NullString
		githubID sql.NullInt64
	)
	err := row.Scan(
		&user.ID,
		&email,
		&user.PasswordHash,
		&githubID,
		&user.Login,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Email = email.String
	if githubID.Valid {
		id := githubID.Int64
		user.GitHubID = &id
	}
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailValue stores "" as NULL so the UNIQUE index ignores accounts that
// have no email (GitHub users with a private address).
func emailValue(email string) sql.NullString {
	email = normalizeEmail(email)
	if email == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: email, Valid: true}
}
