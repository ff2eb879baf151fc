// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// The driver is modernc.org/sqlite (pure Go, no cgo). One WAL-mode file
// holds every tenant.
//
// TENANT ISOLATION:
// Every query that reads or writes user content filters on user_id. There is
// no row-level security in SQLite, so that WHERE clause is the whole policy.
// The stores below never expose a method that skips it, except GetPublic,
// which instead requires is_public = 1.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and hands out one store per aggregate.
//
// Each store (SnippetDB, FolderDB, ...) is a thin struct sharing the same
// pool. They are separate types because several of them need a method named
// GetByID with different signatures.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/vault.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (great for tests, lost on close)
func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// _pragma parameters are applied by the driver to EVERY pooled
		// connection, which a one-off PRAGMA statement would not be.
		dsn = dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == ":memory:" {
		// Each connection to ":memory:" is a separate, empty database.
		// Pin the pool to one connection so every query sees the same data.
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// NewWithConn wraps an existing pool without running migrations.
// Tests use it to put a go-sqlmock connection behind the stores.
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /healthz.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

func (db *DB) Snippets() *SnippetDB         { return &SnippetDB{conn: db.conn} }
func (db *DB) Boilerplates() *BoilerplateDB { return &BoilerplateDB{conn: db.conn} }
func (db *DB) Folders() *FolderDB           { return &FolderDB{conn: db.conn} }
func (db *DB) Users() *UserDB               { return &UserDB{conn: db.conn} }
func (db *DB) Payments() *PaymentDB         { return &PaymentDB{conn: db.conn} }

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is safe to re-run on every start.
func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				login         TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"profiles", `
			CREATE TABLE IF NOT EXISTS profiles (
				user_id                 TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				full_name               TEXT NOT NULL DEFAULT '',
				avatar_url              TEXT NOT NULL DEFAULT '',
				bio                     TEXT NOT NULL DEFAULT '',
				plan_type               TEXT NOT NULL DEFAULT 'free',
				plan_status             TEXT NOT NULL DEFAULT 'active',
				snippet_limit           INTEGER NOT NULL DEFAULT 50,
				boilerplate_limit       INTEGER NOT NULL DEFAULT 20,
				payment_customer_id     TEXT NOT NULL DEFAULT '',
				payment_subscription_id TEXT NOT NULL DEFAULT '',
				updated_at              DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"folders", `
			CREATE TABLE IF NOT EXISTS folders (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				color       TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_folders_user_id ON folders(user_id);`},
		// folder_id uses ON DELETE SET NULL as a backstop; FolderDB.Delete
		// also nulls it explicitly inside its transaction.
		{"snippets", `
			CREATE TABLE IF NOT EXISTS snippets (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				code        TEXT,
				language    TEXT NOT NULL,
				tags        TEXT NOT NULL DEFAULT '[]',
				files       TEXT NOT NULL DEFAULT '[]',
				is_favorite INTEGER NOT NULL DEFAULT 0,
				is_public   INTEGER NOT NULL DEFAULT 0,
				public_id   TEXT UNIQUE,
				public_url  TEXT,
				folder_id   TEXT REFERENCES folders(id) ON DELETE SET NULL,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_snippets_user_id ON snippets(user_id);
			CREATE INDEX IF NOT EXISTS idx_snippets_folder_id ON snippets(folder_id);
			CREATE INDEX IF NOT EXISTS idx_snippets_created_at ON snippets(created_at);`},
		{"boilerplates", `
			CREATE TABLE IF NOT EXISTS boilerplates (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				code        TEXT,
				languages   TEXT NOT NULL DEFAULT '[]',
				tags        TEXT NOT NULL DEFAULT '[]',
				files       TEXT NOT NULL DEFAULT '[]',
				is_favorite INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_boilerplates_user_id ON boilerplates(user_id);`},
		// One ledger row per (provider, transaction, status). A provider
		// retry of the same event hits the unique index and is treated as
		// already processed.
		{"payments", `
			CREATE TABLE IF NOT EXISTS payments (
				id             TEXT PRIMARY KEY,
				user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				provider       TEXT NOT NULL,
				transaction_id TEXT NOT NULL,
				amount         INTEGER NOT NULL DEFAULT 0,
				currency       TEXT NOT NULL DEFAULT '',
				status         TEXT NOT NULL,
				plan_type      TEXT NOT NULL DEFAULT '',
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (provider, transaction_id, status)
			);
			CREATE INDEX IF NOT EXISTS idx_payments_user_id ON payments(user_id);`},
	}

	for _, st := range stmts {
		if _, err := db.conn.Exec(st.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", st.name, err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. The string check covers drivers that don't expose codes.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Tags, languages and files are stored as JSON text columns.

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
