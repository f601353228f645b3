// Package tokenstore persists device authentication tokens in a local
// SQLite database, keyed by device host. Each login invalidates the
// device's previous token, so short-lived CLI runs reuse a cached
// unexpired token instead of churning through logins.
package tokenstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dokzlo13/xledctl/internal/xled"
)

// Store is a SQLite-backed xled.TokenStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the token database at path and
// initializes its schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create token cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open token cache: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token cache schema: %w", err)
	}

	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS auth_tokens (
			host TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// Load returns the cached token for host, or (nil, nil) when none
// exists or the cached one has expired. Expired rows are removed.
func (s *Store) Load(host string) (*xled.TokenRecord, error) {
	var token string
	var expiresAt int64

	err := s.db.QueryRow(`
		SELECT token, expires_at FROM auth_tokens WHERE host = ?
	`, host).Scan(&token, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	expires := time.Unix(expiresAt, 0)
	if !time.Now().Before(expires) {
		_, _ = s.db.Exec(`DELETE FROM auth_tokens WHERE host = ?`, host)
		return nil, nil
	}

	return &xled.TokenRecord{Token: token, Expires: expires}, nil
}

// Save upserts the token for host.
func (s *Store) Save(host string, rec xled.TokenRecord) error {
	now := time.Now().UTC().Unix()

	_, err := s.db.Exec(`
		INSERT INTO auth_tokens (host, token, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, host, rec.Token, rec.Expires.Unix(), now)

	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete removes the cached token for host.
func (s *Store) Delete(host string) error {
	if _, err := s.db.Exec(`DELETE FROM auth_tokens WHERE host = ?`, host); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
