package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jonandersen/tda/internal/auth"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS token_record (
	id                   INTEGER PRIMARY KEY CHECK (id = 1),
	version              INTEGER NOT NULL,
	access_token         TEXT    NOT NULL DEFAULT '',
	access_token_expiry  INTEGER NOT NULL DEFAULT -1,
	refresh_token        TEXT    NOT NULL DEFAULT '',
	refresh_token_expiry INTEGER NOT NULL DEFAULT -1,
	client_id            TEXT    NOT NULL DEFAULT '',
	redirect_uri         TEXT    NOT NULL DEFAULT '',
	updated_at           INTEGER NOT NULL
)`

// SQLiteStore keeps the record as the single row of a SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Load reads the record. An empty table is auth.ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context) (auth.TokenRecord, error) {
	var (
		rec     auth.TokenRecord
		version int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, access_token, access_token_expiry, refresh_token,
		       refresh_token_expiry, client_id, redirect_uri
		FROM token_record WHERE id = 1`).Scan(
		&version, &rec.AccessToken, &rec.AccessTokenExpiry, &rec.RefreshToken,
		&rec.RefreshTokenExpiry, &rec.ClientID, &rec.RedirectURI,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.TokenRecord{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.TokenRecord{}, fmt.Errorf("querying token record: %w", err)
	}
	if version > formatVersion {
		return auth.TokenRecord{}, fmt.Errorf("unsupported token record version %d", version)
	}
	return rec, nil
}

// Save replaces the row in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec auth.TokenRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO token_record (id, version, access_token, access_token_expiry,
			refresh_token, refresh_token_expiry, client_id, redirect_uri, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			access_token = excluded.access_token,
			access_token_expiry = excluded.access_token_expiry,
			refresh_token = excluded.refresh_token,
			refresh_token_expiry = excluded.refresh_token_expiry,
			client_id = excluded.client_id,
			redirect_uri = excluded.redirect_uri,
			updated_at = excluded.updated_at`,
		formatVersion, rec.AccessToken, rec.AccessTokenExpiry, rec.RefreshToken,
		rec.RefreshTokenExpiry, rec.ClientID, rec.RedirectURI, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving token record: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
