package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

// SQLiteStore keeps credentials in a key/value table of a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at dsn and applies
// migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials WHERE key IN (?, ?)`, keyAccessToken, keyRefreshToken)
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	var creds Credentials
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Credentials{}, fmt.Errorf("scan credential row: %w", err)
		}
		switch key {
		case keyAccessToken:
			creds.AccessToken = value
		case keyRefreshToken:
			creds.RefreshToken = value
		}
	}
	if err := rows.Err(); err != nil {
		return Credentials{}, fmt.Errorf("iterate credential rows: %w", err)
	}

	if creds.IsZero() {
		return Credentials{}, ErrEmpty
	}
	return creds, nil
}

// Save replaces both tokens in one transaction so a crash never leaves a
// mismatched pair behind.
func (s *SQLiteStore) Save(ctx context.Context, creds Credentials) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credentials tx: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for key, value := range map[string]string{keyAccessToken: creds.AccessToken, keyRefreshToken: creds.RefreshToken} {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value); err != nil {
			return fmt.Errorf("save credential %s: %w", key, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
