package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-auth-service/internal/database"
	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
)

// LedgerRepository stores single-use purpose tokens keyed by fingerprint.
type LedgerRepository struct {
	db  database.DBTX
	now func() time.Time
}

func NewLedgerRepository(db database.DBTX, now func() time.Time) *LedgerRepository {
	if now == nil {
		now = time.Now
	}
	return &LedgerRepository{db: db, now: now}
}

func (r *LedgerRepository) Issue(ctx context.Context, tokenValue string, kind model.TokenKind, userID string, ttl time.Duration) error {
	now := r.now().UTC()
	_, err := r.db.Exec(ctx,
		`INSERT INTO issued_tokens (token_hash, kind, subject_user_id, used, expires_at, created_at)
		 VALUES ($1, $2, $3, false, $4, $5)`,
		token.Fingerprint(tokenValue), string(kind), userID, now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("issue %s token: %w", kind, err)
	}
	return nil
}

// Lookup classifies a token without consuming it.
func (r *LedgerRepository) Lookup(ctx context.Context, tokenValue string, kind model.TokenKind) (model.IssuedToken, error) {
	entry := model.IssuedToken{TokenHash: token.Fingerprint(tokenValue), Kind: kind}
	err := r.db.QueryRow(ctx,
		`SELECT subject_user_id, used, expires_at FROM issued_tokens
		 WHERE token_hash = $1 AND kind = $2`,
		entry.TokenHash, string(kind)).Scan(&entry.SubjectUserID, &entry.Used, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.IssuedToken{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.IssuedToken{}, fmt.Errorf("lookup %s token: %w", kind, err)
	}

	if err := classify(entry.Used, entry.ExpiresAt, r.now()); err != nil {
		return model.IssuedToken{}, err
	}
	return entry, nil
}

// Consume flips used in one conditional write; only the caller whose update
// matched a row succeeds.
func (r *LedgerRepository) Consume(ctx context.Context, tokenValue string, kind model.TokenKind) error {
	hash := token.Fingerprint(tokenValue)
	now := r.now().UTC()

	tag, err := r.db.Exec(ctx,
		`UPDATE issued_tokens SET used = true, used_at = $3
		 WHERE token_hash = $1 AND kind = $2 AND used = false AND expires_at > $3`,
		hash, string(kind), now)
	if err != nil {
		return fmt.Errorf("consume %s token: %w", kind, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var used bool
	var expiresAt time.Time
	err = r.db.QueryRow(ctx,
		`SELECT used, expires_at FROM issued_tokens WHERE token_hash = $1 AND kind = $2`,
		hash, string(kind)).Scan(&used, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("classify %s token: %w", kind, err)
	}
	if err := classify(used, expiresAt, now); err != nil {
		return err
	}
	// The row changed between the two statements.
	return model.ErrTokenAlreadyUsed
}

func (r *LedgerRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM issued_tokens WHERE expires_at < $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *LedgerRepository) DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM issued_tokens WHERE used = true AND used_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete used tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func classify(used bool, expiresAt time.Time, now time.Time) error {
	if used {
		return model.ErrTokenAlreadyUsed
	}
	if !expiresAt.After(now) {
		return model.ErrTokenExpired
	}
	return nil
}
