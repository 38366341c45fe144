package service

import (
	"context"
	"time"

	"go-auth-service/internal/model"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u model.User) error
	Update(ctx context.Context, u model.User) error
}

// TokenLedger records purpose tokens and enforces at-most-once consumption.
type TokenLedger interface {
	Issue(ctx context.Context, tokenValue string, kind model.TokenKind, userID string, ttl time.Duration) error
	Lookup(ctx context.Context, tokenValue string, kind model.TokenKind) (model.IssuedToken, error)
	Consume(ctx context.Context, tokenValue string, kind model.TokenKind) error
}

type LedgerSweepStore interface {
	DeleteExpired(ctx context.Context) (int64, error)
	DeleteUsedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}
