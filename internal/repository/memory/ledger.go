package memory

import (
	"context"
	"sync"
	"time"

	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
)

type Ledger struct {
	mu      sync.Mutex
	entries map[string]model.IssuedToken
	now     func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{entries: map[string]model.IssuedToken{}, now: now}
}

func (l *Ledger) Issue(_ context.Context, tokenValue string, kind model.TokenKind, userID string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	hash := token.Fingerprint(tokenValue)
	l.entries[hash] = model.IssuedToken{
		TokenHash:     hash,
		Kind:          kind,
		SubjectUserID: userID,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}
	return nil
}

func (l *Ledger) Lookup(_ context.Context, tokenValue string, kind model.TokenKind) (model.IssuedToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.find(tokenValue, kind)
}

// Consume checks and flips under one lock, the in-process equivalent of a
// conditional update.
func (l *Ledger) Consume(_ context.Context, tokenValue string, kind model.TokenKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.find(tokenValue, kind)
	if err != nil {
		return err
	}

	usedAt := l.now().UTC()
	entry.Used = true
	entry.UsedAt = &usedAt
	l.entries[entry.TokenHash] = entry
	return nil
}

func (l *Ledger) DeleteExpired(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var deleted int64
	for hash, entry := range l.entries {
		if entry.ExpiresAt.Before(now) {
			delete(l.entries, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (l *Ledger) DeleteUsedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var deleted int64
	for hash, entry := range l.entries {
		if entry.Used && entry.UsedAt != nil && entry.UsedAt.Before(cutoff) {
			delete(l.entries, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) find(tokenValue string, kind model.TokenKind) (model.IssuedToken, error) {
	entry, ok := l.entries[token.Fingerprint(tokenValue)]
	if !ok || entry.Kind != kind {
		return model.IssuedToken{}, model.ErrTokenNotFound
	}
	if entry.Used {
		return model.IssuedToken{}, model.ErrTokenAlreadyUsed
	}
	if !entry.ExpiresAt.After(l.now()) {
		return model.IssuedToken{}, model.ErrTokenExpired
	}
	return entry, nil
}
