package model

import (
	"fmt"
	"time"
)

// TokenKind tags single-use purpose tokens. Both kinds share one ledger.
type TokenKind string

const (
	TokenKindPasswordReset     TokenKind = "password-reset"
	TokenKindEmailVerification TokenKind = "email-verification"
)

func (k TokenKind) Valid() bool {
	return k == TokenKindPasswordReset || k == TokenKindEmailVerification
}

func ParseTokenKind(raw string) (TokenKind, error) {
	kind := TokenKind(raw)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown token kind %q", raw)
	}
	return kind, nil
}

// IssuedToken is a ledger entry. TokenHash is the SHA-256 of the signed token.
type IssuedToken struct {
	TokenHash     string
	Kind          TokenKind
	SubjectUserID string
	Used          bool
	ExpiresAt     time.Time
	UsedAt        *time.Time
	CreatedAt     time.Time
}

// TokenPair is never persisted on the server.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"-"`
}
