package model

import "time"

type PasswordHistoryEntry struct {
	PasswordHash string    `json:"password_hash"`
	ChangedAt    time.Time `json:"changed_at"`
}

// User is the persisted identity record. PasswordHash and PasswordHistory
// never leave the server; use Public for anything returned to a client.
type User struct {
	ID              string                 `json:"-"`
	Name            string                 `json:"-"`
	Email           string                 `json:"-"`
	PasswordHash    string                 `json:"-"`
	PasswordHistory []PasswordHistoryEntry `json:"-"`
	IsVerified      bool                   `json:"-"`
	CreatedAt       time.Time              `json:"-"`
	UpdatedAt       time.Time              `json:"-"`
}

type PublicUser struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}
}

// PushPasswordHistory appends hash and keeps only the newest limit entries.
func (u *User) PushPasswordHistory(hash string, changedAt time.Time, limit int) {
	u.PasswordHistory = append(u.PasswordHistory, PasswordHistoryEntry{PasswordHash: hash, ChangedAt: changedAt})
	if limit > 0 && len(u.PasswordHistory) > limit {
		trimmed := make([]PasswordHistoryEntry, limit)
		copy(trimmed, u.PasswordHistory[len(u.PasswordHistory)-limit:])
		u.PasswordHistory = trimmed
	}
}

type AuthResult struct {
	User         PublicUser `json:"user"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
}

type MessageResult struct {
	Message string `json:"message"`
}
