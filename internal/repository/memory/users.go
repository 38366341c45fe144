// Package memory holds in-process stores with the same contracts as the
// Postgres repositories. Used for STORE_DRIVER=memory and in tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"go-auth-service/internal/model"
)

type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		byID:    map[string]model.User{},
		byEmail: map[string]string{},
	}
}

func (s *UserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *UserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[normalizeEmail(email)]
	return ok, nil
}

func (s *UserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(u.Email)
	if _, exists := s.byEmail[key]; exists {
		return model.ErrUserAlreadyExists
	}
	if _, exists := s.byID[u.ID]; exists {
		return model.ErrUserAlreadyExists
	}

	u.Email = key
	s.byID[u.ID] = cloneUser(u)
	s.byEmail[key] = u.ID
	return nil
}

func (s *UserStore) Update(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[u.ID]
	if !ok {
		return model.ErrUserNotFound
	}

	current.Name = u.Name
	current.PasswordHash = u.PasswordHash
	current.PasswordHistory = u.PasswordHistory
	current.IsVerified = u.IsVerified
	current.UpdatedAt = u.UpdatedAt
	s.byID[u.ID] = cloneUser(current)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneUser(u model.User) model.User {
	if u.PasswordHistory != nil {
		history := make([]model.PasswordHistoryEntry, len(u.PasswordHistory))
		copy(history, u.PasswordHistory)
		u.PasswordHistory = history
	}
	return u
}
