// Package tokenstore persists the client's credential pair across restarts.
package tokenstore

import (
	"context"
	"errors"
	"sync"
)

// ErrEmpty is returned by Load when no credentials are stored.
var ErrEmpty = errors.New("tokenstore: no credentials stored")

type Credentials struct {
	AccessToken  string
	RefreshToken string
}

func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.IsZero() {
		return Credentials{}, ErrEmpty
	}
	return s.creds, nil
}

func (s *MemoryStore) Save(_ context.Context, creds Credentials) error {
	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.creds = Credentials{}
	s.mu.Unlock()
	return nil
}
