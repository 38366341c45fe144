// Package tokenmanager keeps a client's access token valid across calls.
//
// Callers either ask for a token with AccessToken or route requests through
// Transport, which attaches the bearer header, refreshes on 401 once, and
// retries transport failures with backoff.
package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"go-auth-service/internal/client/authapi"
	"go-auth-service/internal/client/tokenstore"
	"go-auth-service/internal/model"
)

const (
	DefaultLookahead      = 5 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultRefreshTimeout = 15 * time.Second

	refreshKey = "refresh"
)

var (
	// ErrLoggedOut is returned when no credentials are held.
	ErrLoggedOut = errors.New("tokenmanager: logged out")
	// ErrSessionExpired is returned after a refresh was rejected and the
	// session was cleared.
	ErrSessionExpired = errors.New("tokenmanager: session expired")
)

type Status int

const (
	StatusValid Status = iota
	StatusNearExpiry
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusNearExpiry:
		return "near-expiry"
	default:
		return "expired"
	}
}

type State int

const (
	StateLoggedOut State = iota
	StateAuthenticated
)

type Store interface {
	Load(ctx context.Context) (tokenstore.Credentials, error)
	Save(ctx context.Context, creds tokenstore.Credentials) error
	Clear(ctx context.Context) error
}

type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error)
}

type Config struct {
	Lookahead       time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RefreshTimeout  time.Duration
	Now             func() time.Time
}

type Manager struct {
	store     Store
	refresher Refresher
	cfg       Config

	mu       sync.RWMutex
	creds    tokenstore.Credentials
	state    State
	onLogout []func()

	group singleflight.Group
}

func New(store Store, refresher Refresher, cfg Config) *Manager {
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: store, refresher: refresher, cfg: cfg}
}

// Restore loads credentials persisted by an earlier session.
func (m *Manager) Restore(ctx context.Context) error {
	creds, err := m.store.Load(ctx)
	if errors.Is(err, tokenstore.ErrEmpty) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore credentials: %w", err)
	}

	m.mu.Lock()
	m.creds = creds
	m.state = StateAuthenticated
	m.mu.Unlock()
	return nil
}

// SetTokens installs a freshly issued pair, e.g. after signin.
func (m *Manager) SetTokens(ctx context.Context, accessToken string, refreshToken string) error {
	creds := tokenstore.Credentials{AccessToken: accessToken, RefreshToken: refreshToken}
	if err := m.store.Save(ctx, creds); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}

	m.mu.Lock()
	m.creds = creds
	m.state = StateAuthenticated
	m.mu.Unlock()
	return nil
}

// Logout clears memory and the durable store, then notifies listeners.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	m.creds = tokenstore.Credentials{}
	m.state = StateLoggedOut
	listeners := append([]func(){}, m.onLogout...)
	m.mu.Unlock()

	err := m.store.Clear(ctx)
	if wasAuthenticated {
		for _, fn := range listeners {
			fn()
		}
	}
	if err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (m *Manager) OnLogout(fn func()) {
	m.mu.Lock()
	m.onLogout = append(m.onLogout, fn)
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Credentials() tokenstore.Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds
}

// Classify decodes the exp claim locally without verifying the signature.
// Tokens that cannot be decoded count as expired.
func (m *Manager) Classify(accessToken string) Status {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil || claims.ExpiresAt == nil {
		return StatusExpired
	}

	remaining := claims.ExpiresAt.Sub(m.cfg.Now())
	switch {
	case remaining <= 0:
		return StatusExpired
	case remaining <= m.cfg.Lookahead:
		return StatusNearExpiry
	default:
		return StatusValid
	}
}

// AccessToken returns a token that is not near expiry, refreshing first when
// needed. A near-expiry token is still returned when the refresh fails for a
// reason other than rejection, since the server will accept it for now.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	state, current := m.state, m.creds.AccessToken
	m.mu.RUnlock()

	if state != StateAuthenticated {
		return "", ErrLoggedOut
	}
	status := m.Classify(current)
	if status == StatusValid {
		return current, nil
	}

	fresh, err := m.Refresh(ctx, current)
	if err == nil {
		return fresh, nil
	}
	if status == StatusNearExpiry && ctx.Err() == nil &&
		!errors.Is(err, ErrSessionExpired) && !errors.Is(err, ErrLoggedOut) &&
		m.Classify(current) != StatusExpired {
		slog.Warn("refresh failed; using current access token", "error", err)
		return current, nil
	}
	return "", err
}

// Refresh exchanges the refresh token for a new pair. stale is the access
// token the caller found unusable; if another caller already replaced it the
// newer token is returned without a network call. Concurrent callers share
// one in-flight refresh, and cancelling ctx only stops this caller's wait.
func (m *Manager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.RLock()
	state, current := m.state, m.creds.AccessToken
	m.mu.RUnlock()

	if state != StateAuthenticated {
		return "", ErrLoggedOut
	}
	if current != stale && m.Classify(current) == StatusValid {
		return current, nil
	}

	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) refresh(ctx context.Context, stale string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RefreshTimeout)
	defer cancel()

	m.mu.RLock()
	current, refreshToken := m.creds.AccessToken, m.creds.RefreshToken
	m.mu.RUnlock()

	// A flight that finished between the caller's check and this one
	// already rotated the pair.
	if current != stale && m.Classify(current) == StatusValid {
		return current, nil
	}

	if refreshToken == "" {
		if logoutErr := m.Logout(ctx); logoutErr != nil {
			slog.Warn("clear credentials without refresh token", "error", logoutErr)
		}
		return "", ErrSessionExpired
	}

	pair, err := m.exchange(ctx, refreshToken)
	if err != nil {
		if isRejection(err) {
			slog.Info("refresh rejected; logging out", "error", err)
			if logoutErr := m.Logout(ctx); logoutErr != nil {
				slog.Warn("clear credentials after rejected refresh", "error", logoutErr)
			}
			return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return "", fmt.Errorf("refresh token: %w", err)
	}

	m.mu.Lock()
	if m.state != StateAuthenticated || m.creds.RefreshToken != refreshToken {
		// Logged out or replaced by SetTokens while the call was in flight.
		current, state := m.creds.AccessToken, m.state
		m.mu.Unlock()
		if state != StateAuthenticated {
			return "", ErrLoggedOut
		}
		return current, nil
	}
	m.creds = tokenstore.Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	creds := m.creds
	m.mu.Unlock()

	if err := m.store.Save(ctx, creds); err != nil {
		slog.Warn("persist refreshed credentials", "error", err)
	}
	return pair.AccessToken, nil
}

// exchange calls the refresher, retrying network failures with the same
// policy the transport uses. Server answers are never retried.
func (m *Manager) exchange(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	attempt := 0
	operation := func() (model.TokenPair, error) {
		attempt++
		pair, err := m.refresher.RefreshToken(ctx, refreshToken)
		if err == nil {
			return pair, nil
		}
		if ctx.Err() != nil {
			return model.TokenPair{}, backoff.Permanent(err)
		}
		if !authapi.IsNetworkError(err) {
			return model.TokenPair{}, backoff.Permanent(err)
		}
		return model.TokenPair{}, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(m.retryPolicy()),
		backoff.WithMaxTries(uint(m.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("refresh failed; retrying", "attempt", attempt, "next", next, "error", err)
		}),
	)
}

func (m *Manager) retryPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.cfg.InitialInterval
	policy.MaxInterval = m.cfg.MaxInterval
	return policy
}

// isRejection separates a refused refresh token from transient failures.
func isRejection(err error) bool {
	var apiErr *authapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError &&
		apiErr.Status != http.StatusTooManyRequests && apiErr.Status != http.StatusRequestTimeout
}
