//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-auth-service/internal/client/authapi"
	"go-auth-service/internal/client/tokenmanager"
	"go-auth-service/internal/client/tokenstore"
	"go-auth-service/internal/model"
	"go-auth-service/internal/token"
)

type countingRefresher struct {
	api   *authapi.Client
	calls atomic.Int32
}

func (c *countingRefresher) RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	c.calls.Add(1)
	return c.api.RefreshToken(ctx, refreshToken)
}

// expiredAccessToken mints an access token for user that expired an hour ago.
func expiredAccessToken(t *testing.T, user model.PublicUser) string {
	t.Helper()

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		PurposeSecret: purposeSecret,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Now:           func() time.Time { return time.Now().Add(-time.Hour) },
	})
	require.NoError(t, err)

	raw, _, err := codec.SignAccess(user.ID, user.Email)
	require.NoError(t, err)
	return raw
}

func TestTokenManagerAgainstServer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	result := env.signup(t, "Jane", "jane@x.com", "Secret123!")
	stale := expiredAccessToken(t, result.User)

	ctx := context.Background()
	refresher := &countingRefresher{api: authapi.New(env.server.URL, nil)}
	store, err := tokenstore.OpenSQLite(ctx, "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Save(ctx, tokenstore.Credentials{AccessToken: stale, RefreshToken: result.RefreshToken}))
	manager := tokenmanager.New(store, refresher, tokenmanager.Config{})
	require.NoError(t, manager.Restore(ctx))
	require.Equal(t, tokenmanager.StatusExpired, manager.Classify(stale))
	require.Equal(t, tokenmanager.StatusValid, manager.Classify(result.AccessToken))

	authed := authapi.New(env.server.URL, &http.Client{Transport: manager.Transport(nil)})

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = authed.Me(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, refresher.calls.Load())

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotEqual(t, stale, persisted.AccessToken)
	require.NotEqual(t, result.RefreshToken, persisted.RefreshToken)
}

func TestTokenManagerLogsOutWhenRefreshRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.signup(t, "Jane", "jane@x.com", "Secret123!")

	ctx := context.Background()
	store := tokenstore.NewMemoryStore()
	manager := tokenmanager.New(store, authapi.New(env.server.URL, nil), tokenmanager.Config{})

	var loggedOut atomic.Bool
	manager.OnLogout(func() { loggedOut.Store(true) })
	require.NoError(t, manager.SetTokens(ctx, "not-a-jwt", "forged-refresh-token"))

	authed := authapi.New(env.server.URL, &http.Client{Transport: manager.Transport(nil)})
	_, err := authed.Me(ctx)
	require.ErrorIs(t, err, tokenmanager.ErrSessionExpired)
	require.True(t, loggedOut.Load())
	require.Equal(t, tokenmanager.StateLoggedOut, manager.State())

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, tokenstore.ErrEmpty)
}
