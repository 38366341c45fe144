package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"go-auth-service/internal/model"
)

func TestUserStoreEmailIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	require.NoError(t, store.Create(ctx, model.User{ID: "u-1", Email: "Jane@X.com"}))

	got, err := store.FindByEmail(ctx, "JANE@x.COM")
	require.NoError(t, err)
	require.Equal(t, "jane@x.com", got.Email)

	err = store.Create(ctx, model.User{ID: "u-2", Email: "jane@x.com"})
	require.ErrorIs(t, err, model.ErrUserAlreadyExists)
}

func TestUserStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewUserStore()
	require.NoError(t, store.Create(ctx, model.User{
		ID:              "u-1",
		Email:           "jane@x.com",
		PasswordHistory: []model.PasswordHistoryEntry{{PasswordHash: "h1"}},
	}))

	got, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	got.PasswordHistory[0].PasswordHash = "mutated"
	got.IsVerified = true

	again, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, "h1", again.PasswordHistory[0].PasswordHash)
	require.False(t, again.IsVerified)

	require.ErrorIs(t, store.Update(ctx, model.User{ID: "missing"}), model.ErrUserNotFound)
}
