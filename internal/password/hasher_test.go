package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashVerify(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)

	first, err := h.Hash("Secret123!")
	require.NoError(t, err)
	second, err := h.Hash("Secret123!")
	require.NoError(t, err)

	require.NotEqual(t, first, second, "salt must differ per call")
	require.NotContains(t, first, "Secret123!")
	require.True(t, h.Verify("Secret123!", first))
	require.True(t, h.Verify("Secret123!", second))
	require.False(t, h.Verify("Secret123?", first))
}

func TestVerifyRejectsGarbageDigest(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)
	require.False(t, h.Verify("anything", ""))
	require.False(t, h.Verify("anything", "not-a-bcrypt-digest"))
}

func TestHashRejectsOverlongInput(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)
	_, err := h.Hash(strings.Repeat("a", MaxLength+1))
	require.ErrorIs(t, err, ErrTooLong)

	_, err = h.Hash(strings.Repeat("a", MaxLength))
	require.NoError(t, err)
}

func TestNewHasherClampsCost(t *testing.T) {
	t.Parallel()

	require.Equal(t, bcrypt.MinCost, NewHasher(1).Cost())
	require.Equal(t, bcrypt.MaxCost, NewHasher(99).Cost())
	require.Equal(t, DefaultCost, NewHasher(DefaultCost).Cost())
}

func TestMatchesAny(t *testing.T) {
	t.Parallel()

	h := NewHasher(bcrypt.MinCost)
	a, err := h.Hash("first-password")
	require.NoError(t, err)
	b, err := h.Hash("second-password")
	require.NoError(t, err)

	require.True(t, h.MatchesAny("second-password", a, b))
	require.False(t, h.MatchesAny("third-password", a, b))
	require.False(t, h.MatchesAny("first-password"))
}
