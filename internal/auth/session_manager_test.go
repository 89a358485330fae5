package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-secret")

func TestManagerIssueAndRefresh(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(testSecret, time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "account-1")
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	assert.True(t, store.Has(HashToken(tokens.RefreshToken)))

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)
	assert.False(t, store.Has(HashToken(tokens.RefreshToken)), "old token should have been removed")
	assert.True(t, store.Has(HashToken(refreshed.RefreshToken)))
}

func TestManagerStoresOnlyTokenHash(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(testSecret, time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "account-1")
	require.NoError(t, err)

	assert.False(t, store.Has(tokens.RefreshToken))
	session, err := store.Find(context.Background(), HashToken(tokens.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, "account-1", session.AccountID)
	assert.Len(t, session.TokenHash, 64)
	assert.Equal(t, tokens.RefreshExpiresAt, session.ExpiresAt)
}

func TestManagerIssueValidation(t *testing.T) {
	manager := NewManager(testSecret, time.Minute, time.Hour, NewInMemorySessionStore())
	_, err := manager.Issue(context.Background(), "")
	assert.Error(t, err)
}

func TestManagerRefreshFailures(t *testing.T) {
	manager := NewManager(testSecret, time.Minute, time.Hour, NewInMemorySessionStore())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	_, err := manager.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	tokens, err := manager.Issue(context.Background(), "account-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = manager.Refresh(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)

	tokens, err = manager.Issue(context.Background(), "account-1")
	require.NoError(t, err)
	manager.Revoke(context.Background(), tokens.RefreshToken)
	_, err = manager.Refresh(context.Background(), tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerParseAccessToken(t *testing.T) {
	manager := NewManager(testSecret, time.Minute, time.Hour, NewInMemorySessionStore())
	now := time.Now().UTC()
	manager.now = func() time.Time { return now }

	tokens, err := manager.Issue(context.Background(), "account-42")
	require.NoError(t, err)

	accountID, err := manager.ParseAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "account-42", accountID)

	t.Run("expired", func(t *testing.T) {
		manager.now = func() time.Time { return now.Add(2 * time.Minute) }
		defer func() { manager.now = func() time.Time { return now } }()

		_, err := manager.ParseAccessToken(tokens.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewManager([]byte("another-secret"), time.Minute, time.Hour, NewInMemorySessionStore())
		_, err := other.ParseAccessToken(tokens.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "account-42",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = manager.ParseAccessToken(unsigned)
		assert.True(t, errors.Is(err, ErrInvalidAccessToken))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := manager.ParseAccessToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidAccessToken)
	})
}

func TestInMemorySessionStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySessionStore()
	cutoff := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, Session{TokenHash: "old", AccountID: "account-1", ExpiresAt: cutoff.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, Session{TokenHash: "fresh", AccountID: "account-1", ExpiresAt: cutoff.Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, Session{TokenHash: "other", AccountID: "account-2", ExpiresAt: cutoff.Add(-time.Hour)}))
	assert.Equal(t, 2, store.Sessions("account-1"))

	removed, err := store.DeleteExpired(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	assert.True(t, store.Has("fresh"))
	assert.False(t, store.Has("old"))
	assert.Equal(t, 1, store.Sessions("account-1"))
	assert.Equal(t, 0, store.Sessions("account-2"))

	require.NoError(t, store.Delete(ctx, "fresh"))
	assert.ErrorIs(t, store.Delete(ctx, "fresh"), ErrSessionNotFound)
	assert.Equal(t, 0, store.Sessions("account-1"))
}
