package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affiliate-network-backend/internal/domain"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	user := &domain.User{ID: 12, Email: "coord@example.com", Role: domain.RoleCoordinator}

	token, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int32(12), claims.UserID)
	assert.Equal(t, domain.RoleCoordinator, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.NotEmpty(t, claims.ID)

	refresh, err := tm.GenerateRefreshToken(user)
	require.NoError(t, err)
	claims, err = tm.ValidateToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, claims.Type)
}

func TestTokenManager_Rejects(t *testing.T) {
	user := &domain.User{ID: 1, Role: domain.RoleAdmin}

	t.Run("Wrong secret", func(t *testing.T) {
		token, err := NewTokenManager("a", time.Hour).GenerateAccessToken(user)
		require.NoError(t, err)
		_, err = NewTokenManager("b", time.Hour).ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		tm := NewTokenManager("a", time.Minute).(*tokenManager)
		tm.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := tm.GenerateAccessToken(user)
		require.NoError(t, err)
		tm.now = time.Now
		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := NewTokenManager("a", time.Hour).ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
