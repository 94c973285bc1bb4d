package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladikoff/email2feed/internal/config"
)

func testManager(access time.Duration) *Manager {
	return NewManager(&config.JWTConfig{
		Secret:        "test-secret-key-for-development-32-chars-long-at-least",
		Issuer:        "email2feed",
		AccessExpiry:  access,
		RefreshExpiry: 7 * 24 * time.Hour,
	})
}

func TestManager_GenerateTokenPair(t *testing.T) {
	manager := testManager(15 * time.Minute)

	pair, err := manager.GenerateTokenPair("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(15*60), pair.ExpiresIn)

	claims, err := manager.ValidateToken(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Owner())
	assert.Equal(t, KindAccess, claims.Kind)

	_, err = manager.GenerateTokenPair("")
	assert.Error(t, err)
}

func TestManager_ValidateToken(t *testing.T) {
	manager := testManager(15 * time.Minute)
	pair, err := manager.GenerateTokenPair("alice@example.com")
	require.NoError(t, err)

	t.Run("无效令牌", func(t *testing.T) {
		_, err := manager.ValidateToken("invalid-token", KindAccess)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("刷新令牌不能用于访问", func(t *testing.T) {
		_, err := manager.ValidateToken(pair.RefreshToken, KindAccess)
		assert.ErrorIs(t, err, ErrWrongTokenKind)
	})

	t.Run("其他密钥签发的令牌", func(t *testing.T) {
		other := NewManager(&config.JWTConfig{
			Secret:        "another-secret-key-that-is-also-32-chars-long",
			Issuer:        "email2feed",
			AccessExpiry:  time.Minute,
			RefreshExpiry: time.Hour,
		})
		foreign, err := other.GenerateTokenPair("mallory")
		require.NoError(t, err)

		_, err = manager.ValidateToken(foreign.AccessToken, KindAccess)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("签发者不符", func(t *testing.T) {
		other := NewManager(&config.JWTConfig{
			Secret:        "test-secret-key-for-development-32-chars-long-at-least",
			Issuer:        "someone-else",
			AccessExpiry:  time.Minute,
			RefreshExpiry: time.Hour,
		})
		foreign, err := other.GenerateTokenPair("alice@example.com")
		require.NoError(t, err)

		_, err = manager.ValidateToken(foreign.AccessToken, KindAccess)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("过期令牌", func(t *testing.T) {
		expiring := testManager(time.Minute)
		expiring.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
		old, err := expiring.GenerateTokenPair("alice@example.com")
		require.NoError(t, err)

		expiring.now = time.Now
		_, err = expiring.ValidateToken(old.AccessToken, KindAccess)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestManager_RefreshAccessToken(t *testing.T) {
	manager := testManager(15 * time.Minute)
	pair, err := manager.GenerateTokenPair("alice@example.com")
	require.NoError(t, err)

	access, err := manager.RefreshAccessToken(pair.RefreshToken)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(access, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Owner())

	_, err = manager.RefreshAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}
