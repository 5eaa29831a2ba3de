package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/config"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "marketplace-test"},
		JWT: config.JWTConfig{
			Secret:             "0123456789abcdef0123456789abcdef",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenExpiry: time.Hour,
		},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
	}
}

func TestJWTManager_AccessToken(t *testing.T) {
	m := NewJWTManager(testConfig())

	token, err := m.GenerateAccessToken(42, "seller@example.com", "seller")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.True(t, claims.IsSeller())
	assert.False(t, claims.IsAdmin())

	_, err = m.ValidateRefreshToken(token)
	assert.Error(t, err)
}

func TestJWTManager_RefreshTokenCarriesNoRole(t *testing.T) {
	m := NewJWTManager(testConfig())

	token, err := m.GenerateRefreshToken(7, "buyer@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.UserType)

	_, err = m.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	token, err := NewJWTManager(testConfig()).GenerateAccessToken(1, "a@example.com", "buyer")
	require.NoError(t, err)

	other := testConfig()
	other.JWT.Secret = "ffffffffffffffffffffffffffffffff"
	_, err = NewJWTManager(other).ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromHeader("Bearer abc"))
	assert.Empty(t, ExtractTokenFromHeader("Basic abc"))
	assert.Empty(t, ExtractTokenFromHeader(""))
}

func TestPasswordManager(t *testing.T) {
	p := NewPasswordManager(testConfig())

	hash, err := p.HashPassword("Secret123")
	require.NoError(t, err)
	assert.NoError(t, p.VerifyPassword("Secret123", hash))
	assert.Error(t, p.VerifyPassword("Secret124", hash))

	assert.False(t, p.NeedsRehash(hash))

	_, err = p.HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = p.HashPassword("alllowercase1")
	assert.ErrorIs(t, err, ErrPasswordTooWeak)
}

func TestPasswordManager_NeedsRehashAfterCostChange(t *testing.T) {
	cfg := testConfig()
	old := NewPasswordManager(cfg)
	hash, err := old.HashPassword("Secret123")
	require.NoError(t, err)

	cfg.Security.BcryptCost++
	assert.True(t, NewPasswordManager(cfg).NeedsRehash(hash))
	assert.True(t, old.NeedsRehash("not-a-bcrypt-hash"))
}
