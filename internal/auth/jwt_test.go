package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour)

	token, expiresAt, err := manager.GenerateToken("dev@example.com", "Dev User", "https://example.com/pic.png")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := manager.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", claims.Subject)
	assert.Equal(t, "Dev User", claims.Name)
	assert.Equal(t, "https://example.com/pic.png", claims.Picture)
	assert.Equal(t, "trackd", claims.Issuer)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	token, _, err := NewJWTManager("secret-a", time.Hour).GenerateToken("a@example.com", "", "")
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Hour).VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute)

	token, _, err := manager.GenerateToken("a@example.com", "", "")
	require.NoError(t, err)

	_, err = manager.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyGarbageToken(t *testing.T) {
	_, err := NewJWTManager("test-secret", time.Hour).VerifyToken("not.a.token")
	assert.Error(t, err)
}

func TestEmptySecretGetsRandomKey(t *testing.T) {
	a := NewJWTManager("", time.Hour)
	b := NewJWTManager("", time.Hour)

	token, _, err := a.GenerateToken("a@example.com", "", "")
	require.NoError(t, err)

	// Each manager has its own random key
	_, err = a.VerifyToken(token)
	assert.NoError(t, err)
	_, err = b.VerifyToken(token)
	assert.Error(t, err)
}
