package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *User {
	return &User{
		ID:        "user-1",
		Username:  "jane",
		OrgID:     "org-1",
		RoleCodes: StringSet{RoleEditor},
	}
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute, 24*time.Hour)
	user := testUser()

	token, expiresAt, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expiresAt, time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.OrgID, claims.OrgID)
	assert.Equal(t, TokenKindAccess, claims.Kind)
	assert.Equal(t, []string{RoleEditor}, claims.RoleCodes)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService("secret-a", time.Minute, time.Hour)
	other := NewTokenService("secret-b", time.Minute, time.Hour)

	token, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService("test-secret", -time.Minute, time.Hour)

	token, _, err := svc.GenerateAccessToken(testUser())
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestGenerateToolToken(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute, time.Hour)
	user := testUser()

	token, _, err := svc.GenerateToolToken(user, "tool-token-1", 30*24*time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, TokenKindTool, claims.Kind)
	assert.Equal(t, "tool-token-1", claims.ID)
}

func TestGenerateTokenPairAndRefreshRoundtrip(t *testing.T) {
	svc := NewTokenService("test-secret", time.Minute, time.Hour)
	pair, plain, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)
	assert.Equal(t, plain, pair.RefreshToken)

	hash, err := HashRefreshToken(plain, 4)
	require.NoError(t, err)
	assert.NoError(t, ValidateRefreshToken(plain, hash))
	assert.Error(t, ValidateRefreshToken("wrong-token", hash))
}

func TestStringSetContainsAndIntersects(t *testing.T) {
	a := StringSet{"editor", "viewer"}
	b := StringSet{"admin", "viewer"}

	assert.True(t, a.Contains("editor"))
	assert.False(t, a.Contains("admin"))
	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(StringSet{"admin"}))
}

func TestToolTokenExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := &ToolToken{ExpiresAt: &past}
	active := &ToolToken{ExpiresAt: &future}
	noExpiry := &ToolToken{}

	assert.True(t, expired.Expired())
	assert.False(t, active.Expired())
	assert.False(t, noExpiry.Expired())
}
