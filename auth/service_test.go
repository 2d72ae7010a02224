package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	tokens := NewTokenService("test-secret", time.Minute, time.Hour)
	cfg := DefaultConfig()
	cfg.BcryptCost = 4
	return NewService(store, tokens, cfg, nil), store
}

func TestCreateUserAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "org-1", "jane", "jane@example.com", "S3cur3!pass", []string{RoleEditor})
	require.NoError(t, err)
	assert.True(t, user.HasRole(RoleEditor))

	result, err := svc.Login(ctx, "jane", "S3cur3!pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.NotEmpty(t, result.Pair.AccessToken)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", nil)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "jane", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLocksAccountAfterMaxFailedAttempts(t *testing.T) {
	svc, store := newTestService(t)
	svc.cfg.MaxFailedAttempts = 2
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", nil)
	require.NoError(t, err)

	_, _ = svc.Login(ctx, "jane", "wrong")
	_, _ = svc.Login(ctx, "jane", "wrong")

	user, err := store.GetUserByUsername(ctx, "jane")
	require.NoError(t, err)
	assert.True(t, user.Locked)

	_, err = svc.Login(ctx, "jane", "S3cur3!pass")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", nil)
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, "org-1", "jane", "", "AnotherPass1!", nil)
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", nil)
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, user.ID, "S3cur3!pass", "NewPassw0rd!")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "jane", "NewPassw0rd!")
	assert.NoError(t, err)
	_, err = svc.Login(ctx, "jane", "S3cur3!pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRefreshAccessTokenRotatesToken(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", nil)
	require.NoError(t, err)

	result, err := svc.Login(ctx, "jane", "S3cur3!pass")
	require.NoError(t, err)

	var rtID string
	for id := range store.refreshTokens {
		rtID = id
	}
	require.NotEmpty(t, rtID)

	refreshed, err := svc.RefreshAccessToken(ctx, rtID, result.Pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, refreshed.User.ID)
	assert.NotEmpty(t, refreshed.Pair.AccessToken)

	// The original refresh token is single-use: replaying it fails.
	_, err = svc.RefreshAccessToken(ctx, rtID, result.Pair.RefreshToken)
	assert.Error(t, err)
}

func TestIssueAndValidateToolToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", []string{RoleViewer})
	require.NoError(t, err)

	signed, tt, err := svc.IssueToolToken(ctx, user.ID, "ci-pipeline", 24*time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.True(t, tt.Active)

	claims, err := svc.ValidateToolToken(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, TokenKindTool, claims.Kind)

	require.NoError(t, svc.RevokeToolToken(ctx, tt.ID))
	_, err = svc.ValidateToolToken(ctx, signed)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestListToolTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "org-1", "jane", "", "S3cur3!pass", nil)
	require.NoError(t, err)

	_, _, err = svc.IssueToolToken(ctx, user.ID, "token-a", time.Hour)
	require.NoError(t, err)
	_, _, err = svc.IssueToolToken(ctx, user.ID, "token-b", 0)
	require.NoError(t, err)

	tokens, err := svc.ListToolTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}
