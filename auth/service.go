package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuthResult is returned by Login: the authenticated user plus a fresh
// token pair.
type AuthResult struct {
	User *User
	Pair *TokenPair
}

// Service implements C12 (Auth & Token Service): login, token issuance and
// validation, and tool-token lifecycle management, grounded on the
// teacher's AuthService interface but against the GORM-backed model.
type Service struct {
	store  Store
	tokens *TokenService
	cfg    *Config
	log    *logrus.Entry
}

func NewService(store Store, tokens *TokenService, cfg *Config, log *logrus.Entry) *Service {
	return &Service{store: store, tokens: tokens, cfg: cfg, log: log}
}

// Login verifies username/password, enforces the lockout policy, and
// issues a new access/refresh token pair on success.
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Locked {
		return nil, ErrAccountLocked
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := ValidatePassword(password, user.PasswordHash); err != nil {
		_ = s.store.RecordLoginAttempt(ctx, user.ID, false)
		if user.FailedLogins+1 >= s.cfg.MaxFailedAttempts {
			user.Locked = true
			_ = s.store.UpdateUser(ctx, user)
		}
		s.audit(ctx, user, "login", false, "invalid password")
		return nil, ErrInvalidCredentials
	}

	_ = s.store.RecordLoginAttempt(ctx, user.ID, true)

	pair, refreshPlain, err := s.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("generate token pair: %w", err)
	}
	refreshHash, err := HashRefreshToken(refreshPlain, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}
	rt := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}

	s.audit(ctx, user, "login", true, "")
	return &AuthResult{User: user, Pair: pair}, nil
}

// ValidateAccessToken verifies an access-token JWT and returns its claims.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CreateUser provisions a new user within an organization, hashing its
// password and validating username/email format against policy.
func (s *Service) CreateUser(ctx context.Context, orgID, username, email, password string, roleCodes []string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := CheckPasswordStrength(password, s.cfg.PasswordMinLength, s.cfg.PasswordRequireStrong); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if len(roleCodes) == 0 {
		roleCodes = []string{s.cfg.DefaultRole}
	}
	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		OrgID:        orgID,
		IsActive:     true,
		RoleCodes:    StringSet(roleCodes),
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.audit(ctx, user, "create_user", true, "")
	return user, nil
}

// ChangePassword verifies the old password and replaces it with a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := ValidatePassword(oldPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}
	if err := CheckPasswordStrength(newPassword, s.cfg.PasswordMinLength, s.cfg.PasswordRequireStrong); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	s.audit(ctx, user, "change_password", true, "")
	return nil
}

// RefreshAccessToken exchanges a valid, unrevoked refresh token for a new
// access token, rotating the refresh token (single-use per spec section
// 4.12's durability guarantees).
func (s *Service) RefreshAccessToken(ctx context.Context, refreshTokenID, refreshPlain string) (*AuthResult, error) {
	rt, err := s.store.GetRefreshToken(ctx, refreshTokenID)
	if err != nil {
		return nil, err
	}
	if rt.Revoked || rt.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredToken
	}
	if err := ValidateRefreshToken(refreshPlain, rt.TokenHash); err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUser(ctx, rt.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive || user.Locked {
		return nil, ErrAccountDisabled
	}

	_ = s.store.RevokeRefreshToken(ctx, rt.ID)

	pair, refreshPlainNew, err := s.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, fmt.Errorf("generate token pair: %w", err)
	}
	refreshHash, err := HashRefreshToken(refreshPlainNew, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}
	newRT := &RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: time.Now().Add(s.cfg.RefreshTokenTTL),
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveRefreshToken(ctx, newRT); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	return &AuthResult{User: user, Pair: pair}, nil
}

// IssueToolToken mints a long-lived bearer credential for a user, returning
// the plaintext JWT once; only its hash is stored (spec section 3).
func (s *Service) IssueToolToken(ctx context.Context, ownerID, name string, ttl time.Duration) (string, *ToolToken, error) {
	user, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	signed, exp, err := s.tokens.GenerateToolToken(user, id, ttl)
	if err != nil {
		return "", nil, fmt.Errorf("sign tool token: %w", err)
	}
	if ttl <= 0 {
		expiresAt = nil
	} else {
		expiresAt = &exp
	}

	// bcrypt accepts at most 72 bytes, so the JWT is reduced to its
	// SHA-256 digest before hashing.
	sum := sha256.Sum256([]byte(signed))
	hash, err := HashPassword(hex.EncodeToString(sum[:]), s.cfg.BcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash tool token: %w", err)
	}

	tt := &ToolToken{
		ID:         id,
		OwnerID:    ownerID,
		Name:       name,
		SecretHash: hash,
		CreatedAt:  time.Now(),
		ExpiresAt:  expiresAt,
		Active:     true,
	}
	if err := s.store.CreateToolToken(ctx, tt); err != nil {
		return "", nil, fmt.Errorf("create tool token: %w", err)
	}
	s.audit(ctx, user, "issue_tool_token", true, name)
	return signed, tt, nil
}

// ValidateToolToken verifies a presented tool-token JWT, confirming it is
// still active and unexpired against the ToolToken row referenced by its
// jti claim.
func (s *Service) ValidateToolToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.tokens.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != TokenKindTool {
		return nil, ErrInvalidToken
	}
	tt, err := s.store.GetToolToken(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !tt.Active || tt.Expired() {
		return nil, ErrTokenRevoked
	}
	_ = s.store.TouchToolToken(ctx, tt.ID, time.Now())
	return claims, nil
}

// RevokeToolToken deactivates a tool token immediately.
func (s *Service) RevokeToolToken(ctx context.Context, id string) error {
	return s.store.RevokeToolToken(ctx, id)
}

// ListToolTokens returns every tool token owned by ownerID.
func (s *Service) ListToolTokens(ctx context.Context, ownerID string) ([]*ToolToken, error) {
	return s.store.ListToolTokens(ctx, ownerID)
}

func (s *Service) audit(ctx context.Context, user *User, action string, success bool, message string) {
	if s.log != nil {
		s.log.WithFields(logrus.Fields{"user_id": user.ID, "action": action, "success": success}).Info("auth event")
	}
	entry := &AuditLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		UserID:    user.ID,
		Username:  user.Username,
		Action:    action,
		Success:   success,
		Message:   message,
	}
	if err := s.store.SaveAuditLog(ctx, entry); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to save audit log")
	}
}
