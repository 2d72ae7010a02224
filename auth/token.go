package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"kbengine.dev/security"
)

// Claims carries everything the permission package needs to evaluate P(U,R)
// without a catalog round trip: org scope, superuser bypass, and role codes,
// per spec section 4.12.
type Claims struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	OrgID       string    `json:"org_id"`
	IsSuperuser bool      `json:"is_superuser"`
	RoleCodes   []string  `json:"role_codes"`
	Kind        TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// AsUser adapts Claims to the *User shape the permission package's
// predicate and the search orchestrator's Request.User expect, so callers
// that only hold a validated token never need a catalog round trip to
// evaluate P(U,R).
func (c *Claims) AsUser() *User {
	return &User{
		ID:          c.UserID,
		Username:    c.Username,
		OrgID:       c.OrgID,
		IsSuperuser: c.IsSuperuser,
		RoleCodes:   StringSet(c.RoleCodes),
	}
}

// TokenService issues and validates access, refresh, and tool bearer tokens.
type TokenService struct {
	secret            []byte
	accessExpiration  time.Duration
	refreshExpiration time.Duration
	issuer            string
}

// NewTokenService creates a token service signing with HS256 over secret.
func NewTokenService(secret string, accessExpiration, refreshExpiration time.Duration) *TokenService {
	return &TokenService{
		secret:            []byte(secret),
		accessExpiration:  accessExpiration,
		refreshExpiration: refreshExpiration,
		issuer:            "kbengine.dev/auth",
	}
}

// GenerateAccessToken signs a short-lived stateless access JWT for user.
func (s *TokenService) GenerateAccessToken(user *User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessExpiration)
	claims := Claims{
		UserID:      user.ID,
		Username:    user.Username,
		OrgID:       user.OrgID,
		IsSuperuser: user.IsSuperuser,
		RoleCodes:   []string(user.RoleCodes),
		Kind:        TokenKindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   user.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// GenerateToolToken signs a JWT carrying the tool-token's identity. Unlike
// access tokens, tool tokens are additionally checked against the
// ToolToken row at validation time so they can be revoked before expiry.
func (s *TokenService) GenerateToolToken(user *User, toolTokenID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	// A non-positive ttl issues a token with no exp claim at all.
	var exp *jwt.NumericDate
	if ttl > 0 {
		exp = jwt.NewNumericDate(expiresAt)
	}
	claims := Claims{
		UserID:      user.ID,
		Username:    user.Username,
		OrgID:       user.OrgID,
		IsSuperuser: user.IsSuperuser,
		RoleCodes:   []string(user.RoleCodes),
		Kind:        TokenKindTool,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: exp,
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   user.ID,
			ID:        toolTokenID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign tool token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// TokenPair bundles an access token with its opaque refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// GenerateTokenPair issues a new access token and a fresh opaque refresh
// token for user. The refresh token's hash, not its plaintext, is what the
// caller should persist via RefreshToken.TokenHash.
func (s *TokenService) GenerateTokenPair(user *User) (*TokenPair, string, error) {
	accessToken, expiresAt, err := s.GenerateAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	refreshPlain, err := security.GenerateRandomSecret(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshPlain,
		ExpiresAt:    expiresAt,
	}, refreshPlain, nil
}

// HashRefreshToken hashes a refresh token's plaintext for storage.
func HashRefreshToken(token string, cost int) (string, error) {
	return security.HashPasswordWithCost(token, cost)
}

// ValidateRefreshToken checks a presented plaintext refresh token against
// its stored hash.
func ValidateRefreshToken(token, hash string) error {
	return security.VerifyPassword(hash, token)
}
