// Package security provides cryptographic primitives shared by the auth
// service: password/secret hashing and random token generation. JWT signing
// itself lives in the auth package (auth.TokenService), which owns the
// claims shape; this package only supplies the primitives auth composes.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no explicit cost is configured.
const DefaultBcryptCost = 10

// HashPassword creates a bcrypt hash of the provided password using the
// default cost factor.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultBcryptCost)
}

// HashPasswordWithCost creates a bcrypt hash using an explicit cost factor,
// used for tool-token secrets as well as user passwords.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("invalid cost factor %d: must be between %d and %d", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext secret against a bcrypt hash. Returns
// nil on match, bcrypt.ErrMismatchedHashAndPassword (or another error)
// otherwise.
func VerifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// NeedsRehash reports whether a stored hash should be regenerated because
// the configured cost factor has changed since it was created.
func NeedsRehash(hash string, cost int) (bool, error) {
	actualCost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false, fmt.Errorf("get hash cost: %w", err)
	}
	return actualCost != cost, nil
}

// GenerateRandomSecret returns a URL-safe random token of n bytes of
// entropy, used for refresh tokens and tool-token plaintext secrets (the
// hash of which is what gets persisted).
func GenerateRandomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
