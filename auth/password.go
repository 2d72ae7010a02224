package auth

import (
	"regexp"
	"strings"

	"kbengine.dev/security"
)

// HashPassword hashes a password at the given bcrypt cost, delegating the
// primitive to the security package.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return security.HashPasswordWithCost(password, cost)
}

// ValidatePassword checks a plaintext password against its bcrypt hash.
func ValidatePassword(password, hash string) error {
	if err := security.VerifyPassword(hash, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CheckPasswordStrength validates password strength against the configured
// policy.
func CheckPasswordStrength(password string, minLength int, requireStrong bool) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if len(password) < minLength {
		return ErrPasswordTooShort
	}
	if !requireStrong {
		return nil
	}

	var (
		hasUpper   = regexp.MustCompile(`[A-Z]`).MatchString(password)
		hasLower   = regexp.MustCompile(`[a-z]`).MatchString(password)
		hasNumber  = regexp.MustCompile(`[0-9]`).MatchString(password)
		hasSpecial = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`).MatchString(password)
	)
	if !hasUpper || !hasLower || !hasNumber || !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}

// ValidateUsername validates username format: 3-50 characters, alphanumeric
// plus underscore/hyphen.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 50 {
		return ErrInvalidUsername
	}
	if !regexp.MustCompile(`^[a-zA-Z0-9_-]+$`).MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateEmail validates email format. An empty email is accepted since
// email is optional in the data model.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	if !regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`).MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}
