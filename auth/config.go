package auth

import "time"

// Config mirrors config.AuthConfig plus the policy knobs that don't belong
// in the process-wide config object because they are pure auth-service
// behavior, not deployment wiring.
type Config struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	PasswordMinLength     int
	PasswordRequireStrong bool

	MaxFailedAttempts int
	LockoutDuration   time.Duration

	DefaultRole    string
	AvailableRoles []string
}

// DefaultConfig returns the defaults used when a deployment doesn't override
// a field explicitly.
func DefaultConfig() *Config {
	return &Config{
		AccessTokenTTL:        60 * time.Minute,
		RefreshTokenTTL:       7 * 24 * time.Hour,
		BcryptCost:            10,
		PasswordMinLength:     8,
		PasswordRequireStrong: false,
		MaxFailedAttempts:     5,
		LockoutDuration:       30 * time.Minute,
		DefaultRole:           RoleViewer,
		AvailableRoles:        []string{RoleAdmin, RoleEditor, RoleViewer},
	}
}
