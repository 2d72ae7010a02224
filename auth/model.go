package auth

import (
	"time"

	"gorm.io/gorm"
)

// Standard role codes. The core semantics only care about these three; a
// deployment may add more without affecting the permission predicate.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Organization is the container for users and org-scoped documents (spec
// section 3).
type Organization struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string `gorm:"size:255;not null"`
	Description string `gorm:"type:text"`
	CreatedAt   time.Time
}

// Role is a closed set for the core semantics plus any deployment-defined
// extras; SystemFlag marks the three built-ins so they cannot be deleted.
type Role struct {
	Code       string `gorm:"primaryKey;size:50"`
	Name       string `gorm:"size:100;not null"`
	SystemFlag bool   `gorm:"not null;default:false"`
}

// User belongs to at most one organization. IsSuperuser bypasses every
// permission predicate evaluated in the permission package.
type User struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Username     string `gorm:"size:50;uniqueIndex;not null"`
	Email        string `gorm:"size:255;index"`
	PasswordHash string `gorm:"size:255;not null"`
	OrgID        string `gorm:"type:uuid;index;not null"`
	IsActive     bool   `gorm:"not null;default:true"`
	IsSuperuser  bool   `gorm:"not null;default:false"`
	RoleCodes    StringSet `gorm:"type:text;serializer:json"`
	CreatedAt    time.Time
	LastLoginAt  *time.Time
	FailedLogins int `gorm:"not null;default:0"`
	Locked       bool `gorm:"not null;default:false"`
}

// HasRole reports whether the user carries role r.
func (u *User) HasRole(r string) bool { return u.RoleCodes.Contains(r) }

// HasAnyRole reports whether the user carries any of roles.
func (u *User) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// StringSet is a small JSON-serialized set type reused for RoleCodes,
// DocumentVersion.SharedUserIDs, and DocumentVersion.SharedRoleCodes in the
// catalog package.
type StringSet []string

// Contains reports whether v is a member of the set.
func (s StringSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Intersects reports whether s and other share at least one member.
func (s StringSet) Intersects(other StringSet) bool {
	for _, x := range s {
		if other.Contains(x) {
			return true
		}
	}
	return false
}

// TokenKind distinguishes the three SessionToken/ToolToken flavors named in
// spec section 3.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
	TokenKindTool    TokenKind = "tool"
)

// RefreshToken is a persisted, single-use, hashed refresh token. Access
// tokens themselves are never persisted (spec section 4.12: stateless
// bearer JWTs); only refresh and tool tokens need a durable row because
// both must be revocable by id.
type RefreshToken struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	UserID     string `gorm:"type:uuid;index;not null"`
	TokenHash  string `gorm:"size:255;not null"`
	ExpiresAt  time.Time
	CreatedAt  time.Time
	LastUsedAt *time.Time
	Revoked    bool `gorm:"not null;default:false"`
}

// ToolToken is a long-lived bearer credential bound to a user (spec section
// 3). The credential itself is a signed JWT whose jti is this row's ID;
// validation checks the signature, then this row's Active flag and expiry.
// SecretHash holds a bcrypt hash of the JWT's SHA-256 digest.
type ToolToken struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	OwnerID    string `gorm:"type:uuid;index;not null"`
	Name       string `gorm:"size:100;not null"`
	SecretHash string `gorm:"size:255;not null"`
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	Active     bool `gorm:"not null;default:true"`
}

// Expired reports whether the tool token's optional expiry has passed.
func (t *ToolToken) Expired() bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now())
}

// AuditLog is a minimal audit trail entry, grounded on the teacher's
// auth.AuditLog but trimmed to the fields this engine actually populates.
type AuditLog struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Timestamp time.Time
	UserID    string `gorm:"index"`
	Username  string
	Action    string `gorm:"size:100"`
	Success   bool
	Message   string `gorm:"type:text"`
}

// AutoMigrate runs GORM's schema migration for every model this package
// owns, grounded on db/postgres.go's migration pattern.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Organization{}, &Role{}, &User{}, &RefreshToken{}, &ToolToken{}, &AuditLog{})
}
