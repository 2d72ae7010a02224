package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store is the persistence boundary for the auth package, grounded on the
// teacher's UserStore interface but scoped to the GORM/Postgres model this
// engine uses (C2's catalog owns the same *gorm.DB handle).
type Store interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context, orgID string) ([]*User, error)
	RecordLoginAttempt(ctx context.Context, userID string, success bool) error

	SaveRefreshToken(ctx context.Context, rt *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)

	CreateToolToken(ctx context.Context, t *ToolToken) error
	GetToolToken(ctx context.Context, id string) (*ToolToken, error)
	ListToolTokens(ctx context.Context, ownerID string) ([]*ToolToken, error)
	RevokeToolToken(ctx context.Context, id string) error
	TouchToolToken(ctx context.Context, id string, at time.Time) error

	SaveAuditLog(ctx context.Context, a *AuditLog) error
}

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) CreateOrganization(ctx context.Context, org *Organization) error {
	return s.db.WithContext(ctx).Create(org).Error
}

func (s *GormStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return err
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, u *User) error {
	return s.db.WithContext(ctx).Save(u).Error
}

func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&User{}, "id = ?", id).Error
}

func (s *GormStore) ListUsers(ctx context.Context, orgID string) ([]*User, error) {
	var users []*User
	q := s.db.WithContext(ctx)
	if orgID != "" {
		q = q.Where("org_id = ?", orgID)
	}
	if err := q.Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GormStore) RecordLoginAttempt(ctx context.Context, userID string, success bool) error {
	now := time.Now()
	updates := map[string]interface{}{}
	if success {
		updates["failed_logins"] = 0
		updates["locked"] = false
		updates["last_login_at"] = now
	} else {
		updates["failed_logins"] = gorm.Expr("failed_logins + 1")
	}
	return s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates).Error
}

func (s *GormStore) SaveRefreshToken(ctx context.Context, rt *RefreshToken) error {
	return s.db.WithContext(ctx).Create(rt).Error
}

func (s *GormStore) GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error) {
	var rt RefreshToken
	if err := s.db.WithContext(ctx).First(&rt, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &rt, nil
}

func (s *GormStore) RevokeRefreshToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&RefreshToken{}).Where("id = ?", id).Update("revoked", true).Error
}

func (s *GormStore) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&RefreshToken{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) CreateToolToken(ctx context.Context, t *ToolToken) error {
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) GetToolToken(ctx context.Context, id string) (*ToolToken, error) {
	var t ToolToken
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *GormStore) ListToolTokens(ctx context.Context, ownerID string) ([]*ToolToken, error) {
	var tokens []*ToolToken
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at").Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *GormStore) RevokeToolToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&ToolToken{}).Where("id = ?", id).Update("active", false).Error
}

func (s *GormStore) TouchToolToken(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&ToolToken{}).Where("id = ?", id).Update("last_used_at", at).Error
}

func (s *GormStore) SaveAuditLog(ctx context.Context, a *AuditLog) error {
	return s.db.WithContext(ctx).Create(a).Error
}
