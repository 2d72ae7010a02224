package auth

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store used by unit tests in place of a Postgres
// connection, grounded on the teacher's MockS3Client pattern: plain maps
// guarded by a mutex, no network calls.
type MemStore struct {
	mu            sync.Mutex
	orgs          map[string]*Organization
	users         map[string]*User
	usersByName   map[string]string
	refreshTokens map[string]*RefreshToken
	toolTokens    map[string]*ToolToken
	auditLogs     []*AuditLog
}

func NewMemStore() *MemStore {
	return &MemStore{
		orgs:          make(map[string]*Organization),
		users:         make(map[string]*User),
		usersByName:   make(map[string]string),
		refreshTokens: make(map[string]*RefreshToken),
		toolTokens:    make(map[string]*ToolToken),
	}
}

func (m *MemStore) CreateOrganization(_ context.Context, org *Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[org.ID] = org
	return nil
}

func (m *MemStore) GetOrganization(_ context.Context, id string) (*Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return org, nil
}

func (m *MemStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.usersByName[u.Username] = u.ID
	return nil
}

func (m *MemStore) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MemStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usersByName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *MemStore) UpdateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

func (m *MemStore) ListUsers(_ context.Context, orgID string) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if orgID == "" || u.OrgID == orgID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemStore) RecordLoginAttempt(_ context.Context, userID string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	if success {
		u.FailedLogins = 0
		u.Locked = false
		now := time.Now()
		u.LastLoginAt = &now
	} else {
		u.FailedLogins++
	}
	return nil
}

func (m *MemStore) SaveRefreshToken(_ context.Context, rt *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshTokens[rt.ID] = rt
	return nil
}

func (m *MemStore) GetRefreshToken(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.refreshTokens[id]
	if !ok {
		return nil, ErrInvalidToken
	}
	return rt, nil
}

func (m *MemStore) RevokeRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.refreshTokens[id]
	if !ok {
		return ErrInvalidToken
	}
	rt.Revoked = true
	return nil
}

func (m *MemStore) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rt := range m.refreshTokens {
		if rt.ExpiresAt.Before(before) {
			delete(m.refreshTokens, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) CreateToolToken(_ context.Context, t *ToolToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolTokens[t.ID] = t
	return nil
}

func (m *MemStore) GetToolToken(_ context.Context, id string) (*ToolToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.toolTokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return t, nil
}

func (m *MemStore) ListToolTokens(_ context.Context, ownerID string) ([]*ToolToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ToolToken
	for _, t := range m.toolTokens {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemStore) RevokeToolToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.toolTokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	t.Active = false
	return nil
}

func (m *MemStore) TouchToolToken(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.toolTokens[id]
	if !ok {
		return ErrTokenNotFound
	}
	t.LastUsedAt = &at
	return nil
}

func (m *MemStore) SaveAuditLog(_ context.Context, a *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, a)
	return nil
}
