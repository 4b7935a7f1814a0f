package repository

import (
	"context"
	"sync"
	"time"

	"trust-access-layer/backend/internal/user/domain"
)

// MemoryRepository is an in-memory Repository for tests and local tooling.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*domain.User)}
}

// GetByID returns a copy of the user for id, or nil if not found.
func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.users[id]), nil
}

// GetByEmail returns a copy of the tenant's user with email, or nil if not found.
func (m *MemoryRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = domain.NormalizeEmail(email)
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return clone(u), nil
		}
	}
	return nil, nil
}

// Create stores a copy of u.
func (m *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := domain.NormalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.TenantID == u.TenantID && existing.Email == email {
			return ErrEmailTaken
		}
	}
	c := clone(u)
	c.Email = email
	m.users[u.ID] = c
	return nil
}

// UpdatePasswordHash replaces the password hash of id.
func (m *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

// GetLockout returns the lockout state of id, or nil if not found.
func (m *MemoryRepository) GetLockout(ctx context.Context, id string) (*domain.Lockout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	l := u.Lockout
	return &l, nil
}

// IncrementFailedAttempts mirrors the Postgres statement.
func (m *MemoryRepository) IncrementFailedAttempts(ctx context.Context, id string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil
	}
	if u.Lockout.LockedUntil != nil && !u.Lockout.LockedUntil.After(now) {
		u.Lockout = domain.Lockout{}
	}
	u.Lockout.FailedAttempts++
	return u.Lockout.FailedAttempts, nil
}

// SetLockedUntil sets the cooldown expiry of id.
func (m *MemoryRepository) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Lockout.LockedUntil = &until
	}
	return nil
}

// ResetLockout clears the counter and cooldown of id.
func (m *MemoryRepository) ResetLockout(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Lockout = domain.Lockout{}
	}
	return nil
}

func clone(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Lockout.LockedUntil != nil {
		t := *u.Lockout.LockedUntil
		c.Lockout.LockedUntil = &t
	}
	return &c
}
