package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"trust-access-layer/backend/internal/session/domain"
)

// MemoryRepository is an in-memory Repository for tests and local tooling.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

// Create stores a copy of s.
func (m *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = clone(s)
	return nil
}

// GetByID returns a copy of the session for id, or nil if not found.
func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.sessions[id]), nil
}

// GetByTokenID returns a copy of the session for tokenID, or nil if not found.
func (m *MemoryRepository) GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenID == tokenID {
			return clone(s), nil
		}
	}
	return nil, nil
}

// ListActiveBySubject returns copies of subject's active sessions, newest first.
func (m *MemoryRepository) ListActiveBySubject(ctx context.Context, subject string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.Subject == subject && s.Active(now) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateLastUsed sets LastUsedAt of session id.
func (m *MemoryRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastUsedAt = at
	}
	return nil
}

// MarkRevoked revokes the session unless already revoked.
func (m *MemoryRepository) MarkRevoked(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	s.RevokedAt = &at
	s.RevokeReason = reason
	return true, nil
}

// DeleteExpired removes sessions that expired at or before now.
func (m *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func clone(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
