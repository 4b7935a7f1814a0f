package repository

import (
	"context"
	"sync"
	"time"

	"trust-access-layer/backend/internal/revocation/domain"
)

// MemoryRepository is an in-memory Repository for tests and local tooling. It stands in
// for the durable log; it does not survive a restart.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]domain.Entry
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]domain.Entry)}
}

// Insert records e unless the token id is already present.
func (m *MemoryRepository) Insert(ctx context.Context, e *domain.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.TokenID]; !ok {
		m.entries[e.TokenID] = *e
	}
	return nil
}

// Get returns the entry for tokenID, or nil if absent.
func (m *MemoryRepository) Get(ctx context.Context, tokenID string) (*domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[tokenID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// DeleteExpired removes entries whose ExpiresAt is not after now.
func (m *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}
