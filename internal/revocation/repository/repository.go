package repository

import (
	"context"
	"time"

	"trust-access-layer/backend/internal/revocation/domain"
)

// Repository is the durable revocation log.
type Repository interface {
	// Insert records e. Inserting an already revoked token id is a no-op.
	Insert(ctx context.Context, e *domain.Entry) error
	// Get returns the entry for tokenID, or nil if the token was never revoked.
	Get(ctx context.Context, tokenID string) (*domain.Entry, error)
	// DeleteExpired removes entries whose ExpiresAt is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
