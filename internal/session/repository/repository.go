package repository

import (
	"context"
	"time"

	"trust-access-layer/backend/internal/session/domain"
)

// Repository defines persistence for sessions. Getters return (nil, nil) for missing rows.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error)
	// ListActiveBySubject returns unrevoked sessions of subject that expire after now, newest first.
	ListActiveBySubject(ctx context.Context, subject string, now time.Time) ([]*domain.Session, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	// MarkRevoked sets the revocation fields if the session is not already revoked and
	// reports whether it changed anything.
	MarkRevoked(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
