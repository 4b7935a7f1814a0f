package repository

import (
	"context"
	"errors"
	"time"

	"trust-access-layer/backend/internal/user/domain"
)

// ErrEmailTaken is returned by Create when the tenant already has a principal with the email.
var ErrEmailTaken = errors.New("user: email already registered in tenant")

// Repository defines persistence for principals.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	LockoutStore
}

// LockoutStore persists failed-login counters on principals.
type LockoutStore interface {
	// GetLockout returns the lockout state of id, or nil if the principal does not exist.
	GetLockout(ctx context.Context, id string) (*domain.Lockout, error)
	// IncrementFailedAttempts atomically adds one failure and returns the new count. A lock
	// that expired at or before now is cleared first and the count restarts at one.
	IncrementFailedAttempts(ctx context.Context, id string, now time.Time) (int, error)
	SetLockedUntil(ctx context.Context, id string, until time.Time) error
	ResetLockout(ctx context.Context, id string) error
}
