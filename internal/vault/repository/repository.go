package repository

import (
	"context"
	"errors"

	"trust-access-layer/backend/internal/vault/domain"
)

// ErrAlreadyExists is returned by Create when the tenant already has a configuration.
var ErrAlreadyExists = errors.New("vault configuration already exists")

// Repository defines persistence for vault configurations.
type Repository interface {
	// Get returns the configuration for tenantID, or nil if none exists.
	Get(ctx context.Context, tenantID string) (*domain.Configuration, error)
	Create(ctx context.Context, cfg *domain.Configuration) error
	// UpdateCredentials replaces hash, salt and iterations after a rotation.
	UpdateCredentials(ctx context.Context, cfg *domain.Configuration) error
}
