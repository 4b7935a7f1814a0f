package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trust-access-layer/backend/internal/db"
	"trust-access-layer/backend/internal/vault/domain"
)

// PostgresRepository stores vault configurations in vault_configurations.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a vault repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get returns the configuration for tenantID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, tenantID string) (*domain.Configuration, error) {
	var c domain.Configuration
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id, password_hash, salt, kdf_iterations, created_at, updated_at
		FROM vault_configurations WHERE tenant_id = $1`, tenantID,
	).Scan(&c.TenantID, &c.PasswordHash, &c.Salt, &c.KDFIterations, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts cfg. The tenant_id primary key guarantees at most one configuration per
// tenant; a concurrent second setup gets ErrAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, cfg *domain.Configuration) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO vault_configurations (tenant_id, password_hash, salt, kdf_iterations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		cfg.TenantID, cfg.PasswordHash, cfg.Salt, cfg.KDFIterations, now,
	)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

// UpdateCredentials replaces the stored hash, salt and iteration count.
func (r *PostgresRepository) UpdateCredentials(ctx context.Context, cfg *domain.Configuration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE vault_configurations
		SET password_hash = $2, salt = $3, kdf_iterations = $4, updated_at = now()
		WHERE tenant_id = $1`,
		cfg.TenantID, cfg.PasswordHash, cfg.Salt, cfg.KDFIterations,
	)
	return err
}
