package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"trust-access-layer/backend/internal/audit/domain"
)

// PostgresRepository stores audit logs in audit_logs.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit log repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	var meta any
	if a.Metadata != "" {
		meta = a.Metadata
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, subject, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		a.ID, a.TenantID, a.Subject, a.Action, a.Resource, a.IP, meta, a.CreatedAt,
	)
	return err
}

// ListByTenant returns the tenant's audit logs, newest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, subject, action, resource, ip, COALESCE(metadata::text, ''), created_at
		FROM audit_logs WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Subject, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
