package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trust-access-layer/backend/internal/db"
	"trust-access-layer/backend/internal/revocation/domain"
)

// PostgresRepository stores revocations in revoked_tokens.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a revocation repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Insert records e; a duplicate token id is ignored.
func (r *PostgresRepository) Insert(ctx context.Context, e *domain.Entry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (token_id, subject, reason, revoked_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_id) DO NOTHING`,
		e.TokenID, e.Subject, e.Reason, e.RevokedAt, e.ExpiresAt,
	)
	return err
}

// Get returns the entry for tokenID, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, tokenID string) (*domain.Entry, error) {
	var e domain.Entry
	err := r.pool.QueryRow(ctx, `
		SELECT token_id, subject, reason, revoked_at, expires_at
		FROM revoked_tokens WHERE token_id = $1`, tokenID,
	).Scan(&e.TokenID, &e.Subject, &e.Reason, &e.RevokedAt, &e.ExpiresAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// DeleteExpired removes entries that expired at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
