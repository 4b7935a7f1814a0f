package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trust-access-layer/backend/internal/db"
	"trust-access-layer/backend/internal/session/domain"
)

const sessionColumns = `id, tenant_id, subject, token_id, refresh_token_hash, device, origin,
	created_at, last_used_at, expires_at, revoked_at, revoke_reason`

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a session repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists s. The session must have ID and TokenID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, tenant_id, subject, token_id, refresh_token_hash, device, origin,
			created_at, last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.TenantID, s.Subject, s.TokenID, s.RefreshTokenHash, s.Device, s.Origin,
		s.CreatedAt, s.LastUsedAt, s.ExpiresAt,
	)
	return err
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
}

// GetByTokenID returns the session whose refresh token has jti tokenID, or nil if not found.
func (r *PostgresRepository) GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_id = $1`, tokenID))
}

// ListActiveBySubject returns unrevoked, unexpired sessions of subject, newest first.
func (r *PostgresRepository) ListActiveBySubject(ctx context.Context, subject string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE subject = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC`, subject, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateLastUsed sets last_used_at for the session with the given id.
func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

// MarkRevoked revokes the session with id unless it is already revoked.
func (r *PostgresRepository) MarkRevoked(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2, revoke_reason = $3
		WHERE id = $1 AND revoked_at IS NULL`, id, at, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpired removes sessions that expired at or before now.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanOne(row pgx.Row) (*domain.Session, error) {
	s, err := scan(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scan(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.TenantID, &s.Subject, &s.TokenID, &s.RefreshTokenHash, &s.Device, &s.Origin,
		&s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt, &s.RevokedAt, &s.RevokeReason)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
