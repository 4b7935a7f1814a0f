package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"trust-access-layer/backend/internal/db"
	"trust-access-layer/backend/internal/user/domain"
)

const userColumns = `id, tenant_id, email, password_hash, role, status, failed_attempts, locked_until, created_at, updated_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a principal repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM principals WHERE id = $1`, id)
}

// GetByEmail returns the tenant's user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM principals WHERE tenant_id = $1 AND email = $2`,
		tenantID, domain.NormalizeEmail(email))
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO principals (id, tenant_id, email, password_hash, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.TenantID, domain.NormalizeEmail(u.Email), u.PasswordHash, string(u.Role), string(u.Status),
		u.CreatedAt, u.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// UpdatePasswordHash replaces the password hash of id.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE principals SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	return err
}

// GetLockout returns the lockout columns of id, or nil if not found.
func (r *PostgresRepository) GetLockout(ctx context.Context, id string) (*domain.Lockout, error) {
	var l domain.Lockout
	err := r.pool.QueryRow(ctx, `SELECT failed_attempts, locked_until FROM principals WHERE id = $1`, id).
		Scan(&l.FailedAttempts, &l.LockedUntil)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// IncrementFailedAttempts adds one failure in a single statement so concurrent failures
// are all counted.
func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id string, now time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		UPDATE principals SET
			failed_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1 ELSE failed_attempts + 1 END,
			locked_until    = CASE WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN NULL ELSE locked_until END,
			updated_at      = $2
		WHERE id = $1
		RETURNING failed_attempts`, id, now,
	).Scan(&n)
	return n, err
}

// SetLockedUntil sets the cooldown expiry of id.
func (r *PostgresRepository) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE principals SET locked_until = $2, updated_at = now() WHERE id = $1`, id, until)
	return err
}

// ResetLockout clears the failure counter and cooldown of id.
func (r *PostgresRepository) ResetLockout(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE principals SET failed_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1 AND (failed_attempts <> 0 OR locked_until IS NOT NULL)`, id)
	return err
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		u      domain.User
		role   string
		status string
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &role, &status,
		&u.Lockout.FailedAttempts, &u.Lockout.LockedUntil, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	return &u, nil
}
