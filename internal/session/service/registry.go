// Package service implements the session registry: the durable record of every issued
// refresh-capable session, with ownership-scoped reads and revocation.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/audit"
	"trust-access-layer/backend/internal/session/domain"
	"trust-access-layer/backend/internal/session/repository"
	"trust-access-layer/backend/internal/telemetry"
)

// Revocation reasons recorded on sessions and revocation entries.
const (
	ReasonLogout        = "logout"
	ReasonUserRevoked   = "user_revoked"
	ReasonRevokeOthers  = "revoke_others"
	ReasonPasswordReset = "password_reset"
	ReasonTokenReuse    = "refresh_token_reuse"
)

// ErrSessionNotFound is returned for missing sessions and for sessions owned by someone
// else, so callers cannot probe for foreign session ids.
var ErrSessionNotFound = apperror.New(apperror.KindNotFound, "session not found")

// Revoker is the revocation store as seen by the registry.
type Revoker interface {
	Revoke(ctx context.Context, tokenID, subject string, expiresAt time.Time, reason string) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// NewSession describes a session to create at login.
type NewSession struct {
	// ID is the session id already embedded in the issued tokens; generated when empty.
	ID               string
	TenantID         string
	Subject          string
	TokenID          string
	RefreshTokenHash string
	Device           string
	Origin           string
	ExpiresAt        time.Time
}

// Registry owns session records and revokes their refresh tokens through the revocation store.
type Registry struct {
	repo    repository.Repository
	revoker Revoker
	audit   audit.AuditLogger
	logger  *zap.Logger
	nowF    func() time.Time
}

// NewRegistry returns a Registry. auditLogger and logger may be nil.
func NewRegistry(repo repository.Repository, revoker Revoker, auditLogger audit.AuditLogger, logger *zap.Logger) *Registry {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{repo: repo, revoker: revoker, audit: auditLogger, logger: logger, nowF: time.Now}
}

// CreateSession persists a session for a freshly issued refresh token.
func (r *Registry) CreateSession(ctx context.Context, in NewSession) (*domain.Session, error) {
	if in.Subject == "" || in.TokenID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "subject and token id are required")
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := r.nowF().UTC()
	s := &domain.Session{
		ID:               id,
		TenantID:         in.TenantID,
		Subject:          in.Subject,
		TokenID:          in.TokenID,
		RefreshTokenHash: in.RefreshTokenHash,
		Device:           in.Device,
		Origin:           in.Origin,
		CreatedAt:        now,
		LastUsedAt:       now,
		ExpiresAt:        in.ExpiresAt.UTC(),
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, apperror.Internal(err)
	}
	return s, nil
}

// TouchSession records use of session sessionID, the session id carried by both tokens.
// Failures are logged and swallowed.
func (r *Registry) TouchSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := r.repo.UpdateLastUsed(ctx, sessionID, r.nowF().UTC()); err != nil {
		r.logger.Debug("session: touch failed", zap.Error(err))
	}
}

// ListActive returns subject's unrevoked, unexpired sessions.
func (r *Registry) ListActive(ctx context.Context, subject string) ([]*domain.Session, error) {
	list, err := r.repo.ListActiveBySubject(ctx, subject, r.nowF().UTC())
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return list, nil
}

// GetOwned returns the session with sessionID if subject owns it, and ErrSessionNotFound otherwise.
func (r *Registry) GetOwned(ctx context.Context, sessionID, subject string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	s, err := r.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if s == nil || s.Subject != subject {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// GetByTokenID returns the session paired with the refresh token jti, or ErrSessionNotFound.
func (r *Registry) GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	s, err := r.repo.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Revoke revokes subject's session sessionID and its refresh token. Revoking an already
// revoked session is a no-op.
func (r *Registry) Revoke(ctx context.Context, sessionID, subject, reason string) error {
	s, err := r.GetOwned(ctx, sessionID, subject)
	if err != nil {
		return err
	}
	if err := r.revoke(ctx, s, reason); err != nil {
		return err
	}
	r.audit.LogEvent(ctx, s.TenantID, subject, string(telemetry.EventSessionRevoked), "session",
		map[string]any{"session_id": s.ID, "reason": reason})
	return nil
}

// RevokeAll revokes every active session of subject except the one whose refresh token
// has jti exceptTokenID (empty spares none). It returns the number of sessions revoked.
func (r *Registry) RevokeAll(ctx context.Context, subject, reason, exceptTokenID string) (int, error) {
	list, err := r.ListActive(ctx, subject)
	if err != nil {
		return 0, err
	}
	n := 0
	tenantID := ""
	for _, s := range list {
		if exceptTokenID != "" && s.TokenID == exceptTokenID {
			continue
		}
		if err := r.revoke(ctx, s, reason); err != nil {
			return n, err
		}
		tenantID = s.TenantID
		n++
	}
	if n > 0 {
		r.audit.LogEvent(ctx, tenantID, subject, string(telemetry.EventSessionsRevoked), "session",
			map[string]any{"count": n, "reason": reason})
	}
	return n, nil
}

// revoke writes the revocation entry before marking the record, so a failure in between
// leaves the token rejected rather than accepted.
func (r *Registry) revoke(ctx context.Context, s *domain.Session, reason string) error {
	if err := r.revoker.Revoke(ctx, s.TokenID, s.Subject, s.ExpiresAt, reason); err != nil {
		return err
	}
	if _, err := r.repo.MarkRevoked(ctx, s.ID, r.nowF().UTC(), reason); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// CleanupExpired deletes expired sessions and expired revocation entries.
func (r *Registry) CleanupExpired(ctx context.Context) (sessions, revocations int64, err error) {
	sessions, err = r.repo.DeleteExpired(ctx, r.nowF().UTC())
	if err != nil {
		return 0, 0, apperror.Internal(err)
	}
	revocations, err = r.revoker.CleanupExpired(ctx)
	if err != nil {
		return sessions, 0, err
	}
	return sessions, revocations, nil
}
