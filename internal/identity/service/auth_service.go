// Package service implements principal authentication: registration, password login with
// lockout, refresh, logout and password reset.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/audit"
	"trust-access-layer/backend/internal/lockout"
	"trust-access-layer/backend/internal/security"
	sessiondomain "trust-access-layer/backend/internal/session/domain"
	sessionservice "trust-access-layer/backend/internal/session/service"
	"trust-access-layer/backend/internal/telemetry"
	userdomain "trust-access-layer/backend/internal/user/domain"
	userrepo "trust-access-layer/backend/internal/user/repository"
)

// Sentinel errors for the auth service; the HTTP layer maps them via apperror.
var (
	ErrEmailAlreadyRegistered = apperror.New(apperror.KindConflict, "email already registered")
	// ErrInvalidCredentials covers unknown accounts, disabled accounts and wrong passwords alike.
	ErrInvalidCredentials  = apperror.New(apperror.KindAuthenticationFailure, "invalid credentials")
	ErrInvalidRefreshToken = apperror.New(apperror.KindAuthenticationFailure, "invalid or expired refresh token")
	ErrRefreshTokenReuse   = apperror.New(apperror.KindAuthenticationFailure, "refresh token reuse detected; all sessions revoked")
	ErrAccountLocked       = lockout.ErrAccountLocked
)

// AuthResult holds the outcome of Login (both tokens) or Refresh (access token only).
type AuthResult struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitzero"`
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	TenantID         string    `json:"tenant_id"`
}

// LoginRequest carries the credentials and client descriptors of one login attempt.
type LoginRequest struct {
	TenantID string
	Email    string
	Password string
	Device   string
	Origin   string
}

// UserRepo is the minimal principal repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// LockoutPolicy is the account lockout policy as seen by login.
type LockoutPolicy interface {
	IsLocked(ctx context.Context, principalID string) (bool, error)
	RecordFailure(ctx context.Context, principalID string) (locked bool, err error)
	RecordSuccess(ctx context.Context, principalID string) error
}

// SessionRegistry is the session registry as seen by the auth service.
type SessionRegistry interface {
	CreateSession(ctx context.Context, in sessionservice.NewSession) (*sessiondomain.Session, error)
	GetByTokenID(ctx context.Context, tokenID string) (*sessiondomain.Session, error)
	TouchSession(ctx context.Context, sessionID string)
	Revoke(ctx context.Context, sessionID, subject, reason string) error
	RevokeAll(ctx context.Context, subject, reason, exceptTokenID string) (int, error)
}

// RevocationStore is the revocation store as seen by the auth service.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID, subject string, expiresAt time.Time, reason string) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthService implements password login, refresh, logout and reset.
type AuthService struct {
	users       UserRepo
	lockout     LockoutPolicy
	sessions    SessionRegistry
	revocations RevocationStore
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	audit       audit.AuditLogger
	nowF        func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. auditLogger may be nil.
func NewAuthService(
	users UserRepo,
	lockoutPolicy LockoutPolicy,
	sessions SessionRegistry,
	revocations RevocationStore,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	auditLogger audit.AuditLogger,
) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{
		users:       users,
		lockout:     lockoutPolicy,
		sessions:    sessions,
		revocations: revocations,
		hasher:      hasher,
		tokens:      tokens,
		audit:       auditLogger,
		nowF:        time.Now,
	}
}

// Register creates a principal in tenantID. Used by the seed command and admin bootstrap.
func (s *AuthService) Register(ctx context.Context, tenantID, email, password string, role userdomain.Role) (*userdomain.User, error) {
	email = userdomain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, apperror.Internal(err)
	}
	now := s.nowF().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidArgument, err.Error(), err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepo.ErrEmailTaken) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, apperror.Internal(err)
	}
	return user, nil
}

// Login authenticates with email and password, creates a session and returns an access
// and refresh token pair. The lockout check runs before the password comparison, so a
// locked account rejects even the correct password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	email := userdomain.NormalizeEmail(req.Email)
	tenantID := strings.TrimSpace(req.TenantID)
	if email == "" || req.Password == "" || tenantID == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		s.hasher.CompareDummy([]byte(req.Password))
		s.audit.LogEvent(ctx, tenantID, "", string(telemetry.EventLoginFailure), "auth", map[string]any{"reason": "unknown_account"})
		return nil, ErrInvalidCredentials
	}
	locked, err := s.lockout.IsLocked(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventLoginFailure), "auth", map[string]any{"reason": "locked"})
		return nil, ErrAccountLocked
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(req.Password)); err != nil {
		nowLocked, ferr := s.lockout.RecordFailure(ctx, user.ID)
		if ferr != nil {
			return nil, ferr
		}
		s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventLoginFailure), "auth", map[string]any{"reason": "bad_password"})
		if nowLocked {
			s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventAccountLocked), "auth", nil)
		}
		return nil, ErrInvalidCredentials
	}
	if err := s.lockout.RecordSuccess(ctx, user.ID); err != nil {
		return nil, err
	}

	sub := security.Subject{ID: user.ID, TenantID: user.TenantID, SessionID: uuid.New().String(), Role: string(user.Role)}
	refresh, err := s.tokens.IssueRefresh(sub)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	access, err := s.tokens.IssueAccess(sub)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if _, err := s.sessions.CreateSession(ctx, sessionservice.NewSession{
		ID:               sub.SessionID,
		TenantID:         user.TenantID,
		Subject:          user.ID,
		TokenID:          refresh.ID,
		RefreshTokenHash: security.HashRefreshToken(refresh.Value),
		Device:           req.Device,
		Origin:           req.Origin,
		ExpiresAt:        refresh.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventLoginSuccess), "auth", map[string]any{"session_id": sub.SessionID})
	return &AuthResult{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
		SessionID:        sub.SessionID,
		UserID:           user.ID,
		TenantID:         user.TenantID,
	}, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. Presenting a revoked
// refresh token revokes every session of its subject.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.tokens.Validate(refreshToken, security.TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sub := claims.Principal()
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		n, rerr := s.sessions.RevokeAll(ctx, sub.ID, sessionservice.ReasonTokenReuse, "")
		meta := map[string]any{"session_id": sub.SessionID, "sessions_revoked": n}
		if rerr != nil {
			meta["revoke_error"] = rerr.Error()
			zap.L().Error("refresh reuse: revoke all sessions failed", zap.String("subject", sub.ID), zap.Error(rerr))
		}
		s.audit.LogEvent(ctx, sub.TenantID, sub.ID, string(telemetry.EventRefreshReuse), "auth", meta)
		if rerr != nil {
			return nil, rerr
		}
		return nil, ErrRefreshTokenReuse
	}
	sess, err := s.sessions.GetByTokenID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sessionservice.ErrSessionNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if sess.Subject != sub.ID || !sess.Active(s.nowF()) || !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.GetByID(ctx, sub.ID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidRefreshToken
	}
	s.sessions.TouchSession(ctx, sess.ID)

	sub.SessionID = sess.ID
	sub.Role = string(user.Role)
	access, err := s.tokens.IssueAccess(sub)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	s.audit.LogEvent(ctx, sub.TenantID, sub.ID, string(telemetry.EventTokenRefreshed), "auth", map[string]any{"session_id": sess.ID})
	return &AuthResult{
		AccessToken:     access.Value,
		AccessExpiresAt: access.ExpiresAt,
		SessionID:       sess.ID,
		UserID:          sub.ID,
		TenantID:        sub.TenantID,
	}, nil
}

// Logout revokes the caller's current session and the access token that made the request.
func (s *AuthService) Logout(ctx context.Context, claims *security.Claims) error {
	if claims == nil {
		return ErrInvalidCredentials
	}
	sub := claims.Principal()
	if sub.SessionID != "" {
		if err := s.sessions.Revoke(ctx, sub.SessionID, sub.ID, sessionservice.ReasonLogout); err != nil &&
			!errors.Is(err, sessionservice.ErrSessionNotFound) {
			return err
		}
	}
	if err := s.revocations.Revoke(ctx, claims.ID, sub.ID, claims.Expiry(), sessionservice.ReasonLogout); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, sub.TenantID, sub.ID, string(telemetry.EventLogout), "auth", map[string]any{"session_id": sub.SessionID})
	return nil
}

// ResetPassword replaces subject's password after verifying currentPassword, clears its
// lockout state and revokes every session of the subject. A wrong current password counts
// as a failed login and changes nothing else.
func (s *AuthService) ResetPassword(ctx context.Context, tenantID, subject, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		return apperror.Internal(err)
	}
	if user == nil || user.TenantID != tenantID {
		return apperror.New(apperror.KindNotFound, "principal not found")
	}
	locked, err := s.lockout.IsLocked(ctx, user.ID)
	if err != nil {
		return err
	}
	if locked {
		return ErrAccountLocked
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(currentPassword)); err != nil {
		nowLocked, ferr := s.lockout.RecordFailure(ctx, user.ID)
		if ferr != nil {
			return ferr
		}
		s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventLoginFailure), "auth", map[string]any{"reason": "bad_current_password"})
		if nowLocked {
			s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventAccountLocked), "auth", nil)
		}
		return ErrInvalidCredentials
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return apperror.Internal(err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hashed); err != nil {
		return apperror.Internal(err)
	}
	if err := s.lockout.RecordSuccess(ctx, user.ID); err != nil {
		return err
	}
	n, err := s.sessions.RevokeAll(ctx, user.ID, sessionservice.ReasonPasswordReset, "")
	if err != nil {
		return err
	}
	s.audit.LogEvent(ctx, tenantID, user.ID, string(telemetry.EventPasswordReset), "auth", map[string]any{"sessions_revoked": n})
	return nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return apperror.New(apperror.KindInvalidArgument, "email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperror.New(apperror.KindInvalidArgument, "invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return apperror.New(apperror.KindInvalidArgument, "password must be at least 12 characters")
	}
	if len(password) > security.MaxPasswordBytes {
		return apperror.New(apperror.KindInvalidArgument, fmt.Sprintf("password must be at most %d bytes", security.MaxPasswordBytes))
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	switch {
	case !hasUpper:
		return apperror.New(apperror.KindInvalidArgument, "password must contain at least one uppercase letter")
	case !hasLower:
		return apperror.New(apperror.KindInvalidArgument, "password must contain at least one lowercase letter")
	case !hasNumber:
		return apperror.New(apperror.KindInvalidArgument, "password must contain at least one number")
	case !hasSymbol:
		return apperror.New(apperror.KindInvalidArgument, "password must contain at least one symbol")
	}
	return nil
}
