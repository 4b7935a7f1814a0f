// Package service implements the tenant secret vault: one-time setup, per-scope unlock and
// lock, field encryption for unlocked scopes, display masking and credential rotation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/audit"
	"trust-access-layer/backend/internal/security"
	"trust-access-layer/backend/internal/telemetry"
	"trust-access-layer/backend/internal/vault/cipher"
	"trust-access-layer/backend/internal/vault/domain"
	"trust-access-layer/backend/internal/vault/registry"
	"trust-access-layer/backend/internal/vault/repository"
)

// MinPasswordLength is the shortest accepted vault password.
const MinPasswordLength = 12

// Sentinel errors; the HTTP layer maps them via apperror.
var (
	ErrNotSetup        = apperror.New(apperror.KindNotFound, "vault is not set up")
	ErrAlreadySetup    = apperror.New(apperror.KindConflict, "vault is already set up")
	ErrInvalidPassword = apperror.New(apperror.KindAuthenticationFailure, "invalid vault password")
	ErrLocked          = registry.ErrLocked
	ErrWeakPassword    = apperror.New(apperror.KindInvalidArgument, fmt.Sprintf("vault password must be at least %d characters", MinPasswordLength))
	ErrPasswordTooLong = apperror.New(apperror.KindInvalidArgument, fmt.Sprintf("vault password must be at most %d bytes", security.MaxPasswordBytes))
)

// Scope is the unlock scope: a principal acting within a tenant.
type Scope = registry.Scope

// Rewrapper re-encrypts one stored field value from the old key to the new key during
// rotation. Legacy plaintext values are encrypted under the new key.
type Rewrapper interface {
	Rewrap(value string) (string, error)
}

// FieldRewrapper is supplied by the owner of the encrypted fields. It must pass every
// stored value of the tenant through rw and persist the results; returning an error aborts
// the rotation before any credential change.
type FieldRewrapper func(ctx context.Context, rw Rewrapper) error

// Service is the vault facade used by handlers and by resource owners in-process.
type Service struct {
	repo       repository.Repository
	keys       *registry.Registry
	hasher     *security.Hasher
	iterations int
	audit      audit.AuditLogger
}

// NewService returns a vault Service. iterations below cipher.MinIterations are raised.
func NewService(repo repository.Repository, keys *registry.Registry, hasher *security.Hasher, iterations int, auditLogger audit.AuditLogger) *Service {
	if iterations < cipher.MinIterations {
		iterations = cipher.DefaultIterations
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Service{repo: repo, keys: keys, hasher: hasher, iterations: iterations, audit: auditLogger}
}

// Setup creates the tenant's vault configuration. It derives and retains no key; the
// caller must Unlock afterwards.
func (s *Service) Setup(ctx context.Context, tenantID, subject, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	existing, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return apperror.Internal(err)
	}
	if existing != nil {
		return ErrAlreadySetup
	}
	cfg, err := s.newConfiguration(tenantID, password)
	if err != nil {
		return err
	}
	if err := s.repo.Create(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return ErrAlreadySetup
		}
		return apperror.Internal(err)
	}
	s.audit.LogEvent(ctx, tenantID, subject, string(telemetry.EventVaultSetup), "vault", nil)
	return nil
}

// Unlock verifies password against the tenant's stored hash and, on success, installs the
// derived key under scope. A wrong password changes no state.
func (s *Service) Unlock(ctx context.Context, scope Scope, password string) error {
	cfg, err := s.load(ctx, scope.TenantID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(cfg.PasswordHash, []byte(password)); err != nil {
		s.audit.LogEvent(ctx, scope.TenantID, scope.PrincipalID, string(telemetry.EventVaultUnlockFailed), "vault", nil)
		return ErrInvalidPassword
	}
	s.keys.Install(scope, cipher.DeriveKey([]byte(password), cfg.Salt, cfg.KDFIterations))
	s.audit.LogEvent(ctx, scope.TenantID, scope.PrincipalID, string(telemetry.EventVaultUnlock), "vault", nil)
	return nil
}

// Lock discards the key for scope. Idempotent.
func (s *Service) Lock(ctx context.Context, scope Scope) {
	wasUnlocked := s.keys.IsUnlocked(scope)
	s.keys.Lock(scope)
	if wasUnlocked {
		s.audit.LogEvent(ctx, scope.TenantID, scope.PrincipalID, string(telemetry.EventVaultLock), "vault", nil)
	}
}

// IsUnlocked reports whether scope currently holds a key.
func (s *Service) IsUnlocked(scope Scope) bool {
	return s.keys.IsUnlocked(scope)
}

// Status reports whether the tenant vault exists and whether scope is unlocked.
func (s *Service) Status(ctx context.Context, scope Scope) (*domain.Status, error) {
	cfg, err := s.repo.Get(ctx, scope.TenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &domain.Status{IsSetup: cfg != nil, IsUnlocked: cfg != nil && s.keys.IsUnlocked(scope)}, nil
}

// EncryptForScope encrypts plaintext with the key held for scope. Fails with
// PermissionDenied when the scope is locked.
func (s *Service) EncryptForScope(scope Scope, plaintext string) (string, error) {
	var out string
	err := s.keys.Use(scope, func(key []byte) error {
		var err error
		out, err = cipher.EncryptField(plaintext, key)
		return err
	})
	return out, err
}

// DecryptForScope decrypts value with the key held for scope. Values without the envelope
// tag are legacy plaintext: they are returned unchanged with legacy=true.
func (s *Service) DecryptForScope(scope Scope, value string) (plaintext string, legacy bool, err error) {
	err = s.keys.Use(scope, func(key []byte) error {
		if value != "" && !cipher.IsEncrypted(value) {
			plaintext, legacy = value, true
			return nil
		}
		var derr error
		plaintext, derr = cipher.DecryptField(value, key)
		return derr
	})
	if err != nil {
		return "", false, err
	}
	return plaintext, legacy, nil
}

// MaskForDisplay decrypts value for scope and redacts it with scheme. Redaction always
// operates on plaintext, never on ciphertext bytes.
func (s *Service) MaskForDisplay(scope Scope, value string, scheme cipher.Scheme) (string, error) {
	plaintext, _, err := s.DecryptForScope(scope, value)
	if err != nil {
		return "", err
	}
	return cipher.Mask(plaintext, scheme), nil
}

// Rotate changes the vault password. It verifies oldPassword, hands a Rewrapper to rewrap
// so the caller can re-encrypt every stored field, then replaces hash and salt. Every other
// unlocked scope of the tenant is locked; scope is left unlocked with the new key.
func (s *Service) Rotate(ctx context.Context, scope Scope, oldPassword, newPassword string, rewrap FieldRewrapper) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	cfg, err := s.load(ctx, scope.TenantID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(cfg.PasswordHash, []byte(oldPassword)); err != nil {
		s.audit.LogEvent(ctx, scope.TenantID, scope.PrincipalID, string(telemetry.EventVaultUnlockFailed), "vault", map[string]any{"operation": "rotate"})
		return ErrInvalidPassword
	}
	next, err := s.newConfiguration(scope.TenantID, newPassword)
	if err != nil {
		return err
	}

	oldKey := cipher.DeriveKey([]byte(oldPassword), cfg.Salt, cfg.KDFIterations)
	newKey := cipher.DeriveKey([]byte(newPassword), next.Salt, next.KDFIterations)
	defer memguard.WipeBytes(oldKey)

	if rewrap != nil {
		if err := rewrap(ctx, &keyRewrapper{oldKey: oldKey, newKey: newKey}); err != nil {
			memguard.WipeBytes(newKey)
			return err
		}
	}
	if err := s.repo.UpdateCredentials(ctx, next); err != nil {
		memguard.WipeBytes(newKey)
		return apperror.Internal(err)
	}
	s.keys.LockTenant(scope.TenantID)
	s.keys.Install(scope, newKey)
	s.audit.LogEvent(ctx, scope.TenantID, scope.PrincipalID, string(telemetry.EventVaultRotate), "vault", nil)
	return nil
}

func (s *Service) load(ctx context.Context, tenantID string) (*domain.Configuration, error) {
	cfg, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if cfg == nil {
		return nil, ErrNotSetup
	}
	return cfg, nil
}

func (s *Service) newConfiguration(tenantID, password string) (*domain.Configuration, error) {
	salt, err := cipher.NewSalt()
	if err != nil {
		return nil, apperror.Internal(err)
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &domain.Configuration{
		TenantID:      tenantID,
		PasswordHash:  hash,
		Salt:          salt,
		KDFIterations: s.iterations,
	}, nil
}

type keyRewrapper struct {
	oldKey []byte
	newKey []byte
}

func (r *keyRewrapper) Rewrap(value string) (string, error) {
	plaintext := value
	if cipher.IsEncrypted(value) {
		var err error
		if plaintext, err = cipher.DecryptField(value, r.oldKey); err != nil {
			return "", err
		}
	}
	return cipher.EncryptField(plaintext, r.newKey)
}

func validatePassword(password string) error {
	if len(strings.TrimSpace(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > security.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
