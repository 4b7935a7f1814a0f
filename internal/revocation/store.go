// Package revocation tracks revoked token identifiers. Writes go to the durable log first
// and to the cache only after the log commits; reads consult the cache and fall back to
// the log on a miss, so a revocation is observed by every caller once Revoke returns,
// including after a restart or on another instance.
package revocation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
	"trust-access-layer/backend/internal/revocation/domain"
	"trust-access-layer/backend/internal/revocation/repository"
)

// Store combines the durable log with a cache.
type Store struct {
	repo   repository.Repository
	cache  Cache
	nowF   func() time.Time
	logger *zap.Logger
}

// NewStore returns a Store. cache defaults to an in-memory Blacklist.
func NewStore(repo repository.Repository, cache Cache, logger *zap.Logger) *Store {
	if cache == nil {
		cache = NewBlacklist()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, cache: cache, nowF: time.Now, logger: logger}
}

// Revoke durably records tokenID as revoked until expiresAt, then caches it. Revoking an
// already revoked token is a no-op. A cache failure after the durable write is logged and
// not returned: IsRevoked still finds the entry through the log.
func (s *Store) Revoke(ctx context.Context, tokenID, subject string, expiresAt time.Time, reason string) error {
	if tokenID == "" {
		return apperror.New(apperror.KindInvalidArgument, "token id is required")
	}
	entry := &domain.Entry{
		TokenID:   tokenID,
		Subject:   subject,
		Reason:    reason,
		RevokedAt: s.nowF().UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return apperror.Internal(err)
	}
	if err := s.cache.Add(ctx, tokenID, expiresAt); err != nil {
		s.logger.Warn("revocation: cache add failed", zap.String("token_id", tokenID), zap.Error(err))
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked. A cache error falls through to the
// durable log; a durable-log error is returned and callers must treat the token as revoked.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return true, nil
	}
	hit, err := s.cache.Contains(ctx, tokenID)
	if err != nil {
		s.logger.Warn("revocation: cache lookup failed", zap.Error(err))
	}
	if hit {
		return true, nil
	}
	entry, err := s.repo.Get(ctx, tokenID)
	if err != nil {
		return true, apperror.Internal(err)
	}
	if entry == nil {
		return false, nil
	}
	if err := s.cache.Add(ctx, tokenID, entry.ExpiresAt); err != nil {
		s.logger.Warn("revocation: cache backfill failed", zap.Error(err))
	}
	return true, nil
}

// CleanupExpired deletes durable entries and evicts cache entries whose token expiry has passed.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.nowF().UTC()
	n, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, apperror.Internal(err)
	}
	if _, err := s.cache.Cleanup(ctx, now); err != nil {
		s.logger.Warn("revocation: cache cleanup failed", zap.Error(err))
	}
	return n, nil
}

// ClearCache empties the cache, as a restart would. Used by operators and tests; the
// durable log keeps every revocation observable.
func (s *Store) ClearCache(ctx context.Context) error {
	return s.cache.Clear(ctx)
}
