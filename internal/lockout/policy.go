// Package lockout implements the account lockout policy: a persistent failed-login
// counter per principal that locks the account for a cooldown once a threshold is reached.
// Login flows must call IsLocked before comparing the password.
package lockout

import (
	"context"
	"time"

	"trust-access-layer/backend/internal/apperror"
	userrepo "trust-access-layer/backend/internal/user/repository"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 15 * time.Minute
)

// ErrAccountLocked is returned to a principal whose cooldown is running.
var ErrAccountLocked = apperror.New(apperror.KindLocked, "account is temporarily locked")

// Policy applies the threshold and cooldown over a LockoutStore.
type Policy struct {
	store     userrepo.LockoutStore
	threshold int
	cooldown  time.Duration
	nowF      func() time.Time
}

// NewPolicy returns a Policy. Non-positive threshold or cooldown fall back to the defaults.
func NewPolicy(store userrepo.LockoutStore, threshold int, cooldown time.Duration) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Policy{store: store, threshold: threshold, cooldown: cooldown, nowF: time.Now}
}

// IsLocked reports whether principalID's cooldown is in the future. Unknown principals are not locked.
func (p *Policy) IsLocked(ctx context.Context, principalID string) (bool, error) {
	l, err := p.store.GetLockout(ctx, principalID)
	if err != nil {
		return false, apperror.Internal(err)
	}
	return l != nil && l.LockedAt(p.nowF()), nil
}

// RecordFailure counts one failed attempt. When the count reaches the threshold the
// principal is locked until now + cooldown and locked is true. A failure after an expired
// cooldown starts a fresh count.
func (p *Policy) RecordFailure(ctx context.Context, principalID string) (locked bool, err error) {
	now := p.nowF()
	n, err := p.store.IncrementFailedAttempts(ctx, principalID, now)
	if err != nil {
		return false, apperror.Internal(err)
	}
	if n < p.threshold {
		return false, nil
	}
	if err := p.store.SetLockedUntil(ctx, principalID, now.Add(p.cooldown).UTC()); err != nil {
		return false, apperror.Internal(err)
	}
	return true, nil
}

// RecordSuccess resets the counter and any cooldown.
func (p *Policy) RecordSuccess(ctx context.Context, principalID string) error {
	if err := p.store.ResetLockout(ctx, principalID); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// Threshold returns the number of failures that lock an account.
func (p *Policy) Threshold() int { return p.threshold }

// Cooldown returns the lock duration.
func (p *Policy) Cooldown() time.Duration { return p.cooldown }

// SetClock replaces the time source. Used by tests.
func (p *Policy) SetClock(now func() time.Time) { p.nowF = now }
