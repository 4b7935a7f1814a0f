// Package registry holds derived vault keys in guarded process memory, keyed by unlock
// scope. Keys are never persisted; they disappear on Lock, on idle expiry or when the
// process exits.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"go.uber.org/zap"

	"trust-access-layer/backend/internal/apperror"
)

// ErrLocked is returned by Use when the scope holds no key.
var ErrLocked = apperror.New(apperror.KindPermissionDenied, "vault is locked")

// Scope identifies one unlock session: a principal acting within a tenant.
type Scope struct {
	TenantID    string
	PrincipalID string
}

type entry struct {
	enclave  *memguard.Enclave
	lastUsed time.Time
}

// Registry maps scopes to sealed keys. A zero idleTTL disables idle expiry.
type Registry struct {
	mu      sync.RWMutex
	keys    map[Scope]*entry
	idleTTL time.Duration
	nowF    func() time.Time
	logger  *zap.Logger
}

// New returns an empty Registry.
func New(idleTTL time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		keys:    make(map[Scope]*entry),
		idleTTL: idleTTL,
		nowF:    time.Now,
		logger:  logger,
	}
}

// SetClock replaces the time source. For tests.
func (r *Registry) SetClock(now func() time.Time) { r.nowF = now }

// Install seals key into a memguard enclave under scope, replacing any previous key.
// The key slice is wiped.
func (r *Registry) Install(scope Scope, key []byte) {
	enclave := memguard.NewEnclave(key)
	r.mu.Lock()
	r.keys[scope] = &entry{enclave: enclave, lastUsed: r.nowF()}
	r.mu.Unlock()
}

// Lock removes the key for scope. Locking an already locked scope is a no-op.
func (r *Registry) Lock(scope Scope) {
	r.mu.Lock()
	delete(r.keys, scope)
	r.mu.Unlock()
}

// LockTenant removes every key held for tenantID. Used after credential rotation so no
// principal keeps a key derived from the old password.
func (r *Registry) LockTenant(tenantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for s := range r.keys {
		if s.TenantID == tenantID {
			delete(r.keys, s)
			n++
		}
	}
	return n
}

// IsUnlocked reports whether scope holds a live key.
func (r *Registry) IsUnlocked(scope Scope) bool {
	now := r.nowF()
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.keys[scope]
	return ok && !r.expired(e, now)
}

// Use opens the key for scope into a locked buffer, passes its bytes to fn and destroys
// the buffer when fn returns. fn must not retain the slice. Use refreshes the idle timer.
func (r *Registry) Use(scope Scope, fn func(key []byte) error) error {
	now := r.nowF()
	r.mu.Lock()
	e, ok := r.keys[scope]
	if ok && r.expired(e, now) {
		delete(r.keys, scope)
		ok = false
	}
	if ok {
		e.lastUsed = now
	}
	r.mu.Unlock()
	if !ok {
		return ErrLocked
	}

	buf, err := e.enclave.Open()
	if err != nil {
		return apperror.Internal(err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Len returns the number of unlocked scopes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Sweep locks every scope idle for longer than the idle TTL and returns how many it removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	now := r.nowF()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for s, e := range r.keys {
		if r.expired(e, now) {
			delete(r.keys, s)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("vault scopes locked after idle timeout", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return r.idleTTL > 0 && now.Sub(e.lastUsed) > r.idleTTL
}
