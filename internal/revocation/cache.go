package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the fast path in front of the durable log. It may hold more revocations than
// the log has committed, never fewer.
type Cache interface {
	Add(ctx context.Context, tokenID string, expiresAt time.Time) error
	Contains(ctx context.Context, tokenID string) (bool, error)
	// Cleanup evicts entries whose token expiry has passed.
	Cleanup(ctx context.Context, now time.Time) (int, error)
	// Clear empties the cache. The durable log is untouched.
	Clear(ctx context.Context) error
}

// Blacklist is a thread-safe in-memory set of revoked token IDs with their natural expiry.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewBlacklist creates an empty in-memory cache.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time)}
}

// Add records tokenID until expiresAt.
func (b *Blacklist) Add(_ context.Context, tokenID string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = expiresAt
	return nil
}

// Contains reports whether tokenID is cached as revoked.
func (b *Blacklist) Contains(_ context.Context, tokenID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[tokenID]
	return ok, nil
}

// Cleanup removes entries whose expiry is not after now.
func (b *Blacklist) Cleanup(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, exp := range b.entries {
		if !now.Before(exp) {
			delete(b.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Clear drops every entry.
func (b *Blacklist) Clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]time.Time)
	return nil
}

// Len returns the number of cached entries.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

const redisKeyPrefix = "revoked:"

// RedisCache shares revocations between instances. Keys expire with the token, so Cleanup
// has nothing to do.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache returns a Redis-backed cache.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Add sets revoked:<tokenID> with a TTL ending at expiresAt. Already expired tokens are skipped.
func (c *RedisCache) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, redisKeyPrefix+tokenID, 1, ttl).Err()
}

// Contains reports whether the key exists.
func (c *RedisCache) Contains(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.client.Exists(ctx, redisKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Cleanup is a no-op; Redis expires keys itself.
func (c *RedisCache) Cleanup(context.Context, time.Time) (int, error) { return 0, nil }

// Clear deletes every revoked:* key.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
