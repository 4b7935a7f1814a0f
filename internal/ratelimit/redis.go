package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// slidingWindowScript trims, counts and conditionally records in one round trip so
// concurrent instances cannot overshoot the quota. Scores are unix milliseconds.
// Returns {limited, remaining, oldestScore}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then oldestScore = tonumber(oldest[2]) end
if count >= max then
  return {1, 0, oldestScore}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {0, max - count - 1, oldestScore}
`)

// RedisWindow is a Limiter shared by every instance, one sorted set per key.
type RedisWindow struct {
	client redis.UniversalClient
	nowF   func() time.Time
}

// NewRedisWindow returns a Redis-backed limiter.
func NewRedisWindow(client redis.UniversalClient) *RedisWindow {
	return &RedisWindow{client: client, nowF: time.Now}
}

// Allow implements Limiter with the same semantics as SlidingWindow.
func (w *RedisWindow) Allow(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	now := w.nowF()
	res, err := slidingWindowScript.Run(ctx, w.client, []string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return Decision{
		Limited:   res[0] == 1,
		Limit:     max,
		Remaining: int(res[1]),
		Reset:     time.UnixMilli(res[2]).Add(window),
	}, nil
}
