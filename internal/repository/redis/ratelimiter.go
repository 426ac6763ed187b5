package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "tb:"
)

// tokenBucketScript refills and takes one token in a single server-side step.
// KEYS[1] bucket hash; ARGV capacity, refill per minute, now (ms), idle expiry (s).
// Refill only advances ts when at least one whole token was added, so partial
// progress toward the next token is kept.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local expiry = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
else
  local elapsed = now - ts
  if elapsed > 0 then
    local add = math.floor(elapsed * refill / 60000)
    if add > 0 then
      tokens = math.min(capacity, tokens + add)
      ts = now
    end
  end
end

local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "ts", ts)
redis.call("EXPIRE", key, expiry)
return allowed
`)

// RateLimiter implements domain.RateLimiter as a Redis token bucket per scope key
type RateLimiter struct {
	client     *Client
	idleExpiry time.Duration
	now        func() time.Time
}

// NewRateLimiter creates a new RateLimiter. Buckets untouched for idleExpiry are dropped.
func NewRateLimiter(client *Client, idleExpiry time.Duration) *RateLimiter {
	if idleExpiry < time.Second {
		idleExpiry = time.Second
	}
	return &RateLimiter{
		client:     client,
		idleExpiry: idleExpiry,
		now:        time.Now,
	}
}

// WithClock replaces the time source, for tests
func (r *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	r.now = now
	return r
}

// rateLimitKey returns the Redis key for a scope key such as "tenant:t1"
func rateLimitKey(scopeKey string) string {
	return rateLimitKeyPrefix + scopeKey
}

// Allow takes one token from the bucket for scopeKey
func (r *RateLimiter) Allow(ctx context.Context, scopeKey string, capacity, refillPerMinute int) (bool, error) {
	if capacity <= 0 {
		return false, nil
	}

	res, err := tokenBucketScript.Run(ctx, r.client.client,
		[]string{rateLimitKey(scopeKey)},
		capacity,
		refillPerMinute,
		r.now().UnixMilli(),
		int64(r.idleExpiry/time.Second),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	return res == 1, nil
}
