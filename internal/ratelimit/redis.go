package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

return {1, now + window}
`)

// RedisLimiter is the shared-counter variant for multi-process deployments:
// a ZSET of request timestamps per key, trimmed and counted atomically by a
// Lua script. Denies on redis errors rather than letting traffic through
// unmetered.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Check implements ScopeLimiter.
func (l *RedisLimiter) Check(ctx context.Context, key string) (bool, time.Duration) {
	now := time.Now().Unix()
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	result, err := slidingWindowScript.Run(
		ctx, l.client, []string{fullKey},
		now, int64(l.window.Seconds()), l.limit,
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, denying request for safety")
		return false, l.window
	}
	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected rate limit result, denying request for safety")
		return false, l.window
	}

	if result[0] == 1 {
		return true, 0
	}
	resetAfter := time.Until(time.Unix(result[1], 0))
	if resetAfter < 0 {
		resetAfter = 0
	}
	return false, resetAfter
}
