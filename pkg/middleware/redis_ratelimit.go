/**
 * @description
 * Redis-backed rate limiter for multi-instance deployments, where the
 * in-memory sliding window would give each instance its own budget.
 * Uses a single Lua script so the counter increment and expiry are
 * atomic.
 */
package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter implements Limiter on top of a shared Redis counter.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit requests per
// identifier within a fixed window, tracked in Redis under prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "subguard:rate_limit"
	}
	return &RedisLimiter{
		client: client,
		prefix: trimmed,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether a request from identifier should proceed. Redis
// errors fail open: rate limiting is a soft defense and must never take
// the service down with it.
func (l *RedisLimiter) Allow(identifier string) bool {
	if l.client == nil || identifier == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := l.prefix + ":" + identifier
	count, err := rateLimitScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		log.Printf("WARN: redis rate limiter unavailable, failing open: %v", err)
		return true
	}
	return count <= int64(l.limit)
}
