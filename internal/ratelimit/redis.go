package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces limiter keys.
const DefaultRedisPrefix = "bulkpress:ratelimit:"

// Scores are microseconds. The key expires one window after the last
// admitted call.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return 1
`)

// RedisWindow applies the same sliding-window rule as SlidingWindow, with
// buckets kept in Redis sorted sets so several processes share one budget
// per provider.
type RedisWindow struct {
	client redis.UniversalClient
	limits Limits
	prefix string
	now    func() time.Time
}

// NewRedisWindow creates a shared limiter on client.
func NewRedisWindow(client redis.UniversalClient, limits Limits, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisWindow{client: client, limits: limits, prefix: prefix, now: time.Now}
}

// Admit runs the window check atomically in Redis.
func (r *RedisWindow) Admit(ctx context.Context, identity string) (bool, error) {
	limit := r.limits.For(identity)
	if limit.unlimited() {
		return true, nil
	}

	now := r.now().UnixMicro()
	member := fmt.Sprintf("%d:%s", now, uuid.NewString())
	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.prefix + identity},
		now, limit.Window.Microseconds(), limit.MaxRequests, member,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}
