package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces cache entries in a shared Redis.
const DefaultKeyPrefix = "bulkpress:cache:"

const scanBatch = 500

// RedisStore is the shared cache level backed by Redis.
type RedisStore struct {
	storage *fiberredis.Storage
	prefix  string
}

// NewRedisStore connects to the Redis at url and verifies the connection.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{storage: fiberredis.NewFromConnection(client), prefix: prefix}
}

// Client returns the underlying Redis client so other components (the
// shared rate limiter) can reuse the connection pool.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.storage.Conn()
}

// Get fetches a value. Missing keys return nil, nil.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.storage.GetWithContext(ctx, s.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores a value with a TTL. A ttl of zero never expires.
func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := s.storage.SetWithContext(ctx, s.prefix+key, val, ttl); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteMatching walks the keyspace with SCAN and deletes matching keys in
// batches.
func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) ([]string, error) {
	client := s.storage.Conn()

	var (
		removed []string
		cursor  uint64
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, s.prefix+pattern, scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			for _, k := range keys {
				removed = append(removed, strings.TrimPrefix(k, s.prefix))
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.storage.Close()
}
