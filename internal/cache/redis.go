package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenlens/internal/metrics"
	"tokenlens/pkg/logger"
)

// Key prefix separating query cache entries from anything else in the
// database.
const redisKeyPrefix = "qc:"

// RedisStore is an alternative Store backend for deployments that already run
// Redis. Expiry is server-side (SET with EX), so stale entries surface as
// plain misses and the expired counter stays zero; the size budget is
// delegated to the server's maxmemory policy.
type RedisStore struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64
	errs   atomic.Uint64
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(uri string, defaultTTL time.Duration, log *logger.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis cache connected successfully")

	return &RedisStore{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     log,
	}, nil
}

// Get returns the cached payload if the key is still live on the server. The
// ttl argument is ignored here: expiry was fixed at write time.
func (r *RedisStore) Get(ctx context.Context, query string, variables map[string]any, ttl time.Duration) ([]byte, bool) {
	key := redisKeyPrefix + cacheKey(query, variables)

	payload, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		r.misses.Add(1)
		metrics.CacheOpsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	if err != nil {
		r.errs.Add(1)
		metrics.CacheOpsTotal.WithLabelValues("redis", "error").Inc()
		r.logger.Error("Cache read error: %v", err)
		return nil, false
	}

	r.hits.Add(1)
	metrics.CacheOpsTotal.WithLabelValues("redis", "hit").Inc()
	return payload, true
}

// Set writes the payload with server-side expiry of ttl (store default when
// zero).
func (r *RedisStore) Set(ctx context.Context, query string, variables map[string]any, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	key := redisKeyPrefix + cacheKey(query, variables)

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		r.errs.Add(1)
		metrics.CacheOpsTotal.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("cache write failed: %w", err)
	}

	r.writes.Add(1)
	metrics.CacheOpsTotal.WithLabelValues("redis", "write").Inc()
	return nil
}

// Delete removes the entry, reporting whether it existed.
func (r *RedisStore) Delete(ctx context.Context, query string, variables map[string]any) bool {
	key := redisKeyPrefix + cacheKey(query, variables)

	deleted, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.logger.Error("Cache delete error: %v", err)
		return false
	}
	return deleted > 0
}

// Clear removes every query cache entry, leaving other keys in the database
// untouched.
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache clear failed: %w", err)
	}

	r.logger.Info("Cache cleared")
	return nil
}

// CleanupExpired is a no-op: the server expires keys on its own.
func (r *RedisStore) CleanupExpired(ctx context.Context, ttl time.Duration) int {
	return 0
}

// EnforceSizeLimit is a no-op: the byte budget is the server's maxmemory
// policy.
func (r *RedisStore) EnforceSizeLimit(ctx context.Context) {}

// Stats reports counters plus a live key count. SizeBytes is not tracked for
// this backend.
func (r *RedisStore) Stats(ctx context.Context) Stats {
	st := Stats{
		Hits:   r.hits.Load(),
		Misses: r.misses.Load(),
		Writes: r.writes.Load(),
		Errors: r.errs.Load(),
	}

	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total) * 100
	}

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		st.EntryCount++
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Error calculating cache stats: %v", err)
	}

	return st
}

// ResetStats zeroes all counters.
func (r *RedisStore) ResetStats() {
	r.hits.Store(0)
	r.misses.Store(0)
	r.writes.Store(0)
	r.errs.Store(0)
}

// Close closes the Redis connection gracefully.
func (r *RedisStore) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
