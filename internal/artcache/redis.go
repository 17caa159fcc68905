package artcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces artwork keys so the cache can share a database with
// other tenants.
const keyPrefix = "audiio:art:"

func init() {
	Register("redis", newRedisCache)
}

// redisCache stores each image under its own key with a server-side TTL.
// Capacity is the server's concern (maxmemory with an LRU policy), so the
// configured Size is ignored and evictions never reach OnEvict.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger Logger
}

func newRedisCache(cfg ProviderConfig) (Cache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Verify connectivity.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &redisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}, nil
}

func (r *redisCache) key(sourceURL string) string {
	return keyPrefix + sourceURL
}

func (r *redisCache) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, err)
	}
}

func (r *redisCache) Get(sourceURL string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	image, err := r.client.Get(ctx, r.key(sourceURL)).Bytes()
	if err != nil {
		// redis.Nil means the key doesn't exist, a normal cache miss.
		if !errors.Is(err, redis.Nil) {
			r.logError("redis artwork Get failed", err)
		}
		return nil, false
	}
	return image, true
}

func (r *redisCache) Set(sourceURL string, image []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Set(ctx, r.key(sourceURL), image, r.ttl).Err(); err != nil {
		r.logError("redis artwork Set failed", err)
	}
}

func (r *redisCache) Contains(sourceURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := r.client.Exists(ctx, r.key(sourceURL)).Result()
	if err != nil {
		r.logError("redis artwork Contains failed", err)
		return false
	}
	return n > 0
}

// Len counts the cache's keys with a SCAN walk. It runs at metrics scrape
// time against a small artwork keyspace.
func (r *redisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var count int
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		r.logError("redis artwork Len failed", err)
		return 0
	}
	return count
}

func (r *redisCache) Close() error {
	return r.client.Close()
}
