package embcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"retrieval-pipeline/internal/domain"

	"github.com/redis/rueidis"
)

const redisKeyPrefix = "retrieval:emb_cache:"

// RedisConfig holds connection parameters for a Redis-backed cache.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache stores embeddings in Redis with server-side expiry, letting
// multiple pipeline replicas share one cache. Storage failures degrade to
// misses; they are logged, never surfaced.
type RedisCache struct {
	client rueidis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and returns a shared embedding cache.
func NewRedisCache(cfg RedisConfig, logger *slog.Logger) (*RedisCache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisCache{client: client, ttl: cfg.TTL, logger: logger}, nil
}

func (c *RedisCache) Get(ctx context.Context, query string) ([]float32, bool) {
	key := redisKeyPrefix + cacheKey(query)

	cmd := c.client.B().Get().Key(key).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("embedding_cache_read_failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("embedding_cache_entry_corrupt",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	return vec, true
}

func (c *RedisCache) Put(ctx context.Context, query string, embedding []float32) {
	key := redisKeyPrefix + cacheKey(query)

	cmd := c.client.B().Set().Key(key).Value(string(vectorToBytes(embedding))).Ex(c.ttl).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("embedding_cache_write_failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	cmd := c.client.B().Ping().Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (c *RedisCache) Close() {
	c.client.Close()
}

var _ domain.EmbeddingCache = (*RedisCache)(nil)
