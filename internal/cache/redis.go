package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/audio-gateway/internal/config"
	"github.com/JakeFAU/audio-gateway/internal/metrics"
)

// Redis stores artifacts in Redis with an optional TTL. All failures are
// treated as misses so a flapping Redis never takes requests down with it.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedis builds the Redis cache backend. TTLSeconds <= 0 keeps artifacts
// until Redis evicts them itself.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       time.Duration(cfg.TTLSeconds) * time.Second,
		logger:    logger,
	}
}

// Get returns the artifact when present.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
			metrics.ObserveCacheEvent("redis", "error")
		}
		metrics.ObserveCacheEvent("redis", "miss")
		return nil, false
	}
	metrics.ObserveCacheEvent("redis", "hit")
	return data, true
}

// Put stores the artifact. Failures are logged and dropped.
func (r *Redis) Put(ctx context.Context, key string, data []byte) {
	if err := r.client.Set(ctx, r.keyPrefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveCacheEvent("redis", "error")
		return
	}
	metrics.ObserveCacheEvent("redis", "write")
}

// Ping probes the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
