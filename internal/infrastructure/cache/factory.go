package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/techpack/backend/internal/infrastructure/config"
)

// ArtifactCacheFactory creates artifact caches based on configuration
type ArtifactCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	client                *redis.Client
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ArtifactCacheFactoryOption is a functional option for configuring the factory
type ArtifactCacheFactoryOption func(*ArtifactCacheFactory)

// WithLogger sets the logger for the factory and the caches it builds
func WithLogger(logger *zap.Logger) ArtifactCacheFactoryOption {
	return func(f *ArtifactCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) ArtifactCacheFactoryOption {
	return func(f *ArtifactCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithRedisClient shares an existing client instead of dialing a new one.
// The caller keeps ownership of the client.
func WithRedisClient(client *redis.Client) ArtifactCacheFactoryOption {
	return func(f *ArtifactCacheFactory) {
		f.client = client
	}
}

// NewArtifactCacheFactory creates a new factory
func NewArtifactCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...ArtifactCacheFactoryOption) *ArtifactCacheFactory {
	f := &ArtifactCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateInMemory creates a process-local cache.
// In-memory caches do not share invalidations across instances.
func (f *ArtifactCacheFactory) CreateInMemory() *InMemoryArtifactCache {
	return NewInMemoryArtifactCache(
		WithCleanupInterval(f.cacheConfig.CleanupInterval),
		WithFenceTTL(f.cacheConfig.FenceTTL))
}

// CreateRedis creates a Redis-backed cache
func (f *ArtifactCacheFactory) CreateRedis(ctx context.Context) (*RedisArtifactCache, error) {
	opts := []RedisArtifactCacheOption{
		WithKeyPrefix(f.cacheConfig.KeyPrefix),
		WithRedisFenceTTL(f.cacheConfig.FenceTTL),
		WithCacheLogger(f.logger),
	}

	client := f.client
	if client == nil {
		var err error
		client, err = NewRedisClient(ctx, f.redisConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis artifact cache: %w", err)
		}
		opts = append(opts, WithOwnedClient())
	} else if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to create Redis artifact cache: %w", err)
	}

	return NewRedisArtifactCache(client, opts...), nil
}

// CreateTiered creates an L1 in-memory tier in front of Redis with a
// Pub/Sub invalidation bus. The caller starts the subscription.
func (f *ArtifactCacheFactory) CreateTiered(ctx context.Context) (*TieredArtifactCache, error) {
	l2, err := f.CreateRedis(ctx)
	if err != nil {
		return nil, err
	}
	bus := NewRedisInvalidationBus(l2.Client(),
		WithInvalidationChannel(f.cacheConfig.InvalidationChannel),
		WithInvalidationLogger(f.logger))

	return NewTieredArtifactCache(f.CreateInMemory(), l2, bus,
		WithL1TTL(f.cacheConfig.L1TTL),
		WithTieredLogger(f.logger)), nil
}

// Create builds the configured backend. When Redis is unreachable and
// fallback is allowed it returns the in-memory cache with a warning.
func (f *ArtifactCacheFactory) Create(ctx context.Context) (ArtifactCache, error) {
	var (
		c   ArtifactCache
		err error
	)
	switch f.cacheConfig.Backend {
	case "", BackendMemory:
		f.logger.Info("using in-memory artifact cache")
		return f.CreateInMemory(), nil
	case BackendRedis:
		c, err = f.CreateRedis(ctx)
	case BackendTiered:
		c, err = f.CreateTiered(ctx)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", f.cacheConfig.Backend)
	}
	if err == nil {
		f.logger.Info("using Redis artifact cache", zap.String("backend", f.cacheConfig.Backend))
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for artifact cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory artifact cache. "+
		"Invalidations will not reach other instances.",
		zap.Error(err),
	)
	return f.CreateInMemory(), nil
}

// TTLPolicyFrom builds the TTL policy from configuration
func TTLPolicyFrom(cfg config.CacheConfig) TTLPolicy {
	return TTLPolicy{Document: cfg.DocumentTTL, Preview: cfg.PreviewTTL, Meta: cfg.MetaTTL}
}
