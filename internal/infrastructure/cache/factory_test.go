package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/infrastructure/config"
)

// unreachableRedis points at a port nothing listens on
var unreachableRedis = config.RedisConfig{Host: "127.0.0.1", Port: 1}

func TestArtifactCacheFactory_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		f := NewArtifactCacheFactory(config.CacheConfig{Backend: BackendMemory, CleanupInterval: time.Minute}, unreachableRedis)
		c, err := f.Create(ctx)
		require.NoError(t, err)
		defer c.Close()
		assert.IsType(t, &InMemoryArtifactCache{}, c)
	})

	t.Run("falls back to memory when redis is unreachable", func(t *testing.T) {
		f := NewArtifactCacheFactory(config.CacheConfig{Backend: BackendRedis}, unreachableRedis)
		c, err := f.Create(ctx)
		require.NoError(t, err)
		defer c.Close()
		assert.Equal(t, BackendMemory, c.Stats().Backend)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		f := NewArtifactCacheFactory(config.CacheConfig{Backend: BackendTiered}, unreachableRedis, WithInMemoryFallback(false))
		_, err := f.Create(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Redis required")
	})

	t.Run("unknown backend", func(t *testing.T) {
		f := NewArtifactCacheFactory(config.CacheConfig{Backend: "memcached"}, unreachableRedis)
		_, err := f.Create(ctx)
		assert.Error(t, err)
	})
}

func TestTTLPolicyFrom(t *testing.T) {
	p := TTLPolicyFrom(config.CacheConfig{DocumentTTL: time.Hour, PreviewTTL: time.Minute, MetaTTL: time.Second})
	assert.Equal(t, TTLPolicy{Document: time.Hour, Preview: time.Minute, Meta: time.Second}, p)
}
