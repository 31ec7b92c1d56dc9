//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/testutil"
)

func TestRedisArtifactCache_Integration(t *testing.T) {
	ctx := context.Background()
	client := testutil.StartRedis(t)
	c := NewRedisArtifactCache(client, WithKeyPrefix("it:"))
	key := DocumentKey("TP-1001", "v3", "a")

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, key, testArtifact("TP-1001", "v3", "%PDF-1.7\x00binary"), time.Hour))

		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []byte("%PDF-1.7\x00binary"), got.Data)
		assert.Equal(t, 6, got.Pages)
		assert.True(t, got.CacheHit)

		ttl, err := client.PTTL(ctx, "it:"+key.String()).Result()
		require.NoError(t, err)
		assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
	})

	t.Run("stale fenced put is dropped", func(t *testing.T) {
		fence, err := c.Fence(ctx, "TP-1001")
		require.NoError(t, err)

		require.NoError(t, c.Invalidate(ctx, "TP-1001"))

		stored, err := c.PutFenced(ctx, key, testArtifact("TP-1001", "v3", "stale"), time.Hour, fence)
		require.NoError(t, err)
		assert.False(t, stored)

		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("entries surviving a delete are fenced out", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, key, testArtifact("TP-1001", "v3", "x"), time.Hour))
		require.NoError(t, client.Incr(ctx, "it:fence:TP-1001").Err())

		got, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("fence keys expire and bound entry ttl", func(t *testing.T) {
		short := NewRedisArtifactCache(client, WithKeyPrefix("ttl:"), WithRedisFenceTTL(time.Minute))
		require.NoError(t, short.Invalidate(ctx, "TP-9"))

		ttl, err := client.PTTL(ctx, "ttl:fence:TP-9").Result()
		require.NoError(t, err)
		assert.Positive(t, ttl)
		assert.LessOrEqual(t, ttl, time.Minute)

		k := DocumentKey("TP-9", "v1", "a")
		require.NoError(t, short.Put(ctx, k, testArtifact("TP-9", "v1", "x"), 24*time.Hour))
		ttl, err = client.PTTL(ctx, "ttl:"+k.String()).Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Minute)

		before, err := short.Fence(ctx, "TP-9")
		require.NoError(t, err)
		require.NoError(t, short.InvalidatePattern(ctx, "doc:OTHER"))
		after, err := short.Fence(ctx, "TP-9")
		require.NoError(t, err)
		assert.Greater(t, after, before)
	})

	t.Run("pattern and flush", func(t *testing.T) {
		for _, id := range []string{"SS25-A", "SS25-B", "FW25-A"} {
			require.NoError(t, c.Put(ctx, DocumentKey(id, "v1", "a"), testArtifact(id, "v1", "x"), time.Hour))
		}
		require.NoError(t, c.InvalidatePattern(ctx, "doc:SS25-"))

		keys, err := client.Keys(ctx, "it:doc:*").Result()
		require.NoError(t, err)
		assert.Equal(t, []string{"it:doc:FW25-A:v:v1:document:a"}, keys)

		require.NoError(t, c.FlushAll(ctx))
		keys, err = client.Keys(ctx, "it:doc:*").Result()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestRedisInvalidationBus_Integration(t *testing.T) {
	client := testutil.StartRedis(t)

	publisher := NewRedisInvalidationBus(client)
	subscriber := NewRedisInvalidationBus(client)
	t.Cleanup(func() { subscriber.Close() })

	received := make(chan InvalidationMessage, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = subscriber.Subscribe(ctx, func(msg InvalidationMessage) { received <- msg })
	}()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, defaultInvalidationChannel).Result()
		return err == nil && n[defaultInvalidationChannel] > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, publisher.Publish(ctx, InvalidationMessage{Action: ActionDocuments, DocumentIDs: []string{"TP-1"}}))
	require.NoError(t, subscriber.Publish(ctx, InvalidationMessage{Action: ActionFlush}))

	select {
	case msg := <-received:
		assert.Equal(t, ActionDocuments, msg.Action)
		assert.Equal(t, publisher.Origin(), msg.Origin)
	case <-time.After(5 * time.Second):
		t.Fatal("invalidation message not received")
	}

	select {
	case msg := <-received:
		t.Fatalf("own message delivered: %+v", msg)
	case <-time.After(200 * time.Millisecond):
	}
}
