//go:build integration

package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techpack/backend/internal/testutil"
)

func TestRedisStore_Integration(t *testing.T) {
	ctx := context.Background()
	client := testutil.StartRedis(t)
	store := NewRedisStore(client)

	t.Run("sets expiry on first increment only", func(t *testing.T) {
		n, err := store.Increment(ctx, "adm:k1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		ttl, err := client.PTTL(ctx, "adm:k1").Result()
		require.NoError(t, err)
		assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 2)

		require.NoError(t, client.PExpire(ctx, "adm:k1", 10*time.Minute).Err())
		n, err = store.Increment(ctx, "adm:k1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		ttl, err = client.PTTL(ctx, "adm:k1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 5*time.Minute)
	})

	t.Run("controller shares budget across instances", func(t *testing.T) {
		budgets := testBudgets(2, 1, 1)
		a, err := NewController(budgets, store, WithKeyPrefix("it:adm:"))
		require.NoError(t, err)
		b, err := NewController(budgets, NewRedisStore(client), WithKeyPrefix("it:adm:"))
		require.NoError(t, err)

		require.NoError(t, a.Admit(ctx, "user-1", ClassSingle))
		require.NoError(t, b.Admit(ctx, "user-1", ClassSingle))

		d, err := a.TryAdmit(ctx, "user-1", ClassSingle)
		require.NoError(t, err)
		assert.False(t, d.Admitted)
		assert.Positive(t, d.RetryAfter)
	})

	t.Run("closed client fails open", func(t *testing.T) {
		c, err := NewController(testBudgets(1, 1, 1), NewRedisStore(testutil.StartRedis(t)))
		require.NoError(t, err)
		require.NoError(t, c.store.(*RedisStore).client.Close())

		for i := 0; i < 3; i++ {
			assert.NoError(t, c.Admit(ctx, "user-1", ClassSingle))
		}
	})
}
