package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statusable/internal/status/models"
	"statusable/pkg/platform/circuit"
	"statusable/pkg/platform/sentinel"
)

func TestInMemoryIndexCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryIndexCache()
	placed := models.IDEntry{ID: 1, EntityType: "Order", Identifier: "placed"}
	paid := models.IDEntry{ID: 2, EntityType: "Order", Identifier: "paid"}

	t.Run("absent key is a miss", func(t *testing.T) {
		_, found, err := c.Get(ctx, "statuses")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("append to an absent key keeps it absent", func(t *testing.T) {
		require.NoError(t, c.Append(ctx, "statuses", placed))
		_, found, err := c.Get(ctx, "statuses")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("empty index is a hit", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, "statuses", nil))
		entries, found, err := c.Get(ctx, "statuses")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, entries)
	})

	t.Run("append skips duplicates", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, "statuses", []models.IDEntry{placed}))
		require.NoError(t, c.Append(ctx, "statuses", paid))
		require.NoError(t, c.Append(ctx, "statuses", paid))

		entries, _, err := c.Get(ctx, "statuses")
		require.NoError(t, err)
		assert.Equal(t, []models.IDEntry{placed, paid}, entries)
	})

	t.Run("forget evicts", func(t *testing.T) {
		c.Forget("statuses")
		_, found, err := c.Get(ctx, "statuses")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRedisIndexCacheFailsFastWhenBreakerOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := NewRedisIndexCache(client, WithBreaker(breaker))
	ctx := context.Background()

	for range 2 {
		_, _, err := c.Get(ctx, "statuses")
		require.Error(t, err)
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	}
	assert.True(t, breaker.IsOpen())

	_, _, err := c.Get(ctx, "statuses")
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.ErrorIs(t, c.Append(ctx, "statuses", models.IDEntry{ID: 1}), sentinel.ErrUnavailable)
}
