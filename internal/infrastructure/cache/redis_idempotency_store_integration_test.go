//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/testutil"
)

func TestRedisIdempotencyStore(t *testing.T) {
	client := testutil.NewRedis(t)
	store := NewRedisIdempotencyStore(client, "")
	ctx := context.Background()

	isNew, err := store.MarkProcessed(ctx, "order.paid:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = store.MarkProcessed(ctx, "order.paid:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, isNew)

	processed, err := store.IsProcessed(ctx, "order.paid:1")
	require.NoError(t, err)
	assert.True(t, processed)

	ttl, err := client.TTL(ctx, defaultIdempotencyPrefix+"order.paid:1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Unmark(ctx, "order.paid:1"))
	processed, err = store.IsProcessed(ctx, "order.paid:1")
	require.NoError(t, err)
	assert.False(t, processed)
}
