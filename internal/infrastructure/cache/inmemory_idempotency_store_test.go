package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("marks a new key", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "order.paid:1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("rejects a processed key", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "order.paid:2", time.Hour)
		require.NoError(t, err)

		isNew, err := store.MarkProcessed(ctx, "order.paid:2", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("allows reprocessing after expiry", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "order.paid:3", 10*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		isNew, err := store.MarkProcessed(ctx, "order.paid:3", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_Unmark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "notify.digital_key:7:9", time.Hour)
	require.NoError(t, err)

	processed, err := store.IsProcessed(ctx, "notify.digital_key:7:9")
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, store.Unmark(ctx, "notify.digital_key:7:9"))

	processed, err = store.IsProcessed(ctx, "notify.digital_key:7:9")
	require.NoError(t, err)
	assert.False(t, processed)

	isNew, err := store.MarkProcessed(ctx, "notify.digital_key:7:9", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestInMemoryIdempotencyStore_ConcurrentMark(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(ctx, "order.paid:42", time.Hour)
			if err == nil && isNew {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := newInMemoryIdempotencyStore(10 * time.Millisecond)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.MarkProcessed(ctx, fmt.Sprintf("short-%d", i), 5*time.Millisecond)
		require.NoError(t, err)
	}
	_, err := store.MarkProcessed(ctx, "long", time.Hour)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return store.Size() == 1 }, time.Second, 10*time.Millisecond)
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
