package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/testutil"
)

type collector struct {
	mu    sync.Mutex
	jobs  []shared.Job
	fails map[string]int
}

func (c *collector) handle(_ context.Context, job shared.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, job)
	if c.fails[job.Key] > 0 {
		c.fails[job.Key]--
		return errors.New("boom")
	}
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func startConsumer(t *testing.T, q Queue, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMemoryQueue_DeliversJobs(t *testing.T) {
	q := NewMemoryQueue(16, testutil.Logger())
	c := &collector{fails: map[string]int{}}
	startConsumer(t, q, c.handle)

	for _, key := range []string{"1", "2", "3"} {
		job, err := shared.NewJob(shared.JobOrderPaid, key, shared.OrderPaidPayload{OrderID: 1})
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(context.Background(), job))
	}

	assert.Eventually(t, func() bool { return c.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestMemoryQueue_RetriesFailedJobs(t *testing.T) {
	q := NewMemoryQueue(16, testutil.Logger())
	c := &collector{fails: map[string]int{"flaky": 2}}
	startConsumer(t, q, c.handle)

	job, err := shared.NewJob(shared.JobOrderPaid, "flaky", shared.OrderPaidPayload{OrderID: 9})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), job))

	require.Eventually(t, func() bool { return c.count() == 3 }, time.Second, 5*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 0, c.jobs[0].Attempts)
	assert.Equal(t, 2, c.jobs[2].Attempts)
	assert.Equal(t, job.ID, c.jobs[2].ID)
}

func TestMemoryQueue_GivesUpAfterMaxAttempts(t *testing.T) {
	q := NewMemoryQueue(16, testutil.Logger())
	c := &collector{fails: map[string]int{"broken": 100}}
	startConsumer(t, q, c.handle)

	job, err := shared.NewJob(shared.JobDigitalKeyNotify, "broken", shared.DigitalKeyNotifyPayload{OrderID: 1})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), job))

	require.Eventually(t, func() bool { return c.count() == DefaultMaxAttempts }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, DefaultMaxAttempts, c.count())
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_EnqueueRespectsContext(t *testing.T) {
	q := NewMemoryQueue(1, testutil.Logger())
	job, err := shared.NewJob(shared.JobOrderPaid, "1", shared.OrderPaidPayload{OrderID: 1})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), job))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, job), context.DeadlineExceeded)
}
