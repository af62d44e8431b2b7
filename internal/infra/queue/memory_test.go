package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

type countingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	depth    atomic.Int64
}

func (c *countingObserver) QueueDepth(n int) { c.depth.Store(int64(n)) }
func (c *countingObserver) TaskStarted()     { c.started.Add(1) }
func (c *countingObserver) TaskFinished()    { c.finished.Add(1) }

func TestMemory_RunsAllTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	obs := &countingObserver{}
	q := NewMemory(0, obs)

	var mu sync.Mutex
	seen := map[domain.AnalysisID]bool{}
	var wg sync.WaitGroup
	wg.Add(5)
	q.Start(context.Background(), func(_ context.Context, task domain.Task) error {
		defer wg.Done()
		mu.Lock()
		seen[task.AnalysisID] = true
		mu.Unlock()
		return nil
	})

	for _, id := range []domain.AnalysisID{"a", "b", "c", "d", "e"} {
		require.NoError(t, q.Enqueue(context.Background(), domain.Task{AnalysisID: id}))
	}
	wg.Wait()
	require.NoError(t, q.Close(context.Background()))

	assert.Len(t, seen, 5)
	assert.Equal(t, int64(5), obs.started.Load())
	assert.Equal(t, int64(5), obs.finished.Load())
	assert.Equal(t, int64(0), obs.depth.Load())
}

func TestMemory_EnqueueDoesNotWaitForHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMemory(0, nil)
	release := make(chan struct{})
	var running atomic.Int64
	q.Start(context.Background(), func(_ context.Context, _ domain.Task) error {
		running.Add(1)
		<-release
		return nil
	})

	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Enqueue(context.Background(), domain.Task{AnalysisID: "x"}))
	}
	assert.Less(t, time.Since(start), time.Second)

	// no concurrency limit: every task is in flight at once
	require.Eventually(t, func() bool { return running.Load() == 50 }, 2*time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, q.Close(context.Background()))
}

func TestMemory_ConcurrencyLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMemory(2, nil)
	release := make(chan struct{})
	var running, peak atomic.Int64
	q.Start(context.Background(), func(_ context.Context, _ domain.Task) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return nil
	})

	for i := 0; i < 6; i++ {
		require.NoError(t, q.Enqueue(context.Background(), domain.Task{AnalysisID: "x"}))
	}
	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, int64(2), peak.Load())
}

func TestMemory_EnqueueAfterClose(t *testing.T) {
	q := NewMemory(0, nil)
	require.NoError(t, q.Close(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), domain.Task{AnalysisID: "a"}), ErrClosed)
	// idempotent
	assert.NoError(t, q.Close(context.Background()))
}

func TestMemory_CloseTimeoutCancelsTasks(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMemory(0, nil)
	started := make(chan struct{})
	q.Start(context.Background(), func(ctx context.Context, _ domain.Task) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, q.Enqueue(context.Background(), domain.Task{AnalysisID: "slow"}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}

func TestMemory_QueuedBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMemory(0, nil)
	require.NoError(t, q.Enqueue(context.Background(), domain.Task{AnalysisID: "early"}))
	assert.Equal(t, 1, q.Len())

	done := make(chan domain.AnalysisID, 1)
	q.Start(context.Background(), func(_ context.Context, task domain.Task) error {
		done <- task.AnalysisID
		return nil
	})

	select {
	case id := <-done:
		assert.Equal(t, domain.AnalysisID("early"), id)
	case <-time.After(time.Second):
		t.Fatal("task queued before Start never ran")
	}
	require.NoError(t, q.Close(context.Background()))
}
