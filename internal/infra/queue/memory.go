// Package queue hands scoring tasks from request handlers to background
// workers. Enqueue never blocks: there is no backpressure between the API and
// the worker pool.
package queue

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Handler processes one task. Its error is logged, never retried.
type Handler func(ctx context.Context, t domain.Task) error

// Observer receives queue gauges.
type Observer interface {
	QueueDepth(n int)
	TaskStarted()
	TaskFinished()
}

// Memory is an unbounded in-process queue feeding an errgroup-backed pool.
type Memory struct {
	maxConcurrent int
	obs           Observer

	mu      sync.Mutex
	pending []domain.Task
	closed  bool
	notify  chan struct{}

	stop    chan struct{}
	loopEnd chan struct{}
	cancel  context.CancelFunc
	group   errgroup.Group
	started bool
}

// NewMemory builds a queue. maxConcurrent <= 0 runs every task on its own
// goroutine as soon as it is dequeued.
func NewMemory(maxConcurrent int, obs Observer) *Memory {
	q := &Memory{
		maxConcurrent: maxConcurrent,
		obs:           obs,
		notify:        make(chan struct{}, 1),
		stop:          make(chan struct{}),
		loopEnd:       make(chan struct{}),
	}
	if maxConcurrent > 0 {
		q.group.SetLimit(maxConcurrent)
	}
	return q
}

// Enqueue appends the task and returns immediately.
func (q *Memory) Enqueue(_ context.Context, t domain.Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, t)
	depth := len(q.pending)
	q.mu.Unlock()

	q.depth(depth)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len reports the number of tasks not yet handed to a worker.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start runs the dispatch loop until Close. Tasks run with a context derived
// from ctx, not from the request that enqueued them.
func (q *Memory) Start(ctx context.Context, h Handler) {
	runCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.started = true
	q.mu.Unlock()

	go q.loop(runCtx, h)
}

func (q *Memory) loop(ctx context.Context, h Handler) {
	defer close(q.loopEnd)
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case <-q.notify:
		}
		for {
			t, ok := q.pop()
			if !ok {
				break
			}
			q.run(ctx, h, t)
		}
	}
}

func (q *Memory) run(ctx context.Context, h Handler, t domain.Task) {
	if q.obs != nil {
		q.obs.TaskStarted()
	}
	// Go blocks here only when maxConcurrent is set and reached
	q.group.Go(func() error {
		defer func() {
			if q.obs != nil {
				q.obs.TaskFinished()
			}
		}()
		if err := h(ctx, t); err != nil {
			zap.L().Debug("task finished with error",
				zap.String("analysis_id", string(t.AnalysisID)),
				zap.Error(err),
			)
		}
		return nil
	})
}

func (q *Memory) pop() (domain.Task, bool) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return domain.Task{}, false
	}
	t := q.pending[0]
	q.pending[0] = domain.Task{}
	q.pending = q.pending[1:]
	depth := len(q.pending)
	q.mu.Unlock()

	q.depth(depth)
	return t, true
}

func (q *Memory) depth(n int) {
	if q.obs != nil {
		q.obs.QueueDepth(n)
	}
}

// Close stops intake and waits for in-flight tasks until ctx is done, after
// which running tasks are cancelled. Tasks still queued are dropped; their
// records stay PENDING.
func (q *Memory) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	started := q.started
	cancel := q.cancel
	q.mu.Unlock()

	if dropped > 0 {
		zap.L().Warn("dropping queued scoring tasks on shutdown", zap.Int("count", dropped))
	}
	q.depth(0)

	if !started {
		return nil
	}
	close(q.stop)

	waited := make(chan struct{})
	go func() {
		<-q.loopEnd
		_ = q.group.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-waited
		return ctx.Err()
	}
}
