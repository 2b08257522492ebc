package task

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Queue is a bounded FIFO of task ids.
//
// Capacity is accounted separately from the channel: a slot is taken by
// Reserve before the task is stored and handed back by Admitted once a worker
// has passed the task through the rate limiter. An id that is deferred keeps
// its slot, so putting it back can never block or overflow the buffer.
type Queue struct {
	ids      chan string
	depth    atomic.Int64
	capacity int64
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue creates a queue holding at most capacity ids.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ids:      make(chan string, capacity),
		capacity: int64(capacity),
		logger:   logger.With("component", "task_queue"),
		done:     make(chan struct{}),
	}
}

// Reserve takes a slot for a task about to be pushed. It returns
// ErrQueueSaturated when every slot is in use.
func (q *Queue) Reserve() error {
	for {
		cur := q.depth.Load()
		if cur >= q.capacity {
			return fmt.Errorf("%w: depth %d reached", ErrQueueSaturated, q.capacity)
		}
		if q.depth.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// Release returns a slot taken by Reserve that was never pushed.
func (q *Queue) Release() {
	q.depth.Add(-1)
}

// Push appends an id to the queue. The caller must hold a reserved slot.
func (q *Queue) Push(id string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	// The buffer is as large as the slot count, so this never blocks.
	q.ids <- id
	q.logger.Debug("task enqueued",
		"task_id", id,
		"queue_len", q.depth.Load(),
		"queue_cap", q.capacity)
	return nil
}

// Out returns the channel workers read ids from. It is closed by Close.
func (q *Queue) Out() <-chan string {
	return q.ids
}

// Defer puts id back on the queue after wait. The id keeps its slot while it
// waits. If the queue closes first the id is dropped and its slot released.
func (q *Queue) Defer(id string, wait time.Duration) {
	if wait <= 0 {
		wait = time.Millisecond
	}

	go func() {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-q.done:
			q.Release()
			return
		case <-timer.C:
		}

		if err := q.Push(id); err != nil {
			q.Release()
			q.logger.Debug("dropped deferred task", "task_id", id, "error", err)
		}
	}()
}

// Admitted hands back the slot of an id a worker has started processing.
func (q *Queue) Admitted() {
	q.depth.Add(-1)
}

// Len returns the number of ids waiting, including deferred ones.
func (q *Queue) Len() int {
	return int(q.depth.Load())
}

// Cap returns the maximum number of waiting ids.
func (q *Queue) Cap() int {
	return int(q.capacity)
}

// Close stops the queue. Further pushes fail with ErrQueueClosed and
// workers ranging over Out finish once the buffer drains.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	close(q.ids)
	q.logger.Info("task queue closed")
}
