package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/phrazzld/relay-api/internal/redact"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds provider calls for a single task.
type RetryPolicy struct {
	// MaxAttempts is the total number of provider calls, including the first
	MaxAttempts int

	// BaseDelay is the first backoff delay; later delays double
	BaseDelay time.Duration

	// MaxDelay caps any single backoff delay
	MaxDelay time.Duration
}

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueDepth bounds how many tasks may wait for a worker
	QueueDepth int

	// Retry is applied to transient provider failures
	Retry RetryPolicy

	// Retention is how long terminal tasks are kept. Zero keeps them forever.
	Retention time.Duration

	// SweepInterval defines how often expired tasks are evicted
	// If zero, defaults to 5 minutes
	SweepInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 4,
		QueueDepth:  1000,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   1500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
		},
		Retention:     24 * time.Hour,
		SweepInterval: 5 * time.Minute,
	}
}

// RunnerConfigFrom builds a RunnerConfig from application configuration.
func RunnerConfigFrom(cfg *config.Config) RunnerConfig {
	return RunnerConfig{
		WorkerCount: cfg.Queue.WorkerCount,
		QueueDepth:  cfg.Queue.MaxDepth,
		Retry: RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
		},
		Retention:     cfg.Queue.Retention(),
		SweepInterval: cfg.Queue.SweepInterval(),
	}
}

// Runner owns the queue and workers. It moves each task from queued to a
// terminal status and emits an event for every transition.
type Runner struct {
	store     Store
	generator generation.Generator
	limiter   ratelimit.Limiter
	emitter   events.EventEmitter
	queue     *Queue
	pool      *WorkerPool
	config    RunnerConfig
	logger    *slog.Logger

	// workCtx bounds in-flight provider calls. It is only cancelled when a
	// shutdown deadline expires.
	workCtx context.Context
	abort   context.CancelFunc

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup

	started atomic.Bool
	stopped atomic.Bool
}

// NewRunner creates a Runner. Call Start to launch its workers.
func NewRunner(
	store Store,
	generator generation.Generator,
	limiter ratelimit.Limiter,
	emitter events.EventEmitter,
	config RunnerConfig,
	logger *slog.Logger,
) (*Runner, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if limiter == nil {
		return nil, errors.New("limiter cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("emitter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = 1
	}
	if config.Retry.BaseDelay <= 0 {
		config.Retry.BaseDelay = DefaultRunnerConfig().Retry.BaseDelay
	}
	if config.Retry.MaxDelay < config.Retry.BaseDelay {
		config.Retry.MaxDelay = config.Retry.BaseDelay
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}

	logger = logger.With("component", "task_runner")
	workCtx, abort := context.WithCancel(context.Background())

	r := &Runner{
		store:     store,
		generator: generator,
		limiter:   limiter,
		emitter:   emitter,
		queue:     NewQueue(config.QueueDepth, logger),
		config:    config,
		logger:    logger,
		workCtx:   workCtx,
		abort:     abort,
		sweepStop: make(chan struct{}),
	}
	r.pool = NewWorkerPool(r.queue.Out(), WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.process, logger)
	return r, nil
}

// Submit stores t as queued and places it on the queue. It never waits for
// a worker: when the queue is full it returns ErrQueueSaturated and nothing
// is stored.
func (r *Runner) Submit(ctx context.Context, t *Task) error {
	if r.stopped.Load() {
		return ErrRunnerStopped
	}
	if t == nil {
		return fmt.Errorf("%w: task cannot be nil", ErrInvalidTask)
	}

	if err := r.queue.Reserve(); err != nil {
		r.logger.WarnContext(ctx, "rejecting task, queue saturated",
			"queue_len", r.queue.Len(),
			"queue_cap", r.queue.Cap())
		return err
	}

	if err := r.store.Create(ctx, t); err != nil {
		r.queue.Release()
		return fmt.Errorf("failed to save task: %w", err)
	}
	r.emit(ctx, events.TypeTaskQueued, t.ID, StatusQueued)

	if err := r.queue.Push(t.ID); err != nil {
		r.queue.Release()
		r.fail(ctx, t.ID, "task runner stopped before the task was scheduled")
		return ErrRunnerStopped
	}

	r.logger.InfoContext(ctx, "task submitted", "task_id", t.ID)
	return nil
}

// Start launches the workers and the retention sweeper.
func (r *Runner) Start() error {
	if r.stopped.Load() {
		return ErrRunnerStopped
	}
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("task runner already started")
	}

	r.pool.Start()

	r.sweepWG.Add(1)
	go r.sweeper()

	return nil
}

// Stop stops accepting tasks and waits for in-flight tasks to reach a
// terminal status. If ctx expires first, in-flight provider calls are
// cancelled and ctx.Err() is returned. Tasks still waiting in the queue are
// left queued.
func (r *Runner) Stop(ctx context.Context) error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	r.logger.InfoContext(ctx, "stopping task runner",
		"queue_len", r.queue.Len(),
		"workers_alive", r.pool.Alive())

	close(r.sweepStop)
	done := r.pool.Stop()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		r.abort()
		<-done
		err = ctx.Err()
	}

	r.queue.Close()
	r.sweepWG.Wait()
	r.abort()

	r.logger.InfoContext(ctx, "task runner stopped")
	return err
}

// Alive returns the number of running workers.
func (r *Runner) Alive() int {
	return r.pool.Alive()
}

// Workers returns the configured worker count.
func (r *Runner) Workers() int {
	return r.pool.Size()
}

// QueueDepth returns the number of tasks waiting for a worker.
func (r *Runner) QueueDepth() int {
	return r.queue.Len()
}

// QueueCapacity returns the maximum number of waiting tasks.
func (r *Runner) QueueCapacity() int {
	return r.queue.Cap()
}

// process handles one id popped by a worker.
func (r *Runner) process(workerID int, id string) {
	ctx := r.workCtx
	logger := r.logger.With("task_id", id, "worker_id", workerID)

	if ok, wait := r.limiter.Admit(); !ok {
		logger.Debug("rate limit reached, deferring task", "wait_ms", wait.Milliseconds())
		r.queue.Defer(id, wait)
		return
	}
	r.queue.Admitted()

	t, err := r.store.UpdateStatus(ctx, id, StatusUpdate{Status: StatusProcessing})
	if err != nil {
		logger.Error("failed to update task status to processing", "error", err)
		return
	}
	r.emit(ctx, events.TypeTaskProcessing, id, StatusProcessing)
	logger.Info("processing task")

	result, err := r.execute(ctx, logger, t)
	if err != nil {
		kind := "internal"
		if k, ok := generation.KindOf(err); ok {
			kind = k.String()
		}
		logger.Error("task execution failed", "error", err, "kind", kind)
		r.fail(ctx, id, failureMessage(err))
		return
	}

	if _, err := r.store.UpdateStatus(ctx, id, StatusUpdate{Status: StatusCompleted, Result: result}); err != nil {
		logger.Error("failed to update task status to completed", "error", err)
		return
	}
	r.emit(ctx, events.TypeTaskCompleted, id, StatusCompleted)
	logger.Info("task completed successfully")
}

// execute calls the generator under the retry policy. The first call uses
// the slot consumed by Admit; every later call waits for a new one.
func (r *Runner) execute(ctx context.Context, logger *slog.Logger, t *Task) (result string, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while generating", "panic", p)
			err = fmt.Errorf("internal error while processing task: %v", p)
		}
	}()

	policy := r.config.Retry
	backoff := retry.NewExponential(policy.BaseDelay)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(policy.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(policy.MaxAttempts-1), backoff)

	first := true
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if !first {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		first = false

		attempt, err := r.store.RecordAttempt(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}

		out, err := r.generator.Generate(ctx, t.InputText)
		if err == nil {
			result = out
			return nil
		}

		if d, ok := generation.RetryAfterOf(err); ok {
			r.limiter.Throttle(d)
		}
		if !generation.IsTransient(err) {
			return err
		}

		logger.Warn("transient provider error",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", err)
		return retry.RetryableError(err)
	})
	return result, err
}

// fail moves a task to failed and emits the event.
func (r *Runner) fail(ctx context.Context, id, message string) {
	if _, err := r.store.UpdateStatus(ctx, id, StatusUpdate{Status: StatusFailed, Error: message}); err != nil {
		r.logger.ErrorContext(ctx, "failed to update task status to failed", "task_id", id, "error", err)
		return
	}
	r.emit(ctx, events.TypeTaskFailed, id, StatusFailed)
}

func (r *Runner) emit(ctx context.Context, eventType, id string, status Status) {
	if err := r.emitter.EmitEvent(ctx, events.NewTaskEvent(eventType, id, string(status))); err != nil {
		r.logger.WarnContext(ctx, "failed to emit task event",
			"task_id", id,
			"event_type", eventType,
			"error", err)
	}
}

// failureMessage is the human readable cause stored on a failed task.
func failureMessage(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if k, ok := generation.KindOf(err); !ok || k != generation.KindTimeout {
			return "task aborted during shutdown"
		}
	}
	return redact.Error(err)
}

// Sweep evicts terminal tasks older than the retention period and returns
// how many were removed.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	if r.config.Retention <= 0 {
		return 0, nil
	}
	return r.store.EvictTerminalBefore(ctx, time.Now().UTC().Add(-r.config.Retention))
}

// sweeper periodically evicts expired terminal tasks.
func (r *Runner) sweeper() {
	defer r.sweepWG.Done()

	if r.config.Retention <= 0 {
		return
	}

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.sweepStop:
			return
		case <-ticker.C:
			removed, err := r.Sweep(context.Background())
			if err != nil {
				r.logger.Error("failed to evict expired tasks", "error", err)
				continue
			}
			if removed > 0 {
				r.logger.Info("evicted expired tasks", "count", removed)
			}
		}
	}
}
