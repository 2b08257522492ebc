package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/mocks"
	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLimiter refuses the first refusals admissions and records throttles.
type stubLimiter struct {
	mu        sync.Mutex
	refusals  int
	wait      time.Duration
	admitted  int
	refused   int
	waits     int
	throttles []time.Duration
}

func (l *stubLimiter) Admit() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refused < l.refusals {
		l.refused++
		return false, l.wait
	}
	l.admitted++
	return true, 0
}

func (l *stubLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	l.waits++
	l.mu.Unlock()
	return ctx.Err()
}

func (l *stubLimiter) Throttle(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.throttles = append(l.throttles, d)
}

func (l *stubLimiter) Snapshot() ratelimit.Snapshot {
	return ratelimit.Snapshot{Algorithm: "stub"}
}

// eventRecorder collects the status sequence emitted for every task.
type eventRecorder struct {
	mu     sync.Mutex
	byTask map[string][]string
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{byTask: make(map[string][]string)}
}

func (r *eventRecorder) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTask[event.TaskID] = append(r.byTask[event.TaskID], event.Status)
	return nil
}

func (r *eventRecorder) sequence(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.byTask[id]...)
}

type runnerFixture struct {
	runner   *Runner
	store    *MemoryStore
	limiter  *stubLimiter
	recorder *eventRecorder
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 2,
		QueueDepth:  10,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
		SweepInterval: time.Hour,
	}
}

func newRunnerFixture(t *testing.T, gen generation.Generator, cfg RunnerConfig) *runnerFixture {
	t.Helper()

	f := &runnerFixture{
		store:    NewMemoryStore(),
		limiter:  &stubLimiter{},
		recorder: newEventRecorder(),
	}
	emitter := events.NewInMemoryEventEmitter(discardLogger())
	emitter.RegisterHandler(f.recorder)

	r, err := NewRunner(f.store, gen, f.limiter, emitter, cfg, discardLogger())
	require.NoError(t, err)
	f.runner = r

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return f
}

func (f *runnerFixture) waitTerminal(t *testing.T, id string) *Task {
	t.Helper()

	var got *Task
	require.Eventually(t, func() bool {
		tk, err := f.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = tk
		return tk.Status.Terminal()
	}, 3*time.Second, 5*time.Millisecond)
	return got
}

func TestRunner_CompletesTask(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithResult("abc123")
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "abc123", done.Result)
	assert.Empty(t, done.Error)
	assert.Equal(t, 1, done.Attempts)
	assert.Equal(t, []string{"hello"}, gen.GenerateCalls.Texts)

	assert.Eventually(t, func() bool {
		return len(f.recorder.sequence(tk.ID)) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"queued", "processing", "completed"}, f.recorder.sequence(tk.ID))
	assert.Equal(t, 0, f.runner.QueueDepth())
}

func TestRunner_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorFailingThen(2, mocks.TransientError(), "recovered")
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, "recovered", done.Result)
	assert.Equal(t, 3, gen.CallCount())
	assert.Equal(t, 3, done.Attempts)

	f.limiter.mu.Lock()
	defer f.limiter.mu.Unlock()
	assert.Equal(t, 1, f.limiter.admitted)
	assert.Equal(t, 2, f.limiter.waits)
}

func TestRunner_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithError(mocks.TransientError())
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "connection reset")
	assert.Empty(t, done.Result)
	assert.Equal(t, 3, gen.CallCount())
}

func TestRunner_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithError(mocks.AuthenticationError())
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "rejected credentials")
	assert.Equal(t, 1, gen.CallCount())
	assert.Eventually(t, func() bool {
		return len(f.recorder.sequence(tk.ID)) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"queued", "processing", "failed"}, f.recorder.sequence(tk.ID))
}

func TestRunner_RedactsFailureMessage(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithError(generation.NewError("mock", generation.KindAuthentication,
		errors.New("invalid key sk-ant-REDACTED")))
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.NotContains(t, done.Error, "sk-ant-api03")
}

func TestRunner_ThrottlesOnRetryAfter(t *testing.T) {
	t.Parallel()

	limited := generation.NewError("mock", generation.KindRateLimited, errors.New("slow down"))
	limited.RetryAfter = 2 * time.Second
	gen := mocks.NewMockGeneratorFailingThen(1, limited, "ok")

	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusCompleted, done.Status)

	f.limiter.mu.Lock()
	defer f.limiter.mu.Unlock()
	assert.Equal(t, []time.Duration{2 * time.Second}, f.limiter.throttles)
}

func TestRunner_DefersRefusedTasks(t *testing.T) {
	t.Parallel()

	gen := mocks.NewMockGeneratorWithResult("ok")
	f := newRunnerFixture(t, gen, testRunnerConfig())
	f.limiter.refusals = 3
	f.limiter.wait = 5 * time.Millisecond
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 1, gen.CallCount())

	f.limiter.mu.Lock()
	defer f.limiter.mu.Unlock()
	assert.Equal(t, 3, f.limiter.refused)
	assert.Equal(t, 1, f.limiter.admitted)
}

func TestRunner_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	gen := &mocks.MockGenerator{
		GenerateFn: func(context.Context, string) (string, error) {
			panic("provider exploded")
		},
	}
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))

	done := f.waitTerminal(t, tk.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "internal error")
	assert.Equal(t, 2, f.runner.Alive())
}

func TestRunner_QueueSaturated(t *testing.T) {
	t.Parallel()

	cfg := testRunnerConfig()
	cfg.QueueDepth = 2
	f := newRunnerFixture(t, mocks.NewMockGeneratorWithResult("ok"), cfg)
	// Workers are not started, so nothing drains the queue.

	ctx := context.Background()
	require.NoError(t, f.runner.Submit(ctx, New("one", "")))
	require.NoError(t, f.runner.Submit(ctx, New("two", "")))

	third := New("three", "")
	err := f.runner.Submit(ctx, third)
	assert.ErrorIs(t, err, ErrQueueSaturated)

	_, err = f.store.Get(ctx, third.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, f.runner.QueueDepth())
	assert.Equal(t, 2, f.runner.QueueCapacity())
}

func TestRunner_SubmitDoesNotBlock(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	gen := &mocks.MockGenerator{
		GenerateFn: func(ctx context.Context, _ string) (string, error) {
			select {
			case <-release:
				return "ok", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	cfg := testRunnerConfig()
	cfg.WorkerCount = 1
	f := newRunnerFixture(t, gen, cfg)
	require.NoError(t, f.runner.Start())

	start := time.Now()
	var ids []string
	for i := 0; i < 5; i++ {
		tk := New(fmt.Sprintf("text-%d", i), "")
		require.NoError(t, f.runner.Submit(context.Background(), tk))
		ids = append(ids, tk.ID)
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	for _, id := range ids {
		assert.Equal(t, StatusCompleted, f.waitTerminal(t, id).Status)
	}
}

func TestRunner_StatusSequences(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	gen := &mocks.MockGenerator{
		GenerateFn: func(context.Context, string) (string, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			switch n % 3 {
			case 0:
				return "", mocks.AuthenticationError()
			case 1:
				return "", mocks.TransientError()
			default:
				return "ok", nil
			}
		},
	}
	cfg := testRunnerConfig()
	cfg.WorkerCount = 4
	cfg.QueueDepth = 50
	f := newRunnerFixture(t, gen, cfg)
	require.NoError(t, f.runner.Start())

	var ids []string
	for i := 0; i < 30; i++ {
		tk := New(fmt.Sprintf("text-%d", i), "")
		require.NoError(t, f.runner.Submit(context.Background(), tk))
		ids = append(ids, tk.ID)
	}

	completed := []string{"queued", "processing", "completed"}
	failed := []string{"queued", "processing", "failed"}
	for _, id := range ids {
		done := f.waitTerminal(t, id)
		require.Eventually(t, func() bool {
			return len(f.recorder.sequence(id)) == 3
		}, time.Second, 5*time.Millisecond)

		seq := f.recorder.sequence(id)
		if done.Status == StatusCompleted {
			assert.Equal(t, completed, seq)
			assert.NotEmpty(t, done.Result)
			assert.Empty(t, done.Error)
		} else {
			assert.Equal(t, failed, seq)
			assert.NotEmpty(t, done.Error)
			assert.Empty(t, done.Result)
		}

		// Terminal reads are stable.
		again, err := f.store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, done, again)
	}
}

func TestRunner_StopWaitsForInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	gen := &mocks.MockGenerator{
		GenerateFn: func(context.Context, string) (string, error) {
			close(started)
			<-release
			return "finished", nil
		},
	}
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Stop(ctx))

	done, err := f.store.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 0, f.runner.Alive())

	assert.ErrorIs(t, f.runner.Submit(context.Background(), New("late", "")), ErrRunnerStopped)
	assert.ErrorIs(t, f.runner.Start(), ErrRunnerStopped)
}

func TestRunner_StopDeadlineAbortsInFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	gen := &mocks.MockGenerator{
		GenerateFn: func(ctx context.Context, _ string) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	f := newRunnerFixture(t, gen, testRunnerConfig())
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.runner.Stop(ctx), context.DeadlineExceeded)

	done, err := f.store.Get(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Equal(t, "task aborted during shutdown", done.Error)
}

func TestRunner_StartTwice(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, mocks.NewMockGeneratorWithResult("ok"), testRunnerConfig())
	require.NoError(t, f.runner.Start())
	assert.Error(t, f.runner.Start())
	assert.Equal(t, 2, f.runner.Workers())
}

func TestRunner_Sweep(t *testing.T) {
	t.Parallel()

	cfg := testRunnerConfig()
	cfg.Retention = time.Millisecond
	f := newRunnerFixture(t, mocks.NewMockGeneratorWithResult("ok"), cfg)
	require.NoError(t, f.runner.Start())

	tk := New("hello", "")
	require.NoError(t, f.runner.Submit(context.Background(), tk))
	f.waitTerminal(t, tk.ID)

	time.Sleep(5 * time.Millisecond)
	removed, err := f.runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.store.Get(context.Background(), tk.ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRunner_SweepDisabled(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, mocks.NewMockGeneratorWithResult("ok"), testRunnerConfig())
	removed, err := f.runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	gen := mocks.NewMockGeneratorWithResult("ok")
	lim := &stubLimiter{}
	emitter := events.NewInMemoryEventEmitter(discardLogger())
	cfg := testRunnerConfig()

	_, err := NewRunner(nil, gen, lim, emitter, cfg, discardLogger())
	assert.Error(t, err)
	_, err = NewRunner(store, nil, lim, emitter, cfg, discardLogger())
	assert.Error(t, err)
	_, err = NewRunner(store, gen, nil, emitter, cfg, discardLogger())
	assert.Error(t, err)
	_, err = NewRunner(store, gen, lim, nil, cfg, discardLogger())
	assert.Error(t, err)
	_, err = NewRunner(store, gen, lim, emitter, cfg, nil)
	assert.Error(t, err)
}
