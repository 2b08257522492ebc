package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/relay-api/internal/callback"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/mocks"
	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/phrazzld/relay-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner records submissions and stores them without processing.
type fakeRunner struct {
	mu        sync.Mutex
	store     task.Store
	submitErr error
	submitted []*task.Task
	alive     int
}

func (r *fakeRunner) Submit(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return r.submitErr
	}
	r.submitted = append(r.submitted, t)
	return r.store.Create(ctx, t)
}

func (r *fakeRunner) Alive() int         { return r.alive }
func (r *fakeRunner) Workers() int       { return 2 }
func (r *fakeRunner) QueueDepth() int    { return len(r.submitted) }
func (r *fakeRunner) QueueCapacity() int { return 10 }

func newTestLimiter(t *testing.T) ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.NewSlidingWindow(60, 0)
	require.NoError(t, err)
	return l
}

func newFakeService(t *testing.T, cfg Config) (*TaskService, *fakeRunner, task.Store) {
	t.Helper()

	store := task.NewMemoryStore()
	runner := &fakeRunner{store: store, alive: 2}
	svc, err := NewTaskService(runner, store, newTestLimiter(t), cfg, testLogger())
	require.NoError(t, err)
	return svc, runner, store
}

func TestSubmit_EndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := task.NewMemoryStore()
	limiter := newTestLimiter(t)
	gen := mocks.NewMockGeneratorWithResult("abc123")
	emitter := events.NewInMemoryEventEmitter(testLogger())

	runner, err := task.NewRunner(store, gen, limiter, emitter, task.RunnerConfig{
		WorkerCount: 1,
		QueueDepth:  10,
		Retry:       task.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, testLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Start())
	t.Cleanup(func() { _ = runner.Stop(context.Background()) })

	svc, err := NewTaskService(runner, store, limiter, Config{MaxTextLength: 100}, testLogger())
	require.NoError(t, err)

	submitted, err := svc.Submit(ctx, SubmitInput{Text: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, task.StatusQueued, submitted.Status)
	assert.Equal(t, "  hello  ", submitted.InputText, "text is relayed as submitted")

	var done *task.Task
	require.Eventually(t, func() bool {
		got, err := svc.Status(ctx, submitted.ID)
		if err != nil {
			return false
		}
		done = got
		return got.Status.Terminal()
	}, 3*time.Second, 5*time.Millisecond)

	assert.Equal(t, task.StatusCompleted, done.Status)
	assert.Equal(t, "abc123", done.Result)
	assert.Equal(t, []string{"  hello  "}, gen.GenerateCalls.Texts)

	// Terminal status reads are idempotent.
	for i := 0; i < 3; i++ {
		again, err := svc.Status(ctx, submitted.ID)
		require.NoError(t, err)
		assert.Equal(t, done, again)
	}

	health := svc.Health(ctx)
	assert.Equal(t, HealthOK, health.Status)
	assert.Equal(t, 1, health.WorkersAlive)

	metrics, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.TotalTasks)
	assert.Equal(t, 1.0, metrics.SuccessRate)

	snap, ok := svc.RateLimits()
	require.True(t, ok)
	assert.Equal(t, 60, snap.LimitPerMinute)
	assert.Equal(t, 1, snap.UsedLastMinute)
}

func TestSubmit_Validation(t *testing.T) {
	t.Parallel()

	cfg := Config{MaxTextLength: 5, AllowedCallbackDomains: []string{"example.com"}}

	tests := []struct {
		name      string
		in        SubmitInput
		wantField string
		wantErr   error
	}{
		{name: "empty text", in: SubmitInput{Text: ""}, wantField: "text"},
		{name: "whitespace text", in: SubmitInput{Text: " \n\t "}, wantField: "text"},
		{name: "too long", in: SubmitInput{Text: "abcdef"}, wantField: "text"},
		{name: "bad url", in: SubmitInput{Text: "hi", CallbackURL: "not a url"}, wantField: "callback_url", wantErr: callback.ErrInvalidURL},
		{name: "disallowed domain", in: SubmitInput{Text: "hi", CallbackURL: "https://evil.com/x"}, wantField: "callback_url", wantErr: callback.ErrDomainNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, runner, store := newFakeService(t, cfg)
			_, err := svc.Submit(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)

			assert.Empty(t, runner.submitted)
			stats, err := store.Stats(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Total)
		})
	}
}

func TestSubmit_MaxLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	svc, _, _ := newFakeService(t, Config{MaxTextLength: 5})
	_, err := svc.Submit(context.Background(), SubmitInput{Text: "héllo"})
	assert.NoError(t, err)
	_, err = svc.Submit(context.Background(), SubmitInput{Text: strings.Repeat("é", 6)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmit_CallbackDefaults(t *testing.T) {
	t.Parallel()

	svc, _, _ := newFakeService(t, Config{
		MaxTextLength:      100,
		DefaultCallbackURL: "https://hooks.example.com/default",
	})

	withDefault, err := svc.Submit(context.Background(), SubmitInput{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/default", withDefault.CallbackURL)
	assert.Equal(t, task.CallbackPending, withDefault.Callback.Status)

	explicit, err := svc.Submit(context.Background(), SubmitInput{Text: "hi", CallbackURL: "https://mine.example.com/cb"})
	require.NoError(t, err)
	assert.Equal(t, "https://mine.example.com/cb", explicit.CallbackURL)

	pollOnly, _, _ := newFakeService(t, Config{MaxTextLength: 100})
	tk, err := pollOnly.Submit(context.Background(), SubmitInput{Text: "hi"})
	require.NoError(t, err)
	assert.Empty(t, tk.CallbackURL)
	assert.Equal(t, task.CallbackNone, tk.Callback.Status)
}

func TestSubmit_QueueSaturated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := task.NewMemoryStore()
	emitter := events.NewInMemoryEventEmitter(testLogger())
	runner, err := task.NewRunner(store, mocks.NewMockGeneratorWithResult("ok"), newTestLimiter(t), emitter,
		task.RunnerConfig{WorkerCount: 1, QueueDepth: 1}, testLogger())
	require.NoError(t, err)

	svc, err := NewTaskService(runner, store, newTestLimiter(t), Config{MaxTextLength: 100}, testLogger())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{Text: "first"})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{Text: "second"})
	assert.ErrorIs(t, err, task.ErrQueueSaturated)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestSubmit_RunnerErrors(t *testing.T) {
	t.Parallel()

	svc, runner, _ := newFakeService(t, Config{MaxTextLength: 100})

	runner.submitErr = task.ErrRunnerStopped
	_, err := svc.Submit(context.Background(), SubmitInput{Text: "hi"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	runner.submitErr = errors.New("disk on fire")
	_, err = svc.Submit(context.Background(), SubmitInput{Text: "hi"})
	var svcErr *TaskServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "submit", svcErr.Operation)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	svc, _, _ := newFakeService(t, Config{MaxTextLength: 100})

	_, err := svc.Status(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, task.ErrTaskNotFound)

	_, err = svc.Status(context.Background(), " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHealth_Degraded(t *testing.T) {
	t.Parallel()

	svc, runner, _ := newFakeService(t, Config{})
	runner.alive = 0
	assert.Equal(t, HealthDegraded, svc.Health(context.Background()).Status)

	store := task.NewMemoryStore()
	noLimiter, err := NewTaskService(&fakeRunner{store: store, alive: 1}, store, nil, Config{}, testLogger())
	require.NoError(t, err)
	report := noLimiter.Health(context.Background())
	assert.Equal(t, HealthDegraded, report.Status)
	assert.False(t, report.RateLimiterConfigured)

	_, ok := noLimiter.RateLimits()
	assert.False(t, ok)
}

func TestQueueStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, store := newFakeService(t, Config{MaxTextLength: 100})

	var last *task.Task
	for i := 0; i < 15; i++ {
		tk, err := svc.Submit(ctx, SubmitInput{Text: "hi"})
		require.NoError(t, err)
		last = tk
	}
	_, err := store.UpdateStatus(ctx, last.ID, task.StatusUpdate{Status: task.StatusFailed, Error: "x"})
	require.NoError(t, err)

	status, err := svc.QueueStatus(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, status.Recent, DefaultRecentLimit)
	assert.Equal(t, 14, status.Counts[task.StatusQueued])
	assert.Equal(t, 1, status.Counts[task.StatusFailed])
	assert.Equal(t, 0, status.Counts[task.StatusProcessing])

	capped, err := svc.QueueStatus(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, capped.Recent, 15)
}

func TestMetrics_CountsCallbacks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, store := newFakeService(t, Config{MaxTextLength: 100})

	a, err := svc.Submit(ctx, SubmitInput{Text: "a", CallbackURL: "https://example.com/a"})
	require.NoError(t, err)
	b, err := svc.Submit(ctx, SubmitInput{Text: "b", CallbackURL: "https://example.com/b"})
	require.NoError(t, err)

	require.NoError(t, store.UpdateCallback(ctx, a.ID, task.CallbackState{Status: task.CallbackDelivered, Attempts: 1}))
	require.NoError(t, store.UpdateCallback(ctx, b.ID, task.CallbackState{Status: task.CallbackFailed, Attempts: 3}))

	m, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalTasks)
	assert.Equal(t, 2, m.QueueLength)
	assert.Equal(t, 1, m.CallbacksDelivered)
	assert.Equal(t, 1, m.CallbacksFailed)
}

func TestNewTaskService_Validation(t *testing.T) {
	t.Parallel()

	store := task.NewMemoryStore()
	runner := &fakeRunner{store: store}

	_, err := NewTaskService(nil, store, nil, Config{}, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(runner, nil, nil, Config{}, testLogger())
	assert.Error(t, err)
	_, err = NewTaskService(runner, store, nil, Config{}, nil)
	assert.Error(t, err)

	svc, err := NewTaskService(runner, store, nil, Config{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 5000, svc.config.MaxTextLength)
}

func TestServiceErrors(t *testing.T) {
	t.Parallel()

	vErr := NewValidationError("text", "cannot be empty", nil)
	assert.Equal(t, "text cannot be empty", vErr.Error())
	assert.ErrorIs(t, vErr, ErrValidation)

	wrapped := NewValidationError("callback_url", "is invalid", callback.ErrInvalidURL)
	assert.ErrorIs(t, wrapped, ErrValidation)
	assert.ErrorIs(t, wrapped, callback.ErrInvalidURL)

	svcErr := NewTaskServiceError("status", "failed to load task", errors.New("boom"))
	assert.Equal(t, "task service status failed: failed to load task: boom", svcErr.Error())
	assert.Equal(t, "task service status failed: no reason", NewTaskServiceError("status", "no reason", nil).Error())
}
