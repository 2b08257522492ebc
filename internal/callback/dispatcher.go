package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/redact"
	"github.com/phrazzld/relay-api/internal/task"
	"github.com/sethvargo/go-retry"
	"github.com/sourcegraph/conc/pool"
)

// UserAgent is sent with every webhook request.
const UserAgent = "relay-api-callback/1.0"

// Header names set on webhook requests.
const (
	HeaderTaskID         = "X-Relay-Task-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// maxRetryDelay caps the backoff between delivery attempts.
const maxRetryDelay = time.Minute

// Config controls webhook delivery.
type Config struct {
	// AuthToken is sent as a bearer token when non-empty
	AuthToken string

	// MaxAttempts is the total number of delivery attempts per task
	MaxAttempts int

	// RetryDelay is the first backoff delay; later delays double
	RetryDelay time.Duration

	// Timeout bounds a single attempt
	Timeout time.Duration

	// Concurrency bounds how many deliveries run at once
	Concurrency int
}

// ConfigFrom builds a dispatcher Config from application configuration.
func ConfigFrom(cfg config.CallbackConfig) Config {
	return Config{
		AuthToken:   cfg.AuthToken,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay(),
		Timeout:     cfg.Timeout(),
		Concurrency: cfg.Concurrency,
	}
}

// Payload is the JSON body POSTed to a webhook.
type Payload struct {
	TaskID      string     `json:"task_id"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewPayload builds the webhook body for a finished task.
func NewPayload(t *task.Task) Payload {
	return Payload{
		TaskID:      t.ID,
		Status:      string(t.Status),
		Result:      t.Result,
		Error:       t.Error,
		Attempts:    t.Attempts,
		CompletedAt: t.FinishedAt,
	}
}

// Dispatcher POSTs finished tasks to their callback URLs.
type Dispatcher struct {
	store  task.Store
	client *http.Client
	config Config
	logger *slog.Logger

	// baseCtx bounds background deliveries; it is cancelled when Stop times out.
	baseCtx context.Context
	abort   context.CancelFunc

	mu      sync.Mutex
	stopped bool
	backlog []string

	// wake signals the feed loop that backlog changed or Stop was called.
	wake     chan struct{}
	feedDone chan struct{}
	workers  *pool.Pool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = hc
	}
}

// NewDispatcher creates a Dispatcher reading tasks from store.
func NewDispatcher(store task.Store, cfg Config, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = cfg.Timeout

	baseCtx, abort := context.WithCancel(context.Background())
	d := &Dispatcher{
		store:   store,
		client:  client,
		config:  cfg,
		logger:  logger.With("component", "callback_dispatcher"),
		baseCtx:  baseCtx,
		abort:    abort,
		wake:     make(chan struct{}, 1),
		feedDone: make(chan struct{}),
		workers:  pool.New().WithMaxGoroutines(cfg.Concurrency),
	}
	for _, opt := range opts {
		opt(d)
	}

	go d.feed()
	return d, nil
}

// Enqueue schedules delivery of a task and returns immediately. Scheduled
// ids wait in an in-memory backlog until a delivery slot frees up, so a slow
// webhook never holds the caller.
func (d *Dispatcher) Enqueue(taskID string) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.backlog = append(d.backlog, taskID)
	d.mu.Unlock()

	d.signal()
	return nil
}

// Backlog returns the number of scheduled deliveries still waiting for a slot.
func (d *Dispatcher) Backlog() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.backlog)
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest scheduled id. ok is false when the backlog is empty.
func (d *Dispatcher) next() (id string, ok, stopped bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.backlog) == 0 {
		return "", false, d.stopped
	}
	id = d.backlog[0]
	d.backlog[0] = ""
	d.backlog = d.backlog[1:]
	return id, true, d.stopped
}

// feed moves scheduled ids onto the bounded pool. It is the only goroutine
// that waits for a free slot. After Stop it drains the backlog and exits.
func (d *Dispatcher) feed() {
	defer close(d.feedDone)

	for {
		id, ok, stopped := d.next()
		if ok {
			d.workers.Go(func() {
				// Failures are logged and recorded on the task by Dispatch.
				_ = d.Dispatch(d.baseCtx, id)
			})
			continue
		}
		if stopped {
			return
		}
		<-d.wake
	}
}

// Dispatch delivers a finished task, retrying failed attempts. It returns
// nil once the webhook answered 2xx, or an error wrapping ErrDeliveryFailed
// after the last attempt failed.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID string) error {
	t, err := d.store.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if !t.HasCallback() {
		return ErrNoCallback
	}
	if !t.Status.Terminal() {
		return fmt.Errorf("%w: status %s", ErrTaskNotTerminal, t.Status)
	}

	body, err := json.Marshal(NewPayload(t))
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	logger := d.logger.With("task_id", taskID, "callback_url", redact.String(t.CallbackURL))

	backoff := retry.NewExponential(d.config.RetryDelay)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(maxRetryDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(d.config.MaxAttempts-1), backoff)

	state := t.Callback
	state.Status = task.CallbackPending

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		state.Attempts++
		attemptErr := d.post(ctx, t, body)
		if attemptErr == nil {
			return nil
		}

		state.LastError = redact.Error(attemptErr)
		d.record(ctx, taskID, state)
		logger.WarnContext(ctx, "callback attempt failed",
			"attempt", state.Attempts,
			"max_attempts", d.config.MaxAttempts,
			"error", attemptErr)
		return retry.RetryableError(attemptErr)
	})

	if err != nil {
		state.Status = task.CallbackFailed
		if state.LastError == "" {
			state.LastError = redact.Error(err)
		}
		d.record(ctx, taskID, state)
		logger.ErrorContext(ctx, "callback delivery failed",
			"event", "CallbackDeliveryFailure",
			"attempts", state.Attempts,
			"error", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	now := time.Now().UTC()
	state.Status = task.CallbackDelivered
	state.LastError = ""
	state.DeliveredAt = &now
	d.record(ctx, taskID, state)
	logger.InfoContext(ctx, "callback delivered", "attempts", state.Attempts)
	return nil
}

// post makes a single delivery attempt.
func (d *Dispatcher) post(ctx context.Context, t *task.Task, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderTaskID, t.ID)
	req.Header.Set(HeaderIdempotencyKey, t.ID)
	if d.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.AuthToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, taskID string, state task.CallbackState) {
	if err := d.store.UpdateCallback(ctx, taskID, state); err != nil {
		d.logger.WarnContext(ctx, "failed to record callback state", "task_id", taskID, "error", err)
	}
}

// Stop refuses new deliveries and waits for scheduled ones to finish. If ctx
// expires first, pending deliveries are cancelled and ctx.Err() is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	d.signal()

	done := make(chan struct{})
	go func() {
		<-d.feedDone
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.abort()
		return nil
	case <-ctx.Done():
		d.abort()
		<-done
		return ctx.Err()
	}
}
