package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/phrazzld/relay-api/internal/callback"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/platform/logger"
	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/phrazzld/relay-api/internal/task"
)

// Health states reported by TaskService.Health.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// DefaultRecentLimit is how many tasks QueueStatus lists when no limit is given.
const DefaultRecentLimit = 10

// MaxRecentLimit caps how many tasks QueueStatus lists.
const MaxRecentLimit = 100

// TaskRunner is the part of task.Runner the service depends on.
type TaskRunner interface {
	Submit(ctx context.Context, t *task.Task) error
	Alive() int
	Workers() int
	QueueDepth() int
	QueueCapacity() int
}

// Config holds the submission rules applied by TaskService.
type Config struct {
	// MaxTextLength is the largest accepted input, in characters
	MaxTextLength int

	// DefaultCallbackURL is used when a submission names no callback
	DefaultCallbackURL string

	// AllowedCallbackDomains restricts callback hosts; "*" or empty allows all
	AllowedCallbackDomains []string
}

// ConfigFrom builds a service Config from application configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MaxTextLength:          cfg.Queue.MaxTextLength,
		DefaultCallbackURL:     cfg.Callback.DefaultURL,
		AllowedCallbackDomains: cfg.Callback.AllowedDomains,
	}
}

// SubmitInput is a request to relay text.
type SubmitInput struct {
	Text        string
	CallbackURL string
}

// HealthReport summarizes whether the service can make progress.
type HealthReport struct {
	Status                string
	WorkersAlive          int
	Workers               int
	RateLimiterConfigured bool
	QueueDepth            int
	QueueCapacity         int
}

// QueueStatus is a view of the task table by status.
type QueueStatus struct {
	QueueDepth    int
	QueueCapacity int
	Counts        map[task.Status]int
	Recent        []*task.Task
}

// Metrics aggregates processing statistics.
type Metrics struct {
	QueueLength           int
	TotalTasks            int
	AverageProcessingTime time.Duration
	SuccessRate           float64
	CallbacksDelivered    int
	CallbacksFailed       int
}

// TaskService orchestrates the task lifecycle for callers.
type TaskService struct {
	runner  TaskRunner
	store   task.Store
	limiter ratelimit.Limiter
	config  Config
	logger  *slog.Logger
}

// NewTaskService creates a TaskService.
func NewTaskService(
	runner TaskRunner,
	store task.Store,
	limiter ratelimit.Limiter,
	cfg Config,
	logger *slog.Logger,
) (*TaskService, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = 5000
	}

	return &TaskService{
		runner:  runner,
		store:   store,
		limiter: limiter,
		config:  cfg,
		logger:  logger.With("component", "task_service"),
	}, nil
}

// Submit validates in, creates a queued task and hands it to the runner. It
// returns as soon as the task is queued.
func (s *TaskService) Submit(ctx context.Context, in SubmitInput) (*task.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Blank text is rejected, but the text is stored and relayed as submitted.
	if strings.TrimSpace(in.Text) == "" {
		return nil, NewValidationError("text", "cannot be empty", nil)
	}
	if n := utf8.RuneCountInString(in.Text); n > s.config.MaxTextLength {
		return nil, NewValidationError("text",
			fmt.Sprintf("exceeds maximum length of %d characters", s.config.MaxTextLength), nil)
	}

	callbackURL := strings.TrimSpace(in.CallbackURL)
	if callbackURL == "" {
		callbackURL = s.config.DefaultCallbackURL
	}
	if callbackURL != "" {
		if err := callback.ValidateURL(callbackURL, s.config.AllowedCallbackDomains); err != nil {
			msg := "is not a valid http(s) URL"
			if errors.Is(err, callback.ErrDomainNotAllowed) {
				msg = "domain is not allowed"
			}
			return nil, NewValidationError("callback_url", msg, err)
		}
	}

	t := task.New(in.Text, callbackURL)
	if err := s.runner.Submit(ctx, t); err != nil {
		switch {
		case errors.Is(err, task.ErrQueueSaturated):
			log.WarnContext(ctx, "task rejected, queue saturated", "queue_depth", s.runner.QueueDepth())
			return nil, err
		case errors.Is(err, task.ErrRunnerStopped):
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		default:
			return nil, NewTaskServiceError("submit", "failed to queue task", err)
		}
	}

	log.InfoContext(ctx, "task accepted",
		"task_id", t.ID,
		"text_length", utf8.RuneCountInString(in.Text),
		"has_callback", t.HasCallback())
	return t, nil
}

// Status returns the current state of a task. Repeated calls on a terminal
// task return identical records.
func (s *TaskService) Status(ctx context.Context, id string) (*task.Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, NewValidationError("task_id", "is required", nil)
	}

	t, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			return nil, err
		}
		return nil, NewTaskServiceError("status", "failed to load task", err)
	}
	return t, nil
}

// Health reports degraded when no worker is alive or no limiter is set.
func (s *TaskService) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:                HealthOK,
		WorkersAlive:          s.runner.Alive(),
		Workers:               s.runner.Workers(),
		RateLimiterConfigured: s.limiter != nil,
		QueueDepth:            s.runner.QueueDepth(),
		QueueCapacity:         s.runner.QueueCapacity(),
	}
	if report.WorkersAlive == 0 || !report.RateLimiterConfigured {
		report.Status = HealthDegraded
	}
	return report
}

// QueueStatus returns per-status counts and the most recent tasks, newest
// first. limit defaults to DefaultRecentLimit and is capped at MaxRecentLimit.
func (s *TaskService) QueueStatus(ctx context.Context, limit int) (*QueueStatus, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, NewTaskServiceError("queue_status", "failed to read stats", err)
	}
	recent, err := s.store.List(ctx, task.ListOptions{Limit: limit})
	if err != nil {
		return nil, NewTaskServiceError("queue_status", "failed to list tasks", err)
	}

	return &QueueStatus{
		QueueDepth:    s.runner.QueueDepth(),
		QueueCapacity: s.runner.QueueCapacity(),
		Counts:        stats.ByStatus,
		Recent:        recent,
	}, nil
}

// Metrics returns processing statistics across every stored task.
func (s *TaskService) Metrics(ctx context.Context) (*Metrics, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, NewTaskServiceError("metrics", "failed to read stats", err)
	}

	m := &Metrics{
		QueueLength:           s.runner.QueueDepth(),
		TotalTasks:            stats.Total,
		AverageProcessingTime: stats.AverageProcessingTime,
		SuccessRate:           stats.SuccessRate,
	}

	tasks, err := s.store.List(ctx, task.ListOptions{})
	if err != nil {
		return nil, NewTaskServiceError("metrics", "failed to list tasks", err)
	}
	for _, t := range tasks {
		switch t.Callback.Status {
		case task.CallbackDelivered:
			m.CallbacksDelivered++
		case task.CallbackFailed:
			m.CallbacksFailed++
		}
	}
	return m, nil
}

// RateLimits returns the limiter snapshot, or false when no limiter is set.
func (s *TaskService) RateLimits() (ratelimit.Snapshot, bool) {
	if s.limiter == nil {
		return ratelimit.Snapshot{}, false
	}
	return s.limiter.Snapshot(), true
}
