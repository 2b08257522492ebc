package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/auth"
	"github.com/phrazzld/relay-api/internal/callback"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/events"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/platform"
	"github.com/phrazzld/relay-api/internal/ratelimit"
	"github.com/phrazzld/relay-api/internal/service"
	"github.com/phrazzld/relay-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	store         task.Store
	limiter       ratelimit.Limiter
	generator     generation.Generator
	emitter       *events.InMemoryEventEmitter
	runner        *task.Runner
	dispatcher    *callback.Dispatcher
	tasks         *service.TaskService
	authenticator auth.Authenticator
}

// newApplication wires every component from cfg. A nil generator selects the
// provider adapter named by cfg.Provider.Name.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	generator generation.Generator,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		store:  task.NewMemoryStore(),
	}

	var err error
	app.limiter, err = ratelimit.New(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	if generator == nil {
		generator, err = platform.NewGenerator(ctx, logger.With("component", "llm_generator"), cfg.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
		}
	}
	app.generator = generator
	logger.Info("LLM generator initialized", "provider", cfg.Provider.Name)

	app.authenticator, err = auth.NewFromConfig(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize admin authentication: %w", err)
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)

	app.runner, err = task.NewRunner(app.store, app.generator, app.limiter, app.emitter,
		task.RunnerConfigFrom(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task runner: %w", err)
	}

	app.dispatcher, err = callback.NewDispatcher(app.store, callback.ConfigFrom(cfg.Callback), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback dispatcher: %w", err)
	}
	app.emitter.RegisterHandler(callback.NewEventHandler(app.dispatcher, logger))

	app.tasks, err = service.NewTaskService(app.runner, app.store, app.limiter, service.ConfigFrom(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// start launches the background workers.
func (app *application) start() error {
	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	return nil
}

// cleanup stops the runner and then the dispatcher, so callbacks for tasks
// that finish during shutdown are still delivered. Both share ctx's deadline.
func (app *application) cleanup(ctx context.Context) error {
	var firstErr error

	if err := app.runner.Stop(ctx); err != nil {
		app.logger.Error("task runner did not stop cleanly", "error", err)
		firstErr = err
	}
	if err := app.dispatcher.Stop(ctx); err != nil {
		app.logger.Error("callback dispatcher did not stop cleanly", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	app.logger.Info("application shutdown completed", "queued_tasks_left", app.runner.QueueDepth())
	return firstErr
}
