// Package main implements the entry point for the relay API server, which
// accepts text over HTTP, relays it to an LLM provider in the background
// and reports results by polling or webhook.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay-api: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, builds the application and serves until SIGINT
// or SIGTERM.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := initializeApp()
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, log, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// initializeApp loads configuration and sets up logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"provider", cfg.Provider.Name,
		"model", cfg.Provider.Model,
		"rate_limit_algorithm", cfg.RateLimit.Algorithm,
		"max_rpm", cfg.RateLimit.MaxRequestsPerMinute,
		"workers", cfg.Queue.WorkerCount,
		"queue_depth", cfg.Queue.MaxDepth)
	log.Debug("auth configuration",
		"admin_api_key_present", cfg.Auth.AdminAPIKey != "",
		"admin_api_key_hash_present", cfg.Auth.AdminAPIKeyHash != "",
		"admin_jwt_secret_present", cfg.Auth.AdminJWTSecret != "")

	return cfg, log, nil
}
