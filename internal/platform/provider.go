// Package platform wires infrastructure adapters to the ports used by the core.
package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/generation"
	"github.com/phrazzld/relay-api/internal/platform/anthropic"
	"github.com/phrazzld/relay-api/internal/platform/gemini"
)

// NewGenerator returns the provider adapter selected by cfg.Name.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.ProviderConfig) (generation.Generator, error) {
	switch cfg.Name {
	case anthropic.ProviderName:
		client, err := anthropic.NewClient(logger, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case gemini.ProviderName:
		generator, err := gemini.NewGenerator(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		return generator, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", generation.ErrInvalidConfig, cfg.Name)
	}
}
