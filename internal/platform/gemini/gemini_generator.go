package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/generation"
	"google.golang.org/genai"
)

// ProviderName identifies this adapter in errors and logs.
const ProviderName = "gemini"

// Generator implements the generation.Generator interface using
// Google's Gemini API.
type Generator struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string

	// timeout bounds a single GenerateContent call
	timeout time.Duration
}

// NewGenerator creates a new instance of Generator with the provided dependencies.
//
// Parameters:
//   - ctx: Context for the operation, which can be used for cancellation
//   - logger: A structured logger for operation logging
//   - cfg: Provider configuration containing API key, model name, and other settings
//
// Returns:
//   - A properly initialized Generator or an error if initialization fails
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.ProviderConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	// Validate configuration
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout()

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger:  logger.With("component", "gemini_generator"),
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout(),
	}, nil
}

// Generate implements generation.Generator. It makes exactly one API call;
// retries are the caller's concern.
func (g *Generator) Generate(ctx context.Context, text string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: text}},
		},
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		classified := classifyError(err)
		g.logger.WarnContext(ctx, "Gemini API call failed",
			"error", err,
			"kind", classified.Kind.String(),
			"status_code", classified.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
		return "", classified
	}

	out, err := extractText(resp)
	if err != nil {
		g.logger.WarnContext(ctx, "Gemini API returned unusable response", "error", err)
		return "", err
	}

	g.logger.DebugContext(ctx, "Gemini API call successful",
		"output_length", len(out),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", generation.NewError(ProviderName, generation.KindMalformedResponse,
			errors.New("no candidates in response"))
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", generation.NewError(ProviderName, generation.KindRejected,
			errors.New("content blocked by safety filters"))
	}
	if candidate.Content == nil {
		return "", generation.NewError(ProviderName, generation.KindMalformedResponse,
			errors.New("empty content in response"))
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", generation.NewError(ProviderName, generation.KindMalformedResponse,
			errors.New("no text parts in response"))
	}
	return sb.String(), nil
}
