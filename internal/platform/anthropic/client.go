package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/generation"
)

// ProviderName identifies this adapter in errors and logs.
const ProviderName = "anthropic"

const (
	// DefaultBaseURL is the API root used when provider.base_url is empty.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultVersion is sent as the anthropic-version header when none is configured.
	DefaultVersion = "2023-06-01"

	messagesPath = "/v1/messages"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Client implements generation.Generator against the Anthropic Messages API.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	version    string
	maxTokens  int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates an Anthropic client from provider configuration.
func NewClient(logger *slog.Logger, cfg config.ProviderConfig, opts ...Option) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("%w: max tokens must be positive", generation.ErrInvalidConfig)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := cfg.AnthropicVersion
	if version == "" {
		version = DefaultVersion
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = cfg.Timeout()

	c := &Client{
		logger:     logger.With("component", "anthropic_client"),
		httpClient: httpClient,
		endpoint:   baseURL + messagesPath,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		version:    version,
		maxTokens:  cfg.MaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate implements generation.Generator. It makes exactly one HTTP call.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: text}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.version)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		genErr := generation.NewError(ProviderName, generation.KindForTransportError(err), err)
		c.logger.WarnContext(ctx, "Anthropic API call failed",
			"error", err,
			"kind", genErr.Kind.String(),
			"duration_ms", time.Since(start).Milliseconds())
		return "", genErr
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", generation.NewError(ProviderName, generation.KindForTransportError(err),
			fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		genErr := statusError(resp, body)
		c.logger.WarnContext(ctx, "Anthropic API returned error status",
			"status_code", resp.StatusCode,
			"kind", genErr.Kind.String(),
			"retry_after_ms", genErr.RetryAfter.Milliseconds(),
			"duration_ms", time.Since(start).Milliseconds())
		return "", genErr
	}

	out, err := decodeText(body)
	if err != nil {
		c.logger.WarnContext(ctx, "Anthropic API returned unusable response", "error", err)
		return "", err
	}

	c.logger.DebugContext(ctx, "Anthropic API call successful",
		"output_length", len(out),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// statusError classifies a non-200 response.
func statusError(resp *http.Response, body []byte) *generation.Error {
	msg := http.StatusText(resp.StatusCode)
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Type + ": " + parsed.Error.Message
	}

	genErr := generation.NewError(ProviderName, generation.KindForStatus(resp.StatusCode), errors.New(msg))
	genErr.StatusCode = resp.StatusCode
	if genErr.Kind == generation.KindRateLimited || genErr.Kind == generation.KindTransientNetwork {
		genErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return genErr
}

// decodeText joins the text blocks of a Messages API response.
func decodeText(body []byte) (string, error) {
	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", generation.NewError(ProviderName, generation.KindMalformedResponse,
			fmt.Errorf("failed to decode response: %w", err))
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", generation.NewError(ProviderName, generation.KindMalformedResponse,
			errors.New("response contained no text content"))
	}
	return sb.String(), nil
}

// parseRetryAfter accepts either delta seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
