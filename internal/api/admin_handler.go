package api

import (
	"net/http"

	"github.com/phrazzld/relay-api/internal/api/shared"
	"github.com/phrazzld/relay-api/internal/config"
	"github.com/phrazzld/relay-api/internal/redact"
)

// AdminConfigResponse is the effective configuration with secrets replaced
// by a placeholder.
type AdminConfigResponse struct {
	RequestedBy string         `json:"requested_by,omitempty"`
	Server      map[string]any `json:"server"`
	Provider    map[string]any `json:"provider"`
	RateLimit   map[string]any `json:"rate_limit"`
	Queue       map[string]any `json:"queue"`
	Retry       map[string]any `json:"retry"`
	Callback    map[string]any `json:"callback"`
	Auth        map[string]any `json:"auth"`
}

// AdminHandler serves admin-only endpoints.
type AdminHandler struct {
	config *config.Config
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(cfg *config.Config) *AdminHandler {
	return &AdminHandler{config: cfg}
}

// Config handles GET /admin/config.
func (h *AdminHandler) Config(w http.ResponseWriter, r *http.Request) {
	resp := redactedConfig(h.config)
	if p, ok := shared.GetPrincipal(r.Context()); ok {
		resp.RequestedBy = p.Subject
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

func redactedConfig(cfg *config.Config) AdminConfigResponse {
	return AdminConfigResponse{
		Server: map[string]any{
			"port":                     cfg.Server.Port,
			"log_level":                cfg.Server.LogLevel,
			"shutdown_timeout_seconds": cfg.Server.ShutdownTimeoutSeconds,
		},
		Provider: map[string]any{
			"name":            cfg.Provider.Name,
			"api_key":         redact.Secret(cfg.Provider.APIKey),
			"base_url":        redact.String(cfg.Provider.BaseURL),
			"model":           cfg.Provider.Model,
			"max_tokens":      cfg.Provider.MaxTokens,
			"timeout_seconds": cfg.Provider.TimeoutSeconds,
		},
		RateLimit: map[string]any{
			"algorithm": cfg.RateLimit.Algorithm,
			"max_rpm":   cfg.RateLimit.MaxRequestsPerMinute,
			"max_rph":   cfg.RateLimit.MaxRequestsPerHour,
			"burst":     cfg.RateLimit.Burst,
		},
		Queue: map[string]any{
			"max_depth":              cfg.Queue.MaxDepth,
			"worker_count":           cfg.Queue.WorkerCount,
			"max_text_length":        cfg.Queue.MaxTextLength,
			"retention_minutes":      cfg.Queue.RetentionMinutes,
			"sweep_interval_seconds": cfg.Queue.SweepIntervalSeconds,
		},
		Retry: map[string]any{
			"max_attempts":  cfg.Retry.MaxAttempts,
			"base_delay_ms": cfg.Retry.BaseDelayMillis,
			"max_delay_ms":  cfg.Retry.MaxDelayMillis,
		},
		Callback: map[string]any{
			"default_url":     redact.String(cfg.Callback.DefaultURL),
			"allowed_domains": cfg.Callback.AllowedDomains,
			"auth_token":      redact.Secret(cfg.Callback.AuthToken),
			"max_attempts":    cfg.Callback.MaxAttempts,
			"retry_delay_ms":  cfg.Callback.RetryDelayMillis,
			"timeout_seconds": cfg.Callback.TimeoutSeconds,
			"concurrency":     cfg.Callback.Concurrency,
		},
		Auth: map[string]any{
			"admin_api_key":      redact.Secret(cfg.Auth.AdminAPIKey),
			"admin_api_key_hash": redact.Secret(cfg.Auth.AdminAPIKeyHash),
			"admin_jwt_secret":   redact.Secret(cfg.Auth.AdminJWTSecret),
		},
	}
}
