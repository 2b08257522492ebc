package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Provider  ProviderConfig  `mapstructure:"provider" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry" validate:"required"`
	Callback  CallbackConfig  `mapstructure:"callback"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// ProviderConfig describes the upstream LLM provider that tasks are relayed to.
type ProviderConfig struct {
	Name             string `mapstructure:"name" validate:"required,oneof=anthropic gemini"`
	APIKey           string `mapstructure:"api_key" validate:"required"`
	BaseURL          string `mapstructure:"base_url" validate:"omitempty,url"`
	Model            string `mapstructure:"model" validate:"required"`
	MaxTokens        int    `mapstructure:"max_tokens" validate:"gt=0"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds" validate:"gt=0"`
	AnthropicVersion string `mapstructure:"anthropic_version"`
}

// Timeout returns the per-call provider timeout.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig bounds outbound provider calls.
type RateLimitConfig struct {
	// Algorithm selects the limiter implementation.
	Algorithm string `mapstructure:"algorithm" validate:"required,oneof=sliding_window token_bucket"`

	// MaxRequestsPerMinute must be positive; zero or negative values are rejected at startup.
	MaxRequestsPerMinute int `mapstructure:"max_rpm" validate:"gt=0"`

	// MaxRequestsPerHour adds a second, longer window. Zero disables it.
	MaxRequestsPerHour int `mapstructure:"max_rph" validate:"gte=0"`

	// Burst is only used by the token bucket algorithm. It may not exceed
	// MaxRequestsPerMinute.
	Burst int `mapstructure:"burst" validate:"gte=0,ltefield=MaxRequestsPerMinute"`
}

// QueueConfig controls the in-memory task queue and worker pool.
type QueueConfig struct {
	MaxDepth             int `mapstructure:"max_depth" validate:"gt=0"`
	WorkerCount          int `mapstructure:"worker_count" validate:"gt=0"`
	MaxTextLength        int `mapstructure:"max_text_length" validate:"gt=0"`
	RetentionMinutes     int `mapstructure:"retention_minutes" validate:"gte=0"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" validate:"gt=0"`
}

// Retention returns how long terminal tasks are kept. Zero means forever.
func (c QueueConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// SweepInterval returns how often the retention sweeper runs.
func (c QueueConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RetryConfig is the provider-call retry policy applied by the task runner.
type RetryConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	BaseDelayMillis int `mapstructure:"base_delay_ms" validate:"gt=0"`
	MaxDelayMillis  int `mapstructure:"max_delay_ms" validate:"gtefield=BaseDelayMillis"`
}

// BaseDelay returns the initial backoff delay.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMillis) * time.Millisecond
}

// MaxDelay returns the backoff cap.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMillis) * time.Millisecond
}

// CallbackConfig controls webhook delivery of finished tasks.
type CallbackConfig struct {
	DefaultURL       string   `mapstructure:"default_url" validate:"omitempty,url"`
	AllowedDomains   []string `mapstructure:"allowed_domains"`
	AuthToken        string   `mapstructure:"auth_token"`
	MaxAttempts      int      `mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	RetryDelayMillis int      `mapstructure:"retry_delay_ms" validate:"gt=0"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds" validate:"gt=0"`
	Concurrency      int      `mapstructure:"concurrency" validate:"gt=0"`
}

// RetryDelay returns the initial delay between delivery attempts.
func (c CallbackConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}

// Timeout returns the per-attempt webhook timeout.
func (c CallbackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig contains admin authentication settings.
// At least one of AdminAPIKey, AdminAPIKeyHash or AdminJWTSecret must be set.
type AuthConfig struct {
	AdminAPIKey     string `mapstructure:"admin_api_key"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash"`
	AdminJWTSecret  string `mapstructure:"admin_jwt_secret" validate:"omitempty,min=32"`
}

// HasAdminCredential reports whether any admin credential is configured.
func (c AuthConfig) HasAdminCredential() bool {
	return c.AdminAPIKey != "" || c.AdminAPIKeyHash != "" || c.AdminJWTSecret != ""
}
