package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "RELAY"

// ErrMissingAdminCredential is returned when no admin credential is configured.
var ErrMissingAdminCredential = errors.New(
	"one of auth.admin_api_key, auth.admin_api_key_hash or auth.admin_jwt_secret is required",
)

// legacyEnv maps config keys to the environment variable names used by earlier
// deployments of the service. The prefixed name always wins.
var legacyEnv = map[string][]string{
	"provider.api_key":         {"CLAUDE_API_KEY"},
	"provider.base_url":        {"CLAUDE_BASE_URL"},
	"provider.model":           {"CLAUDE_MODEL"},
	"provider.max_tokens":      {"CLAUDE_TOKEN_LIMIT"},
	"auth.admin_api_key":       {"ADMIN_API_ACCESS_KEY"},
	"callback.allowed_domains": {"ALLOWED_CALLBACK_DOMAINS"},
	"callback.auth_token":      {"CALLBACK_AUTH_TOKEN"},
	"callback.default_url":     {"DEFAULT_CALLBACK_URL"},
}

// setDefaults registers a default for every key so that AutomaticEnv can
// resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.model", "claude-3-5-sonnet-latest")
	v.SetDefault("provider.max_tokens", 1024)
	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("provider.anthropic_version", "2023-06-01")

	v.SetDefault("rate_limit.algorithm", "sliding_window")
	v.SetDefault("rate_limit.max_rpm", 60)
	v.SetDefault("rate_limit.max_rph", 1000)
	v.SetDefault("rate_limit.burst", 1)

	v.SetDefault("queue.max_depth", 1000)
	v.SetDefault("queue.worker_count", 4)
	v.SetDefault("queue.max_text_length", 5000)
	v.SetDefault("queue.retention_minutes", 24*60)
	v.SetDefault("queue.sweep_interval_seconds", 300)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1500)
	v.SetDefault("retry.max_delay_ms", 30000)

	v.SetDefault("callback.default_url", "")
	v.SetDefault("callback.allowed_domains", []string{"*"})
	v.SetDefault("callback.auth_token", "")
	v.SetDefault("callback.max_attempts", 3)
	v.SetDefault("callback.retry_delay_ms", 5000)
	v.SetDefault("callback.timeout_seconds", 10)
	v.SetDefault("callback.concurrency", 8)

	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.admin_api_key_hash", "")
	v.SetDefault("auth.admin_jwt_secret", "")
}

// LoadDotEnv loads environment variables from the given .env files.
// Files that do not exist are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/relay-api")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables: RELAY_PROVIDER_API_KEY -> provider.api_key
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range legacyEnv {
		names := append([]string{envName(key)}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Callback.AllowedDomains = normalizeDomains(cfg.Callback.AllowedDomains)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if !cfg.Auth.HasAdminCredential() {
		return fmt.Errorf("config validation failed: %w", ErrMissingAdminCredential)
	}
	return nil
}

// envName returns the prefixed environment variable name for a config key.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// normalizeDomains splits comma separated entries (as they arrive from env
// vars), trims whitespace and lowercases. Empty entries are dropped.
func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, entry := range in {
		for _, d := range strings.Split(entry, ",") {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}
