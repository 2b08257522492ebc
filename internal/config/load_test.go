package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets up environment variables for testing
func setupEnv(t *testing.T, envVars map[string]string) func() {
	// Save current environment values
	originalValues := make(map[string]string)
	for name := range envVars {
		originalValues[name] = os.Getenv(name)
	}

	// Set new environment variables
	for name, value := range envVars {
		err := os.Setenv(name, value)
		require.NoError(t, err, "Failed to set environment variable %s", name)
	}

	// Return cleanup function
	return func() {
		for name, value := range originalValues {
			if value == "" {
				os.Unsetenv(name)
			} else {
				os.Setenv(name, value)
			}
		}
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"RELAY_PROVIDER_API_KEY":  "test-api-key",
		"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
	}
}

// TestLoadDefaults verifies the defaults applied when only required values are set.
func TestLoadDefaults(t *testing.T) {
	env := requiredEnv()
	env["RELAY_SERVER_PORT"] = ""
	env["RELAY_SERVER_LOG_LEVEL"] = ""
	cleanup := setupEnv(t, env)
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "sliding_window", cfg.RateLimit.Algorithm)
	assert.Equal(t, 60, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 1000, cfg.Queue.MaxDepth)
	assert.Equal(t, 5000, cfg.Queue.MaxTextLength)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3, cfg.Callback.MaxAttempts)
	assert.Equal(t, []string{"*"}, cfg.Callback.AllowedDomains)
}

// TestLoadFromEnv verifies that prefixed environment variables are read.
func TestLoadFromEnv(t *testing.T) {
	env := requiredEnv()
	env["RELAY_SERVER_PORT"] = "9090"
	env["RELAY_SERVER_LOG_LEVEL"] = "debug"
	env["RELAY_PROVIDER_NAME"] = "gemini"
	env["RELAY_PROVIDER_MODEL"] = "gemini-2.0-flash"
	env["RELAY_RATE_LIMIT_MAX_RPM"] = "5"
	env["RELAY_QUEUE_MAX_DEPTH"] = "12"
	env["RELAY_CALLBACK_ALLOWED_DOMAINS"] = "Example.com, hooks.test.io"
	env["RELAY_CALLBACK_DEFAULT_URL"] = "https://example.com/cb"
	cleanup := setupEnv(t, env)
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "gemini-2.0-flash", cfg.Provider.Model)
	assert.Equal(t, "test-api-key", cfg.Provider.APIKey)
	assert.Equal(t, 5, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 12, cfg.Queue.MaxDepth)
	assert.Equal(t, []string{"example.com", "hooks.test.io"}, cfg.Callback.AllowedDomains)
	assert.Equal(t, "https://example.com/cb", cfg.Callback.DefaultURL)
}

// TestLoadLegacyEnv verifies the env names used by earlier deployments still work.
func TestLoadLegacyEnv(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		"CLAUDE_API_KEY":           "legacy-key",
		"CLAUDE_MODEL":             "claude-legacy",
		"ADMIN_API_ACCESS_KEY":     "legacy-admin",
		"ALLOWED_CALLBACK_DOMAINS": "a.com,b.com",
		"CALLBACK_AUTH_TOKEN":      "cb-token",
	})
	defer cleanup()

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "legacy-key", cfg.Provider.APIKey)
	assert.Equal(t, "claude-legacy", cfg.Provider.Model)
	assert.Equal(t, "legacy-admin", cfg.Auth.AdminAPIKey)
	assert.Equal(t, []string{"a.com", "b.com"}, cfg.Callback.AllowedDomains)
	assert.Equal(t, "cb-token", cfg.Callback.AuthToken)
}

// TestLoadValidationErrors verifies that the Load function correctly validates the configuration.
func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name: "missing provider api key",
			envVars: map[string]string{
				"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
			},
		},
		{
			name: "missing admin credential",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY": "test-api-key",
			},
		},
		{
			name: "zero rate limit",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY":   "test-api-key",
				"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
				"RELAY_RATE_LIMIT_MAX_RPM": "0",
			},
		},
		{
			name: "negative rate limit",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY":   "test-api-key",
				"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
				"RELAY_RATE_LIMIT_MAX_RPM": "-3",
			},
		},
		{
			name: "burst above rate limit",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY":   "test-api-key",
				"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
				"RELAY_RATE_LIMIT_MAX_RPM": "10",
				"RELAY_RATE_LIMIT_BURST":   "11",
			},
		},
		{
			name: "unknown provider",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY":   "test-api-key",
				"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
				"RELAY_PROVIDER_NAME":      "mystery",
			},
		},
		{
			name: "invalid port number",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY":   "test-api-key",
				"RELAY_AUTH_ADMIN_API_KEY": "admin-secret",
				"RELAY_SERVER_PORT":        "999999",
			},
		},
		{
			name: "short jwt secret",
			envVars: map[string]string{
				"RELAY_PROVIDER_API_KEY":     "test-api-key",
				"RELAY_AUTH_ADMIN_JWT_SECRET": "tooshort",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cleanup := setupEnv(t, tc.envVars)
			defer cleanup()

			cfg, err := Load()

			require.Error(t, err, "Load() should return an error with invalid configuration")
			assert.Contains(t, err.Error(), "validation failed")
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_DOTENV_PROBE=loaded\n"), 0o600))
	defer os.Unsetenv("RELAY_DOTENV_PROBE")

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("RELAY_DOTENV_PROBE"))
}

func TestNormalizeDomains(t *testing.T) {
	assert.Equal(t, []string{"a.com", "b.org"}, normalizeDomains([]string{" A.com , ", "b.org"}))
	assert.Empty(t, normalizeDomains(nil))
}
