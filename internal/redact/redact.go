// Package redact provides utilities for redacting sensitive information from strings
// before they are logged or returned in error responses. This package helps prevent
// the accidental leakage of provider API keys, callback tokens, admin credentials and
// other secrets that might be included in error messages from upstream services.
package redact

import (
	"regexp"
	"sync"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedTokenPlaceholder      = "[REDACTED_TOKEN]"
)

// rule pairs a pattern with its replacement. Replacements may reference
// capture groups using regexp template syntax.
type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Precompiled rules, applied in order. Provider specific key formats run first
// so the generic key rule does not leave partial fragments behind.
var (
	// Provider API keys
	anthropicKeyRegex = regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{8,}`)
	googleKeyRegex    = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`)
	awsKeyRegex       = regexp.MustCompile(`AKIA[A-Z0-9]{12,}`)

	// Authorization headers and tokens
	bearerRegex   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/=]{8,}`)
	jwtTokenRegex = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)

	// user:password@ in URLs
	urlCredentialRegex = regexp.MustCompile(`(?i)(https?)://[^/\s:@]+:[^/\s@]+@`)

	// key=value style secrets
	passwordRegex = regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`)
	apiKeyRegex   = regexp.MustCompile(
		`(?i)(api[_-]?key|token|secret|access[_-]?key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`,
	)

	// Stack trace fragments
	stackTraceRegex = regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`)

	// Email addresses
	emailRegex = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	rules = []rule{
		{anthropicKeyRegex, RedactedKeyPlaceholder},
		{googleKeyRegex, RedactedKeyPlaceholder},
		{awsKeyRegex, RedactedKeyPlaceholder},
		{bearerRegex, "Bearer " + RedactedTokenPlaceholder},
		{jwtTokenRegex, "[REDACTED_JWT]"},
		{urlCredentialRegex, "${1}://" + RedactedCredentialPlaceholder + "@"},
		{passwordRegex, RedactedCredentialPlaceholder},
		{apiKeyRegex, RedactedKeyPlaceholder},
		{stackTraceRegex, "[STACK_TRACE_REDACTED]"},
		{emailRegex, "[REDACTED_EMAIL]"},
	}

	mu sync.RWMutex
)

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	mu.RLock()
	defer mu.RUnlock()

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.replacement)
	}

	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}

// Secret returns a fixed placeholder for any non-empty value. It is used for
// values that are known to be secret in their entirety, such as configured keys.
func Secret(value string) string {
	if value == "" {
		return ""
	}
	return RedactionPlaceholder
}
