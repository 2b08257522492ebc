// Package generation provides interfaces for interacting with external AI/LLM
// services. It abstracts the details of provider API integration (Anthropic,
// Gemini), allowing the task runner to relay text without coupling to a
// specific external service.
//
// Adapters report failures as *Error values whose Kind drives the retry
// policy: timeouts, network errors and rate limiting are transient, while
// authentication failures, rejected requests and malformed responses are not.
package generation
