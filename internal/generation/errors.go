package generation

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the generation package. Every *Error matches exactly
// one of these with errors.Is.
var (
	// ErrTimeout is returned when the provider did not answer within the deadline
	ErrTimeout = errors.New("provider request timed out")

	// ErrAuthentication is returned when the provider rejects the configured credentials
	ErrAuthentication = errors.New("provider rejected credentials")

	// ErrRateLimited is returned when the provider signals that too many requests were made
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrTransientNetwork is returned for temporary errors that might resolve on retry
	ErrTransientNetwork = errors.New("transient error contacting provider")

	// ErrMalformedResponse is returned when the provider response cannot be parsed or is empty
	ErrMalformedResponse = errors.New("malformed response from provider")

	// ErrRejected is returned when the provider refuses the request itself
	ErrRejected = errors.New("provider rejected the request")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// Kind classifies a provider failure.
type Kind int

// Failure kinds. The zero value is KindTransientNetwork so an unclassified
// error is retried rather than dropped.
const (
	KindTransientNetwork Kind = iota
	KindTimeout
	KindAuthentication
	KindRateLimited
	KindMalformedResponse
	KindRejected
)

var kindSentinels = map[Kind]error{
	KindTransientNetwork:  ErrTransientNetwork,
	KindTimeout:           ErrTimeout,
	KindAuthentication:    ErrAuthentication,
	KindRateLimited:       ErrRateLimited,
	KindMalformedResponse: ErrMalformedResponse,
	KindRejected:          ErrRejected,
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindAuthentication:
		return "authentication"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformedResponse:
		return "malformed_response"
	case KindRejected:
		return "rejected"
	default:
		return "transient_network"
	}
}

// Transient reports whether a failure of this kind is worth retrying.
func (k Kind) Transient() bool {
	return k == KindTimeout || k == KindTransientNetwork || k == KindRateLimited
}

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	// RetryAfter is the provider supplied back-off hint, zero when absent.
	RetryAfter time.Duration
	Err        error
}

// NewError creates a classified error for provider.
func NewError(provider string, kind Kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, kindSentinels[e.Kind])
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// IsTransient reports whether err is a provider failure that may succeed on retry.
// Errors that are not classified are treated as non-transient.
func IsTransient(err error) bool {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind.Transient()
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrRateLimited)
}

// RetryAfterOf returns the provider back-off hint carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var genErr *Error
	if errors.As(err, &genErr) && genErr.RetryAfter > 0 {
		return genErr.RetryAfter, true
	}
	return 0, false
}

// KindOf returns the kind of a classified error. Unclassified errors report
// KindTransientNetwork and false.
func KindOf(err error) (Kind, bool) {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind, true
	}
	return KindTransientNetwork, false
}

// KindForStatus maps an HTTP status code returned by a provider to a Kind.
// 401 and 403 are authentication failures, 408 is a timeout, 429 is rate
// limiting, 5xx (including the non-standard 529 overloaded) is transient and
// every other 4xx means the provider refused the request.
func KindForStatus(code int) Kind {
	switch {
	case code == 401 || code == 403:
		return KindAuthentication
	case code == 408:
		return KindTimeout
	case code == 429:
		return KindRateLimited
	case code >= 500:
		return KindTransientNetwork
	case code >= 400:
		return KindRejected
	default:
		return KindMalformedResponse
	}
}
