package callback

import "errors"

// Common errors returned by the callback package
var (
	// ErrInvalidURL is returned when a callback URL is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid callback URL")

	// ErrDomainNotAllowed is returned when the callback host is outside the allow list
	ErrDomainNotAllowed = errors.New("callback domain not allowed")

	// ErrNoCallback is returned when dispatching a task that has no callback URL
	ErrNoCallback = errors.New("task has no callback URL")

	// ErrTaskNotTerminal is returned when dispatching a task that has not finished
	ErrTaskNotTerminal = errors.New("task has not finished")

	// ErrDeliveryFailed is returned when every delivery attempt failed
	ErrDeliveryFailed = errors.New("callback delivery failed")

	// ErrDispatcherStopped is returned when enqueueing after Stop
	ErrDispatcherStopped = errors.New("callback dispatcher is stopped")
)
