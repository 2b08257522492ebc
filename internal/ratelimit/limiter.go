package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/relay-api/internal/config"
)

// Algorithm names accepted in rate_limit.algorithm.
const (
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
)

var (
	// ErrInvalidRate is returned when a limiter is configured with a
	// non-positive request rate.
	ErrInvalidRate = errors.New("rate limit must be greater than zero")

	// ErrInvalidBurst is returned when a token bucket burst is larger than
	// the rate it must stay within.
	ErrInvalidBurst = errors.New("burst must not exceed the request rate")

	// ErrUnknownAlgorithm is returned for an unsupported algorithm name.
	ErrUnknownAlgorithm = errors.New("unknown rate limit algorithm")
)

// Limiter gates outbound provider calls.
type Limiter interface {
	// Admit consumes a slot if one is free and reports true. Otherwise it
	// reports false and how long the caller should wait before asking again.
	// Admit never blocks.
	Admit() (bool, time.Duration)

	// Wait blocks until a slot is consumed or ctx is done.
	Wait(ctx context.Context) error

	// Throttle refuses all admissions for d, typically because the provider
	// answered with a Retry-After hint.
	Throttle(d time.Duration)

	// Snapshot reports the configured limits and current usage.
	Snapshot() Snapshot
}

// Snapshot is a point-in-time view of a limiter.
type Snapshot struct {
	Algorithm      string
	LimitPerMinute int
	LimitPerHour   int
	UsedLastMinute int
	UsedLastHour   int
	Available      int
	NextSlotIn     time.Duration
	ThrottledUntil time.Time
	TotalAdmitted  uint64
	TotalRefused   uint64
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates the limiter selected by cfg.Algorithm.
func New(cfg config.RateLimitConfig, opts ...Option) (Limiter, error) {
	switch cfg.Algorithm {
	case "", AlgorithmSlidingWindow:
		return NewSlidingWindow(cfg.MaxRequestsPerMinute, cfg.MaxRequestsPerHour, opts...)
	case AlgorithmTokenBucket:
		return NewTokenBucket(cfg.MaxRequestsPerMinute, cfg.MaxRequestsPerHour, cfg.Burst, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
}

func validateRates(perMinute, perHour int) error {
	if perMinute <= 0 {
		return fmt.Errorf("%w: got %d requests per minute", ErrInvalidRate, perMinute)
	}
	if perHour < 0 {
		return fmt.Errorf("%w: got %d requests per hour", ErrInvalidRate, perHour)
	}
	return nil
}
