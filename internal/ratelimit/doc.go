// Package ratelimit guards outbound provider calls.
//
// Two algorithms are available behind the Limiter interface. SlidingWindow keeps a
// log of admission times and guarantees that no more than N requests are admitted in
// any interval of the window's length; it is the default. TokenBucket delegates to
// golang.org/x/time/rate and lets a short burst through up front; its refill rate is
// lowered by the burst size so the same per-window bound holds.
//
// Both honour Throttle, which the task runner calls when the provider answers with
// a Retry-After hint.
package ratelimit
