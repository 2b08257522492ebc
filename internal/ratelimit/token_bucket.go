package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket paces requests with golang.org/x/time/rate. Each bucket holds
// up to burst tokens and refills at limit-burst+1 tokens per period, so a
// full bucket plus its refill never exceeds limit inside one period.
type TokenBucket struct {
	mu             sync.Mutex
	minute         *rate.Limiter
	hour           *rate.Limiter
	perMinute      int
	perHour        int
	throttledUntil time.Time
	admitted       uint64
	refused        uint64
	now            func() time.Time
}

// NewTokenBucket creates a token bucket limiter bounded to perMinute requests
// per minute. When perHour is positive a second bucket enforces the hourly
// limit. A burst of zero defaults to one; a burst larger than either limit
// is rejected.
func NewTokenBucket(perMinute, perHour, burst int, opts ...Option) (*TokenBucket, error) {
	if err := validateRates(perMinute, perHour); err != nil {
		return nil, err
	}
	if burst <= 0 {
		burst = 1
	}
	if burst > perMinute || (perHour > 0 && burst > perHour) {
		return nil, fmt.Errorf("%w: burst %d exceeds the configured limits", ErrInvalidBurst, burst)
	}

	o := buildOptions(opts)
	tb := &TokenBucket{
		minute:    newBucket(perMinute, burst, time.Minute),
		perMinute: perMinute,
		perHour:   perHour,
		now:       o.now,
	}
	if perHour > 0 {
		tb.hour = newBucket(perHour, burst, time.Hour)
	}
	return tb, nil
}

// newBucket sizes a bucket so that burst plus refill over period stays
// within limit.
func newBucket(limit, burst int, period time.Duration) *rate.Limiter {
	refill := limit - burst + 1
	return rate.NewLimiter(rate.Every(period/time.Duration(refill)), burst)
}

// Admit implements Limiter.
func (l *TokenBucket) Admit() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.throttledUntil) {
		l.refused++
		return false, l.throttledUntil.Sub(now)
	}

	reservations := make([]*rate.Reservation, 0, 2)
	var wait time.Duration
	for _, lim := range l.buckets() {
		r := lim.ReserveN(now, 1)
		reservations = append(reservations, r)
		if !r.OK() {
			wait = time.Minute
			continue
		}
		if d := r.DelayFrom(now); d > wait {
			wait = d
		}
	}

	if wait > 0 {
		for _, r := range reservations {
			r.CancelAt(now)
		}
		l.refused++
		return false, wait
	}

	l.admitted++
	return true, 0
}

func (l *TokenBucket) buckets() []*rate.Limiter {
	if l.hour == nil {
		return []*rate.Limiter{l.minute}
	}
	return []*rate.Limiter{l.minute, l.hour}
}

// Wait implements Limiter.
func (l *TokenBucket) Wait(ctx context.Context) error {
	return waitFor(ctx, l.Admit)
}

// Throttle implements Limiter.
func (l *TokenBucket) Throttle(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(d)
	if until.After(l.throttledUntil) {
		l.throttledUntil = until
	}
}

// Snapshot implements Limiter. Usage counters are not tracked per window for
// token buckets; Available reports whole tokens currently in the bucket.
func (l *TokenBucket) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	snap := Snapshot{
		Algorithm:      AlgorithmTokenBucket,
		LimitPerMinute: l.perMinute,
		LimitPerHour:   l.perHour,
		TotalAdmitted:  l.admitted,
		TotalRefused:   l.refused,
	}

	snap.Available = -1
	for _, lim := range l.buckets() {
		tokens := int(lim.TokensAt(now))
		if tokens < 0 {
			tokens = 0
		}
		if snap.Available < 0 || tokens < snap.Available {
			snap.Available = tokens
		}
	}

	if now.Before(l.throttledUntil) {
		snap.ThrottledUntil = l.throttledUntil
		snap.NextSlotIn = l.throttledUntil.Sub(now)
		snap.Available = 0
	} else if snap.Available == 0 {
		snap.NextSlotIn = time.Minute / time.Duration(l.perMinute)
	}
	return snap
}
