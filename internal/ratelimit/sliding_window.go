package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window is a log of admission timestamps inside a fixed lookback period.
type window struct {
	size   time.Duration
	limit  int
	stamps []time.Time
}

// prune drops timestamps that have left the window at now.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// wait returns how long until the window has a free slot. Zero means free now.
func (w *window) wait(now time.Time) time.Duration {
	if len(w.stamps) < w.limit {
		return 0
	}
	// Oldest entry that must expire before a slot opens.
	oldest := w.stamps[len(w.stamps)-w.limit]
	return oldest.Add(w.size).Sub(now)
}

// SlidingWindow admits at most limit requests in any interval of each window's
// size. It keeps one timestamp per admission, so memory is bounded by the
// largest window limit.
type SlidingWindow struct {
	mu             sync.Mutex
	windows        []*window
	throttledUntil time.Time
	admitted       uint64
	refused        uint64
	now            func() time.Time
}

// NewSlidingWindow creates a limiter with a per-minute window and, when
// perHour is positive, an additional per-hour window.
func NewSlidingWindow(perMinute, perHour int, opts ...Option) (*SlidingWindow, error) {
	if err := validateRates(perMinute, perHour); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	sw := &SlidingWindow{
		windows: []*window{{size: time.Minute, limit: perMinute}},
		now:     o.now,
	}
	if perHour > 0 {
		sw.windows = append(sw.windows, &window{size: time.Hour, limit: perHour})
	}
	return sw, nil
}

// Admit implements Limiter.
func (l *SlidingWindow) Admit() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if wait := l.waitLocked(now); wait > 0 {
		l.refused++
		return false, wait
	}

	for _, w := range l.windows {
		w.stamps = append(w.stamps, now)
	}
	l.admitted++
	return true, 0
}

// waitLocked prunes every window and returns the longest wait among them,
// including any provider cooldown.
func (l *SlidingWindow) waitLocked(now time.Time) time.Duration {
	var wait time.Duration
	if now.Before(l.throttledUntil) {
		wait = l.throttledUntil.Sub(now)
	}
	for _, w := range l.windows {
		w.prune(now)
		if d := w.wait(now); d > wait {
			wait = d
		}
	}
	return wait
}

// Wait implements Limiter.
func (l *SlidingWindow) Wait(ctx context.Context) error {
	return waitFor(ctx, l.Admit)
}

// Throttle implements Limiter.
func (l *SlidingWindow) Throttle(d time.Duration) {
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

// Snapshot implements Limiter.
func (l *SlidingWindow) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	snap := Snapshot{
		Algorithm:     AlgorithmSlidingWindow,
		NextSlotIn:    l.waitLocked(now),
		TotalAdmitted: l.admitted,
		TotalRefused:  l.refused,
	}
	if now.Before(l.throttledUntil) {
		snap.ThrottledUntil = l.throttledUntil
	}

	snap.Available = -1
	for _, w := range l.windows {
		free := w.limit - len(w.stamps)
		if snap.Available < 0 || free < snap.Available {
			snap.Available = free
		}
		switch w.size {
		case time.Minute:
			snap.LimitPerMinute = w.limit
			snap.UsedLastMinute = len(w.stamps)
		case time.Hour:
			snap.LimitPerHour = w.limit
			snap.UsedLastHour = len(w.stamps)
		}
	}
	if !snap.ThrottledUntil.IsZero() {
		snap.Available = 0
	}
	return snap
}

// waitFor polls admit until it succeeds or ctx is done, sleeping for the
// hinted duration between attempts.
func waitFor(ctx context.Context, admit func() (bool, time.Duration)) error {
	for {
		ok, wait := admit()
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
