// Package ratelimit implements the sliding-window request limiter consulted at the request
// boundary, its per-route rule table and client key derivation.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Limited   bool
	Limit     int
	Remaining int
	// Reset is when the oldest request in the window leaves it.
	Reset time.Time
}

// Limiter checks and records one request for key against max requests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (Decision, error)
}

// SlidingWindow is the in-process Limiter: per key, the timestamps of recent requests.
type SlidingWindow struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	maxWindow time.Duration
	nowF      func() time.Time
}

// NewSlidingWindow returns an empty limiter. maxWindow is the longest window any rule
// uses; Cleanup drops keys idle for longer than that.
func NewSlidingWindow(maxWindow time.Duration) *SlidingWindow {
	return &SlidingWindow{windows: make(map[string][]time.Time), maxWindow: maxWindow, nowF: time.Now}
}

// IsRateLimited counts the requests for key inside the trailing window. At quota it
// returns limited without recording the attempt; otherwise it records the attempt and
// returns the quota left.
func (w *SlidingWindow) IsRateLimited(key string, max int, window time.Duration) (limited bool, remaining int) {
	d := w.check(key, max, window)
	return d.Limited, d.Remaining
}

// Allow implements Limiter.
func (w *SlidingWindow) Allow(_ context.Context, key string, max int, window time.Duration) (Decision, error) {
	return w.check(key, max, window), nil
}

func (w *SlidingWindow) check(key string, max int, window time.Duration) Decision {
	now := w.nowF()
	cutoff := now.Add(-window)

	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.windows[key]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]

	d := Decision{Limit: max, Reset: now.Add(window)}
	if len(ts) > 0 {
		d.Reset = ts[0].Add(window)
	}
	if len(ts) >= max {
		w.windows[key] = ts
		d.Limited = true
		return d
	}
	w.windows[key] = append(ts, now)
	d.Remaining = max - len(ts) - 1
	return d
}

// Cleanup drops keys whose newest request is older than the longest window. It returns
// the number of keys removed.
func (w *SlidingWindow) Cleanup() int {
	cutoff := w.nowF().Add(-w.maxWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for key, ts := range w.windows {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(w.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.windows)
}

// Run calls Cleanup every interval until ctx is cancelled.
func (w *SlidingWindow) Run(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := w.Cleanup(); n > 0 && logger != nil {
				logger.Debug("ratelimit: dropped idle windows", zap.Int("count", n))
			}
		}
	}
}
