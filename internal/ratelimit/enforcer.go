package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Exceeded   bool
	Caller     string
	Current    int
	Limit      int
	RetryAfter time.Duration
	Reason     string
}

// Limiter tracks one window per caller. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*window
}

// NewLimiter returns nil when cfg has no limits; a nil Limiter allows
// everything.
func NewLimiter(cfg Config) *Limiter {
	if !cfg.HasLimits() {
		return nil
	}
	return &Limiter{cfg: cfg, windows: make(map[string]*window)}
}

// Check compares count against limit.
func Check(count int, limit Limit) Result {
	if !limit.enabled() || count < limit.MaxRequests {
		return Result{}
	}
	return Result{
		Exceeded: true,
		Current:  count,
		Limit:    limit.MaxRequests,
		Reason: fmt.Sprintf("rate limit exceeded: %d/%d decisions in %s window",
			count, limit.MaxRequests, limit.Window),
	}
}

// Allow counts one request for caller at now, unless its limit is already
// reached. Callers without an entry share the Wildcard limit but keep their
// own counters.
func (l *Limiter) Allow(caller string, now time.Time) Result {
	if l == nil {
		return Result{}
	}
	limit, ok := l.cfg.lookup(caller)
	if !ok {
		return Result{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[caller]
	if w == nil {
		w = &window{start: now}
		l.windows[caller] = w
	}
	res := Check(w.snapshot(limit.Window, now), limit)
	if !res.Exceeded {
		w.count++
		return Result{}
	}
	res.Caller = caller
	res.RetryAfter = w.start.Add(limit.Window).Sub(now)
	return res
}
