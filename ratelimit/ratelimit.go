// Package ratelimit paces outbound requests per origin with token buckets
// powered by golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Registry owns one limiter per origin. Each limiter has a burst of 1, so
// consecutive requests to an origin are spaced by at least 1/rps.
//
// Entries unused for idleTTL are evicted by a background goroutine once
// their bucket has refilled. A bucket still paying off reservations is kept,
// so eviction is not observable by callers.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	idleTTL  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Registry and starts its eviction loop.
func New(idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	r := &Registry{
		limiters: make(map[string]*limiterEntry),
		idleTTL:  idleTTL,
		stop:     make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Origin returns the limiter key for rawURL: lowercase scheme and host,
// including an explicit port.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("ratelimit: %q has no origin", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// Wait blocks until the origin's bucket grants a token or ctx is done.
// A request naming a different rate than the origin's current one
// updates the limiter in place. It returns how long the caller waited.
func (r *Registry) Wait(ctx context.Context, origin string, rps float64) (time.Duration, error) {
	if rps <= 0 {
		return 0, fmt.Errorf("ratelimit: invalid rate %v", rps)
	}
	lim := r.get(origin, rps)

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return time.Since(start), ctxErr
		}
		// The limiter refuses upfront when the deadline is closer than the
		// next token.
		return time.Since(start), fmt.Errorf("ratelimit: %s: %w", origin, context.DeadlineExceeded)
	}
	return time.Since(start), nil
}

func (r *Registry) get(origin string, rps float64) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.limiters[origin]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
		r.limiters[origin] = e
	} else if e.limiter.Limit() != rate.Limit(rps) {
		e.limiter.SetLimit(rate.Limit(rps))
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Len reports the number of tracked origins.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

// Stop ends the eviction loop.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Registry) evictIdle(now time.Time) {
	cutoff := now.Add(-r.idleTTL)
	r.mu.Lock()
	for origin, e := range r.limiters {
		// Queued waiters hold reservations that drive the bucket below one
		// token until they are served.
		if e.lastSeen.Before(cutoff) && e.limiter.TokensAt(now) >= 1 {
			delete(r.limiters, origin)
		}
	}
	r.mu.Unlock()
}

func (r *Registry) cleanupLoop() {
	interval := r.idleTTL / 12
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}
