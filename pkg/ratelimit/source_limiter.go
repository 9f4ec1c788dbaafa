package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SourceRateLimiter paces requests against the upstream Nix ecosystem services.
// Each source gets a fixed minimum interval between requests plus error backoff.
type SourceRateLimiter struct {
	mu              sync.Mutex
	limiters        map[string]*sourceLimiter
	backoffDisabled bool
}

type sourceLimiter struct {
	name            string
	minInterval     time.Duration
	lastRequestTime time.Time
	backoffUntil    time.Time
	requestCount    int64
	errorCount      int64
}

// NewSourceRateLimiter creates a rate limiter with the documented per-source
// pacing: the search API and GitHub tolerate fast polling, the wiki and
// Discourse ask for more breathing room.
func NewSourceRateLimiter() *SourceRateLimiter {
	return &SourceRateLimiter{
		limiters: map[string]*sourceLimiter{
			"search_api": {
				name:        "search_api",
				minInterval: 200 * time.Millisecond,
			},
			"nixpkgs": {
				name:        "nixpkgs",
				minInterval: 100 * time.Millisecond,
			},
			"nixpkgs_raw": {
				name:        "nixpkgs_raw",
				minInterval: 500 * time.Millisecond, // unauthenticated fallback
			},
			"wiki": {
				name:        "wiki",
				minInterval: 500 * time.Millisecond,
			},
			"discourse": {
				name:        "discourse",
				minInterval: 300 * time.Millisecond,
			},
		},
	}
}

// SetMinInterval overrides the pacing for one source, for runs against
// local stubs
func (r *SourceRateLimiter) SetMinInterval(source string, interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[source]; exists {
		limiter.minInterval = interval
	}
}

// DisableBackoff turns off error backoff, for runs against local stubs
func (r *SourceRateLimiter) DisableBackoff() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoffDisabled = true
}

// WaitForSource blocks until it's safe to make a request to the source
func (r *SourceRateLimiter) WaitForSource(ctx context.Context, source string) error {
	r.mu.Lock()
	limiter, exists := r.limiters[source]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("unknown source: %s", source)
	}

	now := time.Now()

	// Check if we're in backoff
	if now.Before(limiter.backoffUntil) {
		waitTime := limiter.backoffUntil.Sub(now)
		r.mu.Unlock()

		select {
		case <-time.After(waitTime):
			return r.WaitForSource(ctx, source) // Retry after backoff
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timeSinceLastRequest := now.Sub(limiter.lastRequestTime)

	if timeSinceLastRequest < limiter.minInterval {
		waitTime := limiter.minInterval - timeSinceLastRequest
		r.mu.Unlock()

		select {
		case <-time.After(waitTime):
			r.mu.Lock()
			limiter.lastRequestTime = time.Now()
			limiter.requestCount++
			r.mu.Unlock()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	limiter.lastRequestTime = now
	limiter.requestCount++
	r.mu.Unlock()
	return nil
}

// RecordError records an error and potentially triggers backoff
func (r *SourceRateLimiter) RecordError(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limiter, exists := r.limiters[source]
	if !exists {
		return
	}

	limiter.errorCount++

	// Exponential-ish backoff on repeated errors, capped at one minute
	if limiter.errorCount > 3 && !r.backoffDisabled {
		backoffDuration := time.Duration(limiter.errorCount) * 5 * time.Second
		if backoffDuration > time.Minute {
			backoffDuration = time.Minute
		}
		limiter.backoffUntil = time.Now().Add(backoffDuration)
	}
}

// RecordSuccess resets error count for a source
func (r *SourceRateLimiter) RecordSuccess(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[source]; exists {
		limiter.errorCount = 0
	}
}

// SourceStats contains request statistics for a source
type SourceStats struct {
	RequestCount    int64
	ErrorCount      int64
	LastRequestTime time.Time
	InBackoff       bool
}

// GetStats returns statistics for all sources
func (r *SourceRateLimiter) GetStats() map[string]SourceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]SourceStats)
	for name, limiter := range r.limiters {
		stats[name] = SourceStats{
			RequestCount:    limiter.requestCount,
			ErrorCount:      limiter.errorCount,
			LastRequestTime: limiter.lastRequestTime,
			InBackoff:       time.Now().Before(limiter.backoffUntil),
		}
	}
	return stats
}
