/**
 * @description
 * Rate limiting middleware protecting the onboarding and payment
 * endpoints from abuse. Uses an in-memory sliding window per caller
 * identifier: a list of request timestamps pruned of entries older
 * than the window on every check.
 *
 * Rate limiting here is a soft defense, not a security boundary: state
 * is process-local and a restart resets all counters (fails open).
 *
 * @dependencies
 * - math/rand, sync, time: Standard Go libraries.
 * - net/http: For HTTP middleware.
 */
package middleware

import (
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWindow is the trailing window length for the limiter.
	DefaultWindow = time.Minute
	// DefaultLimit is the request cap within one window.
	DefaultLimit = 30

	// sweepProbability is the per-call chance of a full sweep of
	// tracked identifiers, bounding memory growth. Best-effort, not
	// guaranteed-timely.
	sweepProbability = 0.01
)

// Limiter decides whether a request from an identifier is allowed. It
// never errors; an unavailable backend must fail open.
type Limiter interface {
	Allow(identifier string) bool
}

// SlidingWindowLimiter implements Limiter with per-identifier request
// timestamp lists.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int

	mu       sync.Mutex
	requests map[string][]time.Time

	// now and randFloat are swappable for tests.
	now       func() time.Time
	randFloat func() float64
}

// NewSlidingWindowLimiter creates a limiter allowing limit requests per
// identifier within a trailing window.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		window:    window,
		limit:     limit,
		requests:  make(map[string][]time.Time),
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// Allow reports whether a request from identifier should proceed. A
// rejected attempt is not recorded, so hammering a throttled
// identifier does not extend its throttle.
func (l *SlidingWindowLimiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	valid := pruneBefore(l.requests[identifier], cutoff)
	if len(valid) >= l.limit {
		l.requests[identifier] = valid
		return false
	}

	l.requests[identifier] = append(valid, now)

	if l.randFloat() < sweepProbability {
		l.sweep(cutoff)
	}

	return true
}

// sweep drops identifiers with no valid timestamps. Callers must hold
// the lock.
func (l *SlidingWindowLimiter) sweep(cutoff time.Time) {
	for key, times := range l.requests {
		valid := pruneBefore(times, cutoff)
		if len(valid) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = valid
		}
	}
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	valid := times[:0:0]
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

// RateLimit creates a middleware gating requests through the given
// limiter, keyed by the authenticated user id when available and the
// client IP otherwise.
func RateLimit(limiter Limiter, identify func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := identify(r)
			if !limiter.Allow(identifier) {
				w.Header().Set("Retry-After", strconv.Itoa(int(DefaultWindow.Seconds())))
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request, honoring proxy
// headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndexByte(ip, ':'); idx > 0 {
		return ip[:idx]
	}
	return ip
}
