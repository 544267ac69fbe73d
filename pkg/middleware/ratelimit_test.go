package middleware

import (
	"testing"
	"time"
)

// newTestLimiter returns a limiter with a controllable clock and the
// probabilistic sweep disabled.
func newTestLimiter(limit int, window time.Duration) (*SlidingWindowLimiter, *time.Time) {
	l := NewSlidingWindowLimiter(limit, window)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.randFloat = func() float64 { return 1.0 }
	return l, &now
}

func TestSlidingWindowBoundary(t *testing.T) {
	l, now := newTestLimiter(30, time.Minute)

	for i := 0; i < 30; i++ {
		*now = now.Add(time.Second)
		if !l.Allow("caller") {
			t.Fatalf("request %d within the cap must be allowed", i+1)
		}
	}

	*now = now.Add(time.Second)
	if l.Allow("caller") {
		t.Fatal("31st request within the window must be rejected")
	}

	// Past the window the budget is restored.
	*now = now.Add(2 * time.Minute)
	if !l.Allow("caller") {
		t.Fatal("request after the window elapsed must be allowed")
	}
}

func TestRejectedAttemptsAreNotRecorded(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)

	if !l.Allow("caller") || !l.Allow("caller") {
		t.Fatal("first two requests must be allowed")
	}

	// Hammering a throttled identifier must not extend the throttle.
	for i := 0; i < 10; i++ {
		*now = now.Add(time.Second)
		if l.Allow("caller") {
			t.Fatal("over-cap request must be rejected")
		}
	}

	// Once the two recorded timestamps age out, requests pass again.
	*now = now.Add(time.Minute)
	if !l.Allow("caller") {
		t.Fatal("expected recovery once recorded requests aged out")
	}
}

func TestLimitersAreIndependentPerIdentifier(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	if !l.Allow("a") {
		t.Fatal("first request for a must pass")
	}
	if l.Allow("a") {
		t.Fatal("second request for a must be rejected")
	}
	if !l.Allow("b") {
		t.Fatal("b has its own budget and must pass")
	}
}

func TestSweepDropsIdleIdentifiers(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	l.Allow("idle")
	*now = now.Add(2 * time.Minute)

	// Force a sweep on the next call.
	l.randFloat = func() float64 { return 0.0 }
	l.Allow("active")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.requests["idle"]; ok {
		t.Fatal("identifier with no valid timestamps must be swept")
	}
	if _, ok := l.requests["active"]; !ok {
		t.Fatal("active identifier must survive the sweep")
	}
}
