package handlers

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter()
	ip := "127.0.0.1"

	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed initially")
	}

	for i := 0; i < maxAttempts-1; i++ {
		limiter.RecordFailure(ip)
	}
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed after %d failures", maxAttempts-1)
	}

	limiter.RecordFailure(ip)
	if limiter.Allow(ip) {
		t.Errorf("Expected IP to be blocked after %d failures", maxAttempts)
	}
	if !limiter.Allow("127.0.0.2") {
		t.Errorf("Expected other IPs to be unaffected")
	}

	limiter.Reset(ip)
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed after reset")
	}
}

func TestRateLimiterBlockExpires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	limiter := newRateLimiter()
	limiter.now = clock.now
	ip := "10.0.0.9"

	for i := 0; i < maxAttempts; i++ {
		limiter.RecordFailure(ip)
	}
	if limiter.Allow(ip) {
		t.Fatalf("Expected IP to be blocked")
	}

	clock.advance(blockDuration - time.Second)
	if limiter.Allow(ip) {
		t.Errorf("Expected IP to stay blocked until the block expires")
	}

	clock.advance(time.Second)
	if !limiter.Allow(ip) {
		t.Errorf("Expected IP to be allowed once the block expired")
	}

	// The counter starts over after an expired block.
	limiter.RecordFailure(ip)
	if !limiter.Allow(ip) {
		t.Errorf("Expected a single new failure not to block")
	}
}

func TestRateLimiterWindowRestarts(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	limiter := newRateLimiter()
	limiter.now = clock.now
	ip := "10.0.0.10"

	for i := 0; i < maxAttempts-1; i++ {
		limiter.RecordFailure(ip)
	}
	clock.advance(windowDuration + time.Minute)
	limiter.RecordFailure(ip)

	if !limiter.Allow(ip) {
		t.Errorf("Expected failures outside the window not to accumulate")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	limiter := newRateLimiter()
	limiter.now = clock.now

	limiter.RecordFailure("10.1.1.1")
	clock.advance(windowDuration + time.Minute)
	limiter.prune(clock.now())

	if len(limiter.attempts) != 0 {
		t.Errorf("Expected stale attempts to be pruned, got %d", len(limiter.attempts))
	}
}

func TestRateLimiterParallel(t *testing.T) {
	limiter := newRateLimiter()
	ip := "10.0.0.1"

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.RecordFailure(ip)
		}()
	}
	wg.Wait()

	if limiter.Allow(ip) {
		t.Errorf("Expected IP to be blocked after concurrent failures")
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.7:5123"
	if ip := getClientIP(req); ip != "192.0.2.7" {
		t.Errorf("Expected 192.0.2.7, got %s", ip)
	}

	req.RemoteAddr = "unix"
	if ip := getClientIP(req); ip != "unix" {
		t.Errorf("Expected raw RemoteAddr fallback, got %s", ip)
	}
}
