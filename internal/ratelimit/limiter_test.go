package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func clientGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`10\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// =============================================================================
// Property: requests within the burst succeed, the next one is refused
// =============================================================================

func testRateLimiter_BurstThenRefuse(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	client := clientGenerator().Draw(t, "client")
	for i := 0; i < burst; i++ {
		if !rl.Allow(client) {
			t.Fatalf("request %d of burst %d refused", i+1, burst)
		}
	}
	if rl.Allow(client) {
		t.Fatalf("request beyond burst %d allowed", burst)
	}
}

func TestRateLimiter_BurstThenRefuse(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRateLimiter_BurstThenRefuse)
}

// =============================================================================
// Property: clients are isolated
// =============================================================================

func testRateLimiter_ClientsIsolated(t *rapid.T) {
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	a := clientGenerator().Draw(t, "a")
	b := clientGenerator().Filter(func(s string) bool { return s != a }).Draw(t, "b")

	if !rl.Allow(a) {
		t.Fatal("first request from a refused")
	}
	if rl.Allow(a) {
		t.Fatal("a should be exhausted")
	}
	if !rl.Allow(b) {
		t.Fatal("b must not share a's budget")
	}
	if rl.Len() != 2 {
		t.Fatalf("expected 2 limiters, got %d", rl.Len())
	}
}

func TestRateLimiter_ClientsIsolated(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRateLimiter_ClientsIsolated)
}

func TestRateLimiter_GetLimiterIsStable(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(DefaultConfig)
	defer rl.Stop()

	if rl.GetLimiter("10.0.0.1") != rl.GetLimiter("10.0.0.1") {
		t.Fatal("same client should get the same limiter")
	}
}

func TestRateLimiter_CleanupRemovesIdle(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastUsed = time.Now().Add(-2 * time.Hour)
	rl.mu.Unlock()
	rl.Allow("10.0.0.2")

	rl.Cleanup()
	if rl.Len() != 1 {
		t.Fatalf("expected idle limiter removed, %d left", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	const burst = 100
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 4*burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("10.0.0.1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := allowed.Load(); got != burst {
		t.Fatalf("expected exactly %d allowed, got %d", burst, got)
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	var calls int
	handler := RateLimitMiddleware(rl, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/mcp", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := do(http.MethodPost)
	if first.Code != http.StatusOK || first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first: code=%d remaining=%q", first.Code, first.Header().Get("X-RateLimit-Remaining"))
	}
	do(http.MethodPost)
	third := do(http.MethodPost)
	if third.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", third.Code)
	}
	if third.Header().Get("Retry-After") != strconv.Itoa(DefaultRetryAfterSeconds) {
		t.Fatalf("unexpected Retry-After: %q", third.Header().Get("Retry-After"))
	}
	if preflight := do(http.MethodOptions); preflight.Code != http.StatusOK {
		t.Fatalf("preflight should bypass the limiter, got %d", preflight.Code)
	}
	if calls != 3 {
		t.Fatalf("expected 3 delegate calls, got %d", calls)
	}
}

func TestClientKey(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.RemoteAddr = "192.0.2.7:4100"
	if got := ClientKey(req); got != "192.0.2.7" {
		t.Fatalf("remote host: got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := ClientKey(req); got != "203.0.113.9" {
		t.Fatalf("forwarded: got %q", got)
	}
}
