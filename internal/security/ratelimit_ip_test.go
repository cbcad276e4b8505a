package security

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	"golang.org/x/time/rate"
)

func rateLimitConfig(perIP, burst int, cleanup time.Duration) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:         true,
		PerIP:           perIP,
		Burst:           burst,
		CleanupInterval: config.Duration{Duration: cleanup},
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr, xff string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/inspector/load", nil)
	req.RemoteAddr = remoteAddr
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestIPRateLimiterWithinLimit(t *testing.T) {
	rl := NewIPRateLimiter(rateLimitConfig(6000, 10, 5*time.Minute), nil, nil)
	defer rl.Stop()
	handler := rl.Process(okHandler())

	for i := 0; i < 10; i++ {
		if code := hit(handler, "192.168.1.1:12345", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
}

func TestIPRateLimiterExceeded(t *testing.T) {
	var rejected atomic.Int32
	rl := NewIPRateLimiter(rateLimitConfig(60, 2, 5*time.Minute), nil, func(string) { rejected.Add(1) })
	defer rl.Stop()
	handler := rl.Process(okHandler())

	for i := 0; i < 2; i++ {
		if code := hit(handler, "192.168.1.1:12345", ""); code != http.StatusOK {
			t.Fatalf("burst request %d: expected 200, got %d", i, code)
		}
	}
	if code := hit(handler, "192.168.1.1:12345", ""); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	if rejected.Load() != 1 {
		t.Errorf("onReject called %d times, want 1", rejected.Load())
	}
	// independent bucket per IP
	if code := hit(handler, "192.168.1.2:12345", ""); code != http.StatusOK {
		t.Errorf("second IP: expected 200, got %d", code)
	}
}

func TestIPRateLimiterDisabled(t *testing.T) {
	cfg := rateLimitConfig(60, 1, 5*time.Minute)
	cfg.Enabled = false
	rl := NewIPRateLimiter(cfg, nil, nil)
	defer rl.Stop()
	handler := rl.Process(okHandler())

	for i := 0; i < 5; i++ {
		if code := hit(handler, "192.168.1.1:1", ""); code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with limiter disabled, got %d", i, code)
		}
	}
}

func TestIPRateLimiterUsesClientIP(t *testing.T) {
	rl := NewIPRateLimiter(rateLimitConfig(60, 1, 5*time.Minute), []string{"10.0.0.0/8"}, nil)
	defer rl.Stop()
	handler := rl.Process(okHandler())

	if code := hit(handler, "10.0.0.1:8080", "203.0.113.50, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	// same real client through another proxy
	if code := hit(handler, "10.0.0.2:8080", "203.0.113.50, 10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("second request from same real IP: expected 429, got %d", code)
	}
}

func TestIPRateLimiterReload(t *testing.T) {
	rl := NewIPRateLimiter(rateLimitConfig(60, 1, 5*time.Minute), nil, nil)
	defer rl.Stop()
	handler := rl.Process(okHandler())

	hit(handler, "192.0.2.1:1", "")
	if code := hit(handler, "192.0.2.1:1", ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before reload, got %d", code)
	}

	newCfg := config.Default()
	newCfg.Security.RateLimit.Enabled = false
	if err := rl.OnConfigReload(newCfg); err != nil {
		t.Fatalf("OnConfigReload: %v", err)
	}
	if code := hit(handler, "192.0.2.1:1", ""); code != http.StatusOK {
		t.Errorf("expected 200 after disabling, got %d", code)
	}

	newCfg.Security.RateLimit.Enabled = true
	newCfg.Security.RateLimit.Burst = 50
	newCfg.Security.RateLimit.PerIP = 6000
	if err := rl.OnConfigReload(newCfg); err != nil {
		t.Fatalf("OnConfigReload: %v", err)
	}
	if b := rl.getLimiter("192.0.2.1").Burst(); b != 50 {
		t.Errorf("existing bucket burst = %d, want 50", b)
	}
}

func TestIPRateLimiterName(t *testing.T) {
	rl := NewIPRateLimiter(rateLimitConfig(100, 10, 5*time.Minute), nil, nil)
	defer rl.Stop()
	if rl.Name() != "ip_rate_limiter" {
		t.Errorf("expected name 'ip_rate_limiter', got %q", rl.Name())
	}
}

func TestIPRateLimiterGetLimiterConcurrentSameIP(t *testing.T) {
	rl := NewIPRateLimiter(rateLimitConfig(600, 10, 5*time.Minute), nil, nil)
	defer rl.Stop()

	const goroutines = 20
	results := make(chan *rate.Limiter, goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			results <- rl.getLimiter("192.0.2.1")
		}()
	}

	var first *rate.Limiter
	for i := 0; i < goroutines; i++ {
		l := <-results
		if first == nil {
			first = l
		}
		if l != first {
			t.Error("concurrent getLimiter calls returned different limiter instances for same IP")
		}
	}
}

func TestIPRateLimiterCleanupRemovesExpiredEntries(t *testing.T) {
	const cleanupInterval = 20 * time.Millisecond
	rl := NewIPRateLimiter(rateLimitConfig(600, 10, cleanupInterval), nil, nil)
	defer rl.Stop()

	rl.getLimiter("10.1.2.3")
	if _, ok := rl.limiters.Load("10.1.2.3"); !ok {
		t.Fatal("expected entry to exist before cleanup")
	}

	time.Sleep(cleanupInterval * 4)

	if _, ok := rl.limiters.Load("10.1.2.3"); ok {
		t.Error("expected entry to be cleaned up after expiry")
	}
}

func TestIPRateLimiterStopIsIdempotent(t *testing.T) {
	rl := NewIPRateLimiter(rateLimitConfig(600, 5, 10*time.Millisecond), nil, nil)
	rl.Stop()
	rl.Stop()
}
