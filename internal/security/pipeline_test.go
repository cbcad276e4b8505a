package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBuildPipelineOrder(t *testing.T) {
	p := BuildPipeline(PipelineConfig{
		RateLimit:   rateLimitConfig(60, 5, time.Minute),
		MaxBodySize: 1024,
	})
	defer p.Stop()

	want := []string{"ip_rate_limiter", "body_limiter"}
	if len(p.Middlewares) != len(want) {
		t.Fatalf("got %d middlewares, want %d", len(p.Middlewares), len(want))
	}
	for i, mw := range p.Middlewares {
		if mw.Name() != want[i] {
			t.Errorf("middleware[%d] = %q, want %q", i, mw.Name(), want[i])
		}
	}
	if p.RateLimiter == nil {
		t.Error("RateLimiter should be exposed for reload subscription")
	}
}

func TestPipelineWrap_RateLimitRunsFirst(t *testing.T) {
	p := BuildPipeline(PipelineConfig{
		RateLimit:   rateLimitConfig(60, 1, time.Minute),
		MaxBodySize: 8,
	})
	defer p.Stop()

	calls := 0
	h := p.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	if code := hit(h, "198.51.100.1:1", ""); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := hit(h, "198.51.100.1:1", ""); code != http.StatusTooManyRequests {
		t.Errorf("second request: %d, want 429", code)
	}
	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestBodyLimiter(t *testing.T) {
	var readErr error
	h := NewBodyLimiter(8).Process(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("declared length too large", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"url":"https://x"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d, want 413", rec.Code)
		}
	})

	t.Run("undeclared length capped", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader(`{"url":"https://x"}`)))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if readErr == nil {
			t.Error("reading past the cap should fail")
		}
	})

	t.Run("small body passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || readErr != nil {
			t.Errorf("status = %d, err = %v", rec.Code, readErr)
		}
	})
}

func TestBuildPipeline_GlobalLimiterFirst(t *testing.T) {
	p := BuildPipeline(PipelineConfig{
		RateLimit:       rateLimitConfig(60, 5, time.Minute),
		MaxBodySize:     1024,
		GlobalRateLimit: 120,
	})
	defer p.Stop()

	want := []string{"global_rate_limiter", "ip_rate_limiter", "body_limiter"}
	if len(p.Middlewares) != len(want) {
		t.Fatalf("got %d middlewares, want %d", len(p.Middlewares), len(want))
	}
	for i, mw := range p.Middlewares {
		if mw.Name() != want[i] {
			t.Errorf("middleware[%d] = %q, want %q", i, mw.Name(), want[i])
		}
	}
}

func TestGlobalRateLimiter_SharedAcrossClients(t *testing.T) {
	h := NewGlobalRateLimiter(60).Process(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	if code := hit(h, "198.51.100.1:1", ""); code != http.StatusOK {
		t.Fatalf("first client: %d", code)
	}
	if code := hit(h, "198.51.100.2:1", ""); code != http.StatusTooManyRequests {
		t.Errorf("second client: %d, want 429", code)
	}
}
