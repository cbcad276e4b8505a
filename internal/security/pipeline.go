// Package security implements the inspector's defensive layers: the URL
// admission guard that gates every outbound agent call, and the
// middleware pipeline protecting the inspector's own HTTP API.
package security

import (
	"net/http"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
)

// Middleware is a security processing step in the pipeline.
type Middleware interface {
	Process(next http.Handler) http.Handler
	Name() string
}

// PipelineConfig holds what the API middleware chain needs.
type PipelineConfig struct {
	RateLimit      config.RateLimitConfig
	TrustedProxies []string
	MaxBodySize    int64
	OnRateLimited  func(ip string)
	// GlobalRateLimit is a service-wide ceiling in requests per minute. Zero disables it.
	GlobalRateLimit int
}

// Pipeline is the ordered API middleware chain. The rate limiter is kept
// so callers can subscribe it to config reloads and stop it on shutdown.
type Pipeline struct {
	Middlewares []Middleware
	RateLimiter *IPRateLimiter
}

// BuildPipeline constructs the middleware chain: the optional global
// ceiling, per-IP rate limiting, then a request body size cap. The per-IP
// limiter is always installed so that enabling it through a reload takes
// effect without restart.
func BuildPipeline(cfg PipelineConfig) *Pipeline {
	var mws []Middleware
	if cfg.GlobalRateLimit > 0 {
		mws = append(mws, NewGlobalRateLimiter(cfg.GlobalRateLimit))
	}
	rl := NewIPRateLimiter(cfg.RateLimit, cfg.TrustedProxies, cfg.OnRateLimited)
	mws = append(mws, rl, NewBodyLimiter(cfg.MaxBodySize))
	return &Pipeline{
		Middlewares: mws,
		RateLimiter: rl,
	}
}

// Wrap applies all middleware in order so the first one executes first.
func (p *Pipeline) Wrap(handler http.Handler) http.Handler {
	for i := len(p.Middlewares) - 1; i >= 0; i-- {
		handler = p.Middlewares[i].Process(handler)
	}
	return handler
}

// Stop releases background resources.
func (p *Pipeline) Stop() {
	p.RateLimiter.Stop()
}

// BodyLimiter rejects requests whose declared body exceeds a limit and
// caps the readable body of the rest.
type BodyLimiter struct {
	max int64
}

// NewBodyLimiter creates a BodyLimiter. A non-positive max disables it.
func NewBodyLimiter(max int64) *BodyLimiter {
	return &BodyLimiter{max: max}
}

// Process returns an http.Handler enforcing the body limit.
func (b *BodyLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.max {
			inspectorerrors.WriteHTTPError(w, &inspectorerrors.InspectorError{
				Code:    http.StatusRequestEntityTooLarge,
				Message: "Request body too large",
				Hint:    "Raise inspector.max_message_size in inspector.yaml",
			})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.max)
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name.
func (b *BodyLimiter) Name() string {
	return "body_limiter"
}
