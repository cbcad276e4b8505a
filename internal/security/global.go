package security

import (
	"net/http"

	"golang.org/x/time/rate"

	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
)

// errServiceBusy is written when the service-wide ceiling is hit.
var errServiceBusy = inspectorerrors.ErrRateLimited.WithMessage("Inspector is at capacity")

// GlobalRateLimiter caps the total rate of inspector operations across all
// clients, bounding how much outbound agent traffic the service generates.
type GlobalRateLimiter struct {
	limiter *rate.Limiter
}

// NewGlobalRateLimiter creates a global rate limiter.
// rpm is requests per minute; internally converted to per-second.
func NewGlobalRateLimiter(rpm int) *GlobalRateLimiter {
	burst := rpm / 60
	if burst < 1 {
		burst = 1
	}
	return &GlobalRateLimiter{
		limiter: rate.NewLimiter(perSecond(rpm), burst),
	}
}

// Process returns an http.Handler that enforces the global rate limit.
func (g *GlobalRateLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			inspectorerrors.WriteHTTPError(w, errServiceBusy)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name for logging and debugging.
func (g *GlobalRateLimiter) Name() string {
	return "global_rate_limiter"
}
