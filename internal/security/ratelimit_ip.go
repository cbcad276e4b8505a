package security

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
	inspectorerrors "github.com/hybroai/a2a-agent-inspector/internal/errors"
	"golang.org/x/time/rate"
)

// ipEntry holds a rate limiter and its last-used timestamp for cleanup.
type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // UnixNano
}

// limits is the reloadable part of the limiter configuration.
type limits struct {
	enabled bool
	perIP   int // requests per minute
	burst   int
}

// IPRateLimiter enforces per-client-IP rate limiting of the inspector API
// using one token bucket per IP. Limits can be changed at runtime via
// OnConfigReload; existing buckets are adjusted in place.
type IPRateLimiter struct {
	limiters        sync.Map // IP string → *ipEntry
	limits          atomic.Pointer[limits]
	cleanupInterval time.Duration
	trustedProxies  []string
	onReject        func(ip string)

	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewIPRateLimiter creates a per-IP rate limiter from the rate_limit config.
// onReject, if non-nil, is called for each rejected request.
func NewIPRateLimiter(cfg config.RateLimitConfig, trustedProxies []string, onReject func(ip string)) *IPRateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &IPRateLimiter{
		cleanupInterval: cfg.CleanupInterval.Duration,
		trustedProxies:  trustedProxies,
		onReject:        onReject,
		cancel:          cancel,
	}
	rl.limits.Store(&limits{enabled: cfg.Enabled, perIP: cfg.PerIP, burst: cfg.Burst})
	go rl.cleanup(ctx)
	return rl
}

// Process returns an http.Handler that enforces per-IP rate limiting.
func (rl *IPRateLimiter) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limits.Load().enabled {
			next.ServeHTTP(w, r)
			return
		}
		ip := TrustedClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), rl.trustedProxies)
		if !rl.getLimiter(ip).Allow() {
			if rl.onReject != nil {
				rl.onReject(ip)
			}
			w.Header().Set("Retry-After", "60")
			inspectorerrors.WriteHTTPError(w, inspectorerrors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Name returns the middleware name.
func (rl *IPRateLimiter) Name() string {
	return "ip_rate_limiter"
}

// OnConfigReload applies new rate limit settings.
func (rl *IPRateLimiter) OnConfigReload(newCfg *config.Config) error {
	rc := newCfg.Security.RateLimit
	l := &limits{enabled: rc.Enabled, perIP: rc.PerIP, burst: rc.Burst}
	rl.limits.Store(l)

	rl.limiters.Range(func(_, value any) bool {
		e := value.(*ipEntry)
		e.limiter.SetLimit(perSecond(l.perIP))
		e.limiter.SetBurst(l.burst)
		return true
	})
	return nil
}

// Stop stops the cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(rl.cancel)
}

// getLimiter returns the rate limiter for the given IP, creating one if needed.
func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := rl.limiters.Load(ip); ok {
		entry := v.(*ipEntry)
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	l := rl.limits.Load()
	entry := &ipEntry{limiter: rate.NewLimiter(perSecond(l.perIP), l.burst)}
	entry.lastSeen.Store(now)

	actual, _ := rl.limiters.LoadOrStore(ip, entry)
	existing := actual.(*ipEntry)
	existing.lastSeen.Store(now)
	return existing.limiter
}

// cleanup periodically removes inactive IP entries.
func (rl *IPRateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.cleanupInterval).UnixNano()
			rl.limiters.Range(func(key, value any) bool {
				if value.(*ipEntry).lastSeen.Load() < cutoff {
					rl.limiters.Delete(key)
				}
				return true
			})
		}
	}
}

func perSecond(perMinute int) rate.Limit {
	return rate.Limit(float64(perMinute) / 60.0)
}
