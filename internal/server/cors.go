package server

import (
	"net/http"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/hybroai/a2a-agent-inspector/internal/config"
)

// corsPolicy is the browser origin allow-list. Origins are reloadable.
type corsPolicy struct {
	cfg atomic.Pointer[config.CORSConfig]
}

func newCORSPolicy(cfg config.CORSConfig) *corsPolicy {
	p := &corsPolicy{}
	p.cfg.Store(&cfg)
	return p
}

// OnConfigReload swaps in the new CORS section.
func (p *corsPolicy) OnConfigReload(newCfg *config.Config) error {
	c := newCfg.CORS
	p.cfg.Store(&c)
	return nil
}

func (p *corsPolicy) allowed(origin string) bool {
	origins := p.cfg.Load().AllowedOrigins
	return slices.Contains(origins, "*") || slices.Contains(origins, origin)
}

// Middleware sets CORS headers for allowed origins and answers preflight
// requests. Requests without an Origin header pass through untouched.
func (p *corsPolicy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		if !p.allowed(origin) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		cfg := p.cfg.Load()
		w.Header().Set("Access-Control-Allow-Origin", origin)
		if cfg.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
