package config

import "time"

// DefaultCardPaths are tried in order when discovering an Agent Card.
// The second entry is the well-known path used before protocol 0.3.
var DefaultCardPaths = []string{"/.well-known/agent-card.json", "/.well-known/agent.json"}

// ApplyDefaults fills zero-valued fields with defaults.
// It is called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	// ── Listen ──
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8000
	}
	if cfg.Listen.MaxConnections == 0 {
		cfg.Listen.MaxConnections = 1000
	}
	if cfg.Listen.TrustedProxies == nil {
		cfg.Listen.TrustedProxies = []string{}
	}

	// ── Inspector ──
	applyInspectorDefaults(&cfg.Inspector)

	// ── Security ──
	applyRateLimitDefaults(&cfg.Security.RateLimit)
	if cfg.Security.CardSignature.CacheTTL.Duration == 0 {
		cfg.Security.CardSignature.CacheTTL.Duration = time.Hour
	}

	// ── CORS ──
	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:3001",
		}
		cfg.CORS.AllowCredentials = true
	}
	if len(cfg.CORS.AllowedMethods) == 0 {
		cfg.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE"}
	}

	// ── Health ──
	if cfg.Health.LivenessPath == "" {
		cfg.Health.LivenessPath = "/healthz"
	}
	if cfg.Health.ReadinessPath == "" {
		cfg.Health.ReadinessPath = "/readyz"
	}

	// ── Logging ──
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Audit.SamplingRate == 0 {
		cfg.Logging.Audit.SamplingRate = 1.0
	}
	if cfg.Logging.Audit.ErrorSamplingRate == 0 {
		cfg.Logging.Audit.ErrorSamplingRate = 1.0
	}

	// ── Tracing ──
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "otlp"
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "a2a-inspector"
	}

	// ── Shutdown ──
	if cfg.Shutdown.Timeout.Duration == 0 {
		cfg.Shutdown.Timeout.Duration = 30 * time.Second
	}

	// ── Reload ──
	if cfg.Reload.Debounce.Duration == 0 {
		cfg.Reload.Debounce.Duration = 2 * time.Second
	}
}

func applyInspectorDefaults(in *InspectorConfig) {
	if in.Timeout.Duration == 0 {
		in.Timeout.Duration = 180 * time.Second
	}
	if in.DNSTimeout.Duration == 0 {
		in.DNSTimeout.Duration = 5 * time.Second
	}
	if in.Client == "" {
		in.Client = "auto"
	}
	if len(in.CardPaths) == 0 {
		in.CardPaths = append([]string(nil), DefaultCardPaths...)
	}
	if in.MaxCardSize == 0 {
		in.MaxCardSize = 1 << 20 // 1MB
	}
	if in.MaxEventSize == 0 {
		in.MaxEventSize = 1 << 20
	}
	if in.MaxMessageSize == 0 {
		in.MaxMessageSize = 64 << 10
	}
}

func applyRateLimitDefaults(rl *RateLimitConfig) {
	// enabled defaults to false (zero value); the generated profile turns it on.
	if rl.PerIP == 0 {
		rl.PerIP = 60
	}
	if rl.Burst == 0 {
		rl.Burst = 10
	}
	if rl.CleanupInterval.Duration == 0 {
		rl.CleanupInterval.Duration = 5 * time.Minute
	}
}
