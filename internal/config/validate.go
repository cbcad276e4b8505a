package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors. It collects ALL errors
// rather than stopping at the first one, returning them as a joined message.
func Validate(cfg *Config) error {
	var errs []string

	// ── Listen ──
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535 (got %d)", cfg.Listen.Port))
	}
	if cfg.Listen.MaxConnections < 1 {
		errs = append(errs, fmt.Sprintf("listen.max_connections must be positive (got %d)", cfg.Listen.MaxConnections))
	}
	if cfg.Listen.GlobalRateLimit < 0 {
		errs = append(errs, fmt.Sprintf("listen.global_rate_limit must not be negative (got %d)", cfg.Listen.GlobalRateLimit))
	}
	for i, p := range cfg.Listen.TrustedProxies {
		if !isIPOrCIDR(p) {
			errs = append(errs, fmt.Sprintf("listen.trusted_proxies[%d]: %q is not an IP or CIDR", i, p))
		}
	}

	// ── Inspector ──
	if cfg.Inspector.Timeout.Duration <= 0 {
		errs = append(errs, "inspector.timeout must be positive")
	}
	if cfg.Inspector.DNSTimeout.Duration <= 0 {
		errs = append(errs, "inspector.dns_timeout must be positive")
	}
	if !isValidClientGeneration(cfg.Inspector.Client) {
		errs = append(errs, fmt.Sprintf("inspector.client must be one of: auto, sdk, legacy (got %q)", cfg.Inspector.Client))
	}
	for i, p := range cfg.Inspector.CardPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Sprintf("inspector.card_paths[%d]: must start with '/' (got %q)", i, p))
		}
	}
	if cfg.Inspector.MaxCardSize < 1 {
		errs = append(errs, fmt.Sprintf("inspector.max_card_size must be positive (got %d)", cfg.Inspector.MaxCardSize))
	}
	if cfg.Inspector.MaxEventSize < 1 {
		errs = append(errs, fmt.Sprintf("inspector.max_event_size must be positive (got %d)", cfg.Inspector.MaxEventSize))
	}
	if cfg.Inspector.MaxMessageSize < 1 {
		errs = append(errs, fmt.Sprintf("inspector.max_message_size must be positive (got %d)", cfg.Inspector.MaxMessageSize))
	}

	// ── Security ──
	for i, r := range cfg.Security.BlockedRanges {
		if _, err := netip.ParsePrefix(r); err != nil {
			errs = append(errs, fmt.Sprintf("security.blocked_ranges[%d]: %v", i, err))
		}
	}
	if cfg.Security.RateLimit.Enabled {
		if cfg.Security.RateLimit.PerIP < 1 {
			errs = append(errs, fmt.Sprintf("security.rate_limit.per_ip must be positive (got %d)", cfg.Security.RateLimit.PerIP))
		}
		if cfg.Security.RateLimit.Burst < 1 {
			errs = append(errs, fmt.Sprintf("security.rate_limit.burst must be positive (got %d)", cfg.Security.RateLimit.Burst))
		}
	}
	for i, u := range cfg.Security.CardSignature.TrustedJWKSURLs {
		if parsed, err := url.Parse(u); err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
			errs = append(errs, fmt.Sprintf("security.card_signature.trusted_jwks_urls[%d]: must be an absolute http(s) URL (got %q)", i, u))
		}
	}
	if cfg.Security.CardSignature.Require && len(cfg.Security.CardSignature.TrustedJWKSURLs) == 0 {
		errs = append(errs, "security.card_signature.require needs at least one trusted_jwks_urls entry")
	}

	// ── CORS ──
	for i, o := range cfg.CORS.AllowedOrigins {
		if o == "*" {
			if cfg.CORS.AllowCredentials {
				errs = append(errs, "cors.allowed_origins: '*' cannot be combined with allow_credentials")
			}
			continue
		}
		if parsed, err := url.Parse(o); err != nil || parsed.Host == "" {
			errs = append(errs, fmt.Sprintf("cors.allowed_origins[%d]: %q is not an origin", i, o))
		}
	}

	// ── Logging ──
	if !isValidLogLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be one of: json, text (got %q)", cfg.Logging.Format))
	}
	if cfg.Logging.Audit.SamplingRate < 0 || cfg.Logging.Audit.SamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.audit.sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Audit.SamplingRate))
	}
	if cfg.Logging.Audit.ErrorSamplingRate < 0 || cfg.Logging.Audit.ErrorSamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("logging.audit.error_sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Logging.Audit.ErrorSamplingRate))
	}

	// ── Tracing ──
	if cfg.Tracing.Exporter != "otlp" && cfg.Tracing.Exporter != "stdout" {
		errs = append(errs, fmt.Sprintf("tracing.exporter must be one of: otlp, stdout (got %q)", cfg.Tracing.Exporter))
	}
	if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1.0 {
		errs = append(errs, fmt.Sprintf("tracing.sampling_rate must be between 0.0 and 1.0 (got %f)", cfg.Tracing.SamplingRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidClientGeneration(g string) bool {
	switch g {
	case "auto", "sdk", "legacy":
		return true
	}
	return false
}

func isValidLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isIPOrCIDR(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}
