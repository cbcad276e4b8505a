package config

import "reflect"

// Change describes a single configuration field that differs between two configs.
type Change struct {
	Field      string // dot-separated field path (e.g., "cors.allowed_origins")
	OldValue   any
	NewValue   any
	Reloadable bool // whether this change can be applied without restart
}

// Diff compares two Config values and returns a list of changes.
// Each change is annotated with whether it is reloadable at runtime.
func Diff(old, new *Config) []Change {
	var changes []Change

	// ── Non-reloadable: listen ──
	diffField(&changes, "listen.host", old.Listen.Host, new.Listen.Host, false)
	diffField(&changes, "listen.port", old.Listen.Port, new.Listen.Port, false)
	diffField(&changes, "listen.max_connections", old.Listen.MaxConnections, new.Listen.MaxConnections, false)
	diffField(&changes, "listen.global_rate_limit", old.Listen.GlobalRateLimit, new.Listen.GlobalRateLimit, false)
	diffField(&changes, "listen.trusted_proxies", old.Listen.TrustedProxies, new.Listen.TrustedProxies, false)

	// ── Non-reloadable: inspector ──
	// The service and its backend are built once at startup.
	diffField(&changes, "inspector.timeout", old.Inspector.Timeout.Duration, new.Inspector.Timeout.Duration, false)
	diffField(&changes, "inspector.dns_timeout", old.Inspector.DNSTimeout.Duration, new.Inspector.DNSTimeout.Duration, false)
	diffField(&changes, "inspector.client", old.Inspector.Client, new.Inspector.Client, false)
	diffField(&changes, "inspector.card_paths", old.Inspector.CardPaths, new.Inspector.CardPaths, false)
	diffField(&changes, "inspector.max_card_size", old.Inspector.MaxCardSize, new.Inspector.MaxCardSize, false)
	diffField(&changes, "inspector.max_event_size", old.Inspector.MaxEventSize, new.Inspector.MaxEventSize, false)
	diffField(&changes, "inspector.max_message_size", old.Inspector.MaxMessageSize, new.Inspector.MaxMessageSize, false)
	diffField(&changes, "security.blocked_ranges", old.Security.BlockedRanges, new.Security.BlockedRanges, false)
	diffField(&changes, "security.card_signature.require", old.Security.CardSignature.Require, new.Security.CardSignature.Require, false)
	diffField(&changes, "security.card_signature.trusted_jwks_urls", old.Security.CardSignature.TrustedJWKSURLs, new.Security.CardSignature.TrustedJWKSURLs, false)
	diffField(&changes, "security.card_signature.cache_ttl", old.Security.CardSignature.CacheTTL.Duration, new.Security.CardSignature.CacheTTL.Duration, false)

	// ── Reloadable: security.rate_limit ──
	diffField(&changes, "security.rate_limit.enabled", old.Security.RateLimit.Enabled, new.Security.RateLimit.Enabled, true)
	diffField(&changes, "security.rate_limit.per_ip", old.Security.RateLimit.PerIP, new.Security.RateLimit.PerIP, true)
	diffField(&changes, "security.rate_limit.burst", old.Security.RateLimit.Burst, new.Security.RateLimit.Burst, true)
	diffField(&changes, "security.rate_limit.cleanup_interval", old.Security.RateLimit.CleanupInterval.Duration, new.Security.RateLimit.CleanupInterval.Duration, false)

	// ── Reloadable: cors ──
	diffField(&changes, "cors.allowed_origins", old.CORS.AllowedOrigins, new.CORS.AllowedOrigins, true)
	diffField(&changes, "cors.allowed_methods", old.CORS.AllowedMethods, new.CORS.AllowedMethods, true)
	diffField(&changes, "cors.allow_credentials", old.CORS.AllowCredentials, new.CORS.AllowCredentials, true)

	// ── Reloadable: logging ──
	diffField(&changes, "logging.level", old.Logging.Level, new.Logging.Level, true)
	diffField(&changes, "logging.format", old.Logging.Format, new.Logging.Format, false)
	diffField(&changes, "logging.output", old.Logging.Output, new.Logging.Output, false)
	diffField(&changes, "logging.audit.sampling_rate", old.Logging.Audit.SamplingRate, new.Logging.Audit.SamplingRate, true)
	diffField(&changes, "logging.audit.error_sampling_rate", old.Logging.Audit.ErrorSamplingRate, new.Logging.Audit.ErrorSamplingRate, true)

	// ── Non-reloadable: health, tracing, shutdown, reload ──
	diffField(&changes, "health.liveness_path", old.Health.LivenessPath, new.Health.LivenessPath, false)
	diffField(&changes, "health.readiness_path", old.Health.ReadinessPath, new.Health.ReadinessPath, false)
	diffField(&changes, "tracing.enabled", old.Tracing.Enabled, new.Tracing.Enabled, false)
	diffField(&changes, "tracing.exporter", old.Tracing.Exporter, new.Tracing.Exporter, false)
	diffField(&changes, "tracing.endpoint", old.Tracing.Endpoint, new.Tracing.Endpoint, false)
	diffField(&changes, "tracing.sampling_rate", old.Tracing.SamplingRate, new.Tracing.SamplingRate, false)
	diffField(&changes, "shutdown.timeout", old.Shutdown.Timeout.Duration, new.Shutdown.Timeout.Duration, false)
	diffField(&changes, "reload.debounce", old.Reload.Debounce.Duration, new.Reload.Debounce.Duration, false)

	return changes
}

// diffField appends a Change if old != new using reflect.DeepEqual for comparison.
// Nil and empty slices compare equal.
func diffField(changes *[]Change, field string, oldVal, newVal any, reloadable bool) {
	if emptySlice(oldVal) && emptySlice(newVal) {
		return
	}
	if !reflect.DeepEqual(oldVal, newVal) {
		*changes = append(*changes, Change{
			Field:      field,
			OldValue:   oldVal,
			NewValue:   newVal,
			Reloadable: reloadable,
		})
	}
}

func emptySlice(v any) bool {
	s, ok := v.([]string)
	return ok && len(s) == 0
}
