// Package config handles YAML configuration parsing, defaults, and validation
// for the a2a-inspector service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a2a-inspector.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Inspector InspectorConfig `yaml:"inspector"`
	Security  SecurityConfig  `yaml:"security"`
	CORS      CORSConfig      `yaml:"cors"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
	Reload    ReloadConfig    `yaml:"reload"`
}

// ListenConfig defines the listener address and connection limits.
type ListenConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxConnections  int      `yaml:"max_connections"`
	GlobalRateLimit int      `yaml:"global_rate_limit"` // requests per minute across all clients, 0 = off
	TrustedProxies  []string `yaml:"trusted_proxies"`
}

// InspectorConfig controls how remote agents are contacted.
type InspectorConfig struct {
	Timeout        Duration `yaml:"timeout"`
	DNSTimeout     Duration `yaml:"dns_timeout"`
	Client         string   `yaml:"client"` // "auto", "sdk", "legacy"
	CardPaths      []string `yaml:"card_paths"`
	MaxCardSize    int      `yaml:"max_card_size"`
	MaxEventSize   int      `yaml:"max_event_size"`
	MaxMessageSize int      `yaml:"max_message_size"`
}

// SecurityConfig groups the admission guard, rate limiting, and card signature settings.
type SecurityConfig struct {
	BlockedRanges []string            `yaml:"blocked_ranges"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	CardSignature CardSignatureConfig `yaml:"card_signature"`
}

// RateLimitConfig defines per-IP rate limiting of the inspector API.
type RateLimitConfig struct {
	Enabled         bool     `yaml:"enabled"`
	PerIP           int      `yaml:"per_ip"` // requests per minute
	Burst           int      `yaml:"burst"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// CardSignatureConfig controls JWS signature verification for Agent Cards.
type CardSignatureConfig struct {
	Require         bool     `yaml:"require"`
	TrustedJWKSURLs []string `yaml:"trusted_jwks_urls"`
	CacheTTL        Duration `yaml:"cache_ttl"`
}

// CORSConfig is the browser origin allow-list for the inspector API.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// HealthConfig defines health check endpoint paths.
type HealthConfig struct {
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

// LoggingConfig defines log output format and audit sampling.
type LoggingConfig struct {
	Level  string      `yaml:"level"`
	Format string      `yaml:"format"`
	Output string      `yaml:"output"`
	Audit  AuditConfig `yaml:"audit"`
}

// AuditConfig controls OTel-compatible audit log sampling rates.
type AuditConfig struct {
	SamplingRate      float64 `yaml:"sampling_rate"`
	ErrorSamplingRate float64 `yaml:"error_sampling_rate"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "otlp", "stdout"
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// ShutdownConfig defines the graceful shutdown timeout.
type ShutdownConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ReloadConfig controls config hot-reload behavior (SIGHUP and file watching).
type ReloadConfig struct {
	Enabled   bool     `yaml:"enabled"`
	WatchFile bool     `yaml:"watch_file"`
	Debounce  Duration `yaml:"debounce"`
}

// Duration is a time.Duration that supports YAML string parsing (e.g., "60s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration, parsing strings like "60s" or "5m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads, parses, applies defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a fully defaulted configuration, as used when no file exists.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
