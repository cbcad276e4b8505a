package config

// DevProfile returns a development configuration: text logs, permissive
// rate limits, localhost front-end origins.
func DevProfile() string {
	return `# a2a-inspector development profile
listen:
  host: 127.0.0.1
  port: 8000

inspector:
  timeout: 180s
  dns_timeout: 5s
  client: auto

security:
  rate_limit:
    enabled: true
    per_ip: 600
    burst: 50

cors:
  allowed_origins:
    - http://localhost:3000
    - http://localhost:3001
    - http://127.0.0.1:3000
    - http://127.0.0.1:3001
  allow_credentials: true

logging:
  level: debug
  format: text

tracing:
  enabled: false
  exporter: stdout

reload:
  enabled: true
  watch_file: true
  debounce: 1s
`
}

// ProdProfile returns a production configuration: JSON logs, strict rate
// limits, OTLP tracing, sampled audit logs.
func ProdProfile() string {
	return `# a2a-inspector production profile
listen:
  host: 0.0.0.0
  port: 8000
  max_connections: 1000
  trusted_proxies: []

inspector:
  timeout: 60s
  dns_timeout: 5s
  client: auto
  max_card_size: 1048576
  max_event_size: 1048576
  max_message_size: 65536

security:
  blocked_ranges: []
  rate_limit:
    enabled: true
    per_ip: 60
    burst: 10
    cleanup_interval: 5m
  card_signature:
    require: false
    trusted_jwks_urls: []
    cache_ttl: 1h

cors:
  allowed_origins: []
  allow_credentials: true

logging:
  level: info
  format: json
  output: stdout
  audit:
    sampling_rate: 0.1
    error_sampling_rate: 1.0

tracing:
  enabled: true
  exporter: otlp
  endpoint: localhost:4317
  sampling_rate: 0.1

shutdown:
  timeout: 30s

reload:
  enabled: true
  watch_file: true
  debounce: 2s
`
}
