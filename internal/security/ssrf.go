package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Rejection causes. Every error returned by Guard.Check wraps exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrInvalidURL       = errors.New("invalid URL format")
	ErrSchemeNotAllowed = errors.New("scheme not allowed")
	ErrHostnameRequired = errors.New("hostname required")
	ErrLocalhost        = errors.New("localhost not allowed")
	ErrUnresolvable     = errors.New("hostname unresolvable")
	ErrBlockedAddress   = errors.New("private/internal address not allowed")
)

// DefaultBlockedRanges is the fixed table of address space an agent URL
// may never resolve into.
var DefaultBlockedRanges = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),    // loopback
	netip.MustParsePrefix("10.0.0.0/8"),     // RFC1918
	netip.MustParsePrefix("172.16.0.0/12"),  // RFC1918
	netip.MustParsePrefix("192.168.0.0/16"), // RFC1918
	netip.MustParsePrefix("169.254.0.0/16"), // link-local, cloud metadata
	netip.MustParsePrefix("0.0.0.0/8"),      // current network
	netip.MustParsePrefix("224.0.0.0/4"),    // multicast
	netip.MustParsePrefix("240.0.0.0/4"),    // reserved
	netip.MustParsePrefix("::/128"),         // unspecified
	netip.MustParsePrefix("::1/128"),        // loopback
	netip.MustParsePrefix("fc00::/7"),       // unique local
	netip.MustParsePrefix("fe80::/10"),      // link-local
	netip.MustParsePrefix("ff00::/8"),       // multicast
}

var localhostAliases = map[string]bool{
	"localhost":             true,
	"localhost.localdomain": true,
	"ip6-localhost":         true,
	"ip6-loopback":          true,
}

// RejectionError is returned when a URL fails admission. Reason is the
// human-readable text shown to API callers.
type RejectionError struct {
	URL    string
	Reason string
	Addr   netip.Addr // set for ErrBlockedAddress
	Err    error
}

func (e *RejectionError) Error() string { return e.Reason }
func (e *RejectionError) Unwrap() error { return e.Err }

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard decides whether a caller-supplied URL is safe to contact. It holds
// only immutable state and is safe for concurrent use.
//
// The check is made at call time only: a hostname that re-resolves to a
// different address between Check and the actual connection (DNS
// rebinding) is not caught.
type Guard struct {
	blocked    []netip.Prefix
	resolver   Resolver
	dnsTimeout time.Duration
	logger     *slog.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithResolver replaces the DNS resolver (tests use a fake).
func WithResolver(r Resolver) GuardOption {
	return func(g *Guard) { g.resolver = r }
}

// WithExtraBlockedRanges appends prefixes to DefaultBlockedRanges.
func WithExtraBlockedRanges(prefixes ...netip.Prefix) GuardOption {
	return func(g *Guard) { g.blocked = append(g.blocked, prefixes...) }
}

// WithLogger sets the logger used for rejection debug logs.
func WithLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// NewGuard creates a Guard whose DNS lookups are bounded by dnsTimeout.
func NewGuard(dnsTimeout time.Duration, opts ...GuardOption) *Guard {
	g := &Guard{
		blocked:    append([]netip.Prefix(nil), DefaultBlockedRanges...),
		resolver:   net.DefaultResolver,
		dnsTimeout: dnsTimeout,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ParseBlockedRanges parses CIDR strings from configuration.
func ParseBlockedRanges(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("blocked range %q: %w", c, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// Check returns nil when rawURL may be contacted, or a *RejectionError
// naming the first failed check. Only the final two checks touch the
// network (a DNS lookup); IP-literal hosts skip it.
func (g *Guard) Check(ctx context.Context, rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return g.reject(rawURL, ErrInvalidURL, "URL is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return g.reject(rawURL, ErrInvalidURL, "Invalid URL format")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return g.reject(rawURL, ErrSchemeNotAllowed, "URL must use http or https scheme")
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return g.reject(rawURL, ErrHostnameRequired, "URL must include a hostname")
	}

	if localhostAliases[host] || strings.HasSuffix(host, ".localhost") {
		return g.reject(rawURL, ErrLocalhost, "Access to localhost is not allowed")
	}

	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return g.reject(rawURL, ErrUnresolvable, "Unable to resolve hostname: "+host)
	}

	for _, addr := range addrs {
		if g.IsBlocked(addr) {
			rej := &RejectionError{
				URL:    rawURL,
				Reason: "Access to private/internal IP addresses is not allowed",
				Addr:   addr,
				Err:    ErrBlockedAddress,
			}
			g.logger.Debug("url rejected", "url", rawURL, "reason", rej.Reason, "addr", addr.String())
			return rej
		}
	}
	return nil
}

// IsBlocked reports whether addr falls inside any blocked range.
// IPv4-mapped IPv6 addresses are checked as IPv4.
func (g *Guard) IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap().WithZone("")
	for _, p := range g.blocked {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (g *Guard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.dnsTimeout)
	defer cancel()

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	return addrs, nil
}

func (g *Guard) reject(rawURL string, cause error, reason string) error {
	g.logger.Debug("url rejected", "url", rawURL, "reason", reason)
	return &RejectionError{URL: rawURL, Reason: reason, Err: cause}
}

// RejectionLabel returns a short, bounded label for err's rejection cause,
// suitable for metrics.
func RejectionLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrSchemeNotAllowed):
		return "scheme"
	case errors.Is(err, ErrHostnameRequired):
		return "no_hostname"
	case errors.Is(err, ErrLocalhost):
		return "localhost"
	case errors.Is(err, ErrUnresolvable):
		return "unresolvable"
	case errors.Is(err, ErrBlockedAddress):
		return "blocked_address"
	}
	return "other"
}
