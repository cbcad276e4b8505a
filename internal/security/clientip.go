package security

import (
	"net"
	"net/netip"
	"strings"
)

// TrustedClientIP extracts the real client IP based on the trusted_proxies
// configuration. With no trusted proxies, RemoteAddr is used as-is.
// Otherwise the rightmost X-Forwarded-For entry that is not a trusted
// proxy wins.
func TrustedClientIP(remoteAddr, xForwardedFor string, trustedProxies []string) string {
	remoteIP := stripPort(remoteAddr)
	if len(trustedProxies) == 0 || xForwardedFor == "" {
		return remoteIP
	}

	trusted := parseTrusted(trustedProxies)
	hops := strings.Split(xForwardedFor, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			continue
		}
		if !containsAddr(trusted, addr) {
			return hop
		}
	}

	// every hop is a trusted proxy
	return remoteIP
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// parseTrusted accepts CIDRs and bare IPs; malformed entries are skipped
// (config validation rejects them earlier).
func parseTrusted(entries []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

func containsAddr(prefixes []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
