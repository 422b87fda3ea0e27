// Package middleware provides the HTTP middleware that resolves who a request
// comes from and applies the IP guard and client rate limits to it.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"inkwell/pkg/config"
)

// IPExtractor extracts the client IP address from an HTTP request.
type IPExtractor interface {
	ExtractIP(r *http.Request) (string, error)
}

// NewIPExtractor returns a TrustedProxyExtractor when proxy trust is enabled
// and a RemoteAddrExtractor otherwise.
func NewIPExtractor(tp config.TrustedProxies) IPExtractor {
	if !tp.Enabled {
		return &RemoteAddrExtractor{}
	}
	return NewTrustedProxyExtractor(tp)
}

// RemoteAddrExtractor uses the TCP peer address, which the client cannot
// spoof. It is the default.
type RemoteAddrExtractor struct{}

// ExtractIP returns the canonical IP of r.RemoteAddr.
//
// Examples:
//   - "192.168.1.1:54321" → "192.168.1.1"
//   - "[2001:db8::1]:8080" → "2001:db8::1"
//   - "127.0.0.1" → "127.0.0.1" (no port)
func (e *RemoteAddrExtractor) ExtractIP(r *http.Request) (string, error) {
	return extractIPFromAddr(r.RemoteAddr)
}

// TrustedProxyExtractor reads X-Forwarded-For, then X-Real-IP, but only when
// the TCP peer is one of the trusted proxies. Any other peer gets its
// RemoteAddr, so clients cannot rotate their apparent IP through headers.
type TrustedProxyExtractor struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// NewTrustedProxyExtractor creates an extractor trusting tp.Prefixes.
func NewTrustedProxyExtractor(tp config.TrustedProxies) *TrustedProxyExtractor {
	return &TrustedProxyExtractor{
		prefixes: tp.Prefixes,
		logger:   slog.Default(),
	}
}

// IsTrusted reports whether remoteAddr belongs to a trusted proxy.
func (e *TrustedProxyExtractor) IsTrusted(remoteAddr string) bool {
	ip, err := extractIPFromAddr(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, prefix := range e.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractIP resolves the client IP. Header priority for trusted peers:
// X-Forwarded-For (first entry), then X-Real-IP, then RemoteAddr.
func (e *TrustedProxyExtractor) ExtractIP(r *http.Request) (string, error) {
	xff := r.Header.Get("X-Forwarded-For")
	xri := r.Header.Get("X-Real-IP")

	if !e.IsTrusted(r.RemoteAddr) {
		if xff != "" || xri != "" {
			e.logger.Warn("untrusted peer sent forwarding headers",
				slog.String("event_type", "untrusted_forwarded_for"),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("x_forwarded_for", xff),
				slog.String("x_real_ip", xri))
		}
		return extractIPFromAddr(r.RemoteAddr)
	}

	if ip := parseFirstIP(xff); ip != "" {
		return ip, nil
	}
	if ip := canonicalIP(xri); ip != "" {
		return ip, nil
	}
	return extractIPFromAddr(r.RemoteAddr)
}

// extractIPFromAddr extracts the IP from a "host:port" or bare IP string.
func extractIPFromAddr(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// ポートなし
		host = strings.Trim(addr, "[]")
	}
	if ip := canonicalIP(host); ip != "" {
		return ip, nil
	}
	return "", fmt.Errorf("invalid address format: %s", addr)
}

// parseFirstIP returns the first entry of a comma-separated X-Forwarded-For
// value, or "" when that entry is not an IP.
func parseFirstIP(s string) string {
	first, _, _ := strings.Cut(s, ",")
	return canonicalIP(first)
}

// canonicalIP normalizes s so that one client maps to one rate limit key:
// IPv6 is compressed and IPv4-mapped IPv6 becomes plain IPv4.
func canonicalIP(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().WithZone("").String()
}
