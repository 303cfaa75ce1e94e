// Package ssrf validates hostnames and IP addresses before the ingestion
// pipeline fetches anything: requests must never reach loopback, private
// ranges, link-local addresses, or cloud metadata endpoints, even via DNS.
package ssrf

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// BlockedError is returned when a hostname or IP address is rejected by
// the SSRF rules.
type BlockedError struct {
	Message string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return e.Message
}

func blocked(format string, args ...any) *BlockedError {
	return &BlockedError{Message: fmt.Sprintf(format, args...)}
}

// blockedHostnames are always rejected regardless of what they resolve to.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

// dangerousSuffixes mark hostnames that name internal/local resources.
var dangerousSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

// normalizeHostname lowercases, trims, strips the trailing dot, and
// unwraps IPv6 brackets.
func normalizeHostname(hostname string) string {
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	normalized = strings.TrimSuffix(normalized, ".")
	if strings.HasPrefix(normalized, "[") && strings.HasSuffix(normalized, "]") {
		normalized = normalized[1 : len(normalized)-1]
	}
	return normalized
}

// IsBlockedHostname reports whether a hostname is rejected by name alone.
func IsBlockedHostname(hostname string) bool {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return false
	}
	if blockedHostnames[normalized] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether addr is in any range an outbound fetch must
// not touch: loopback, RFC1918/ULA private space, link-local, unspecified,
// or the IPv4-mapped forms of any of those.
func IsPrivateIP(addr netip.Addr) bool {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

// IsPrivateIPAddress reports whether the string parses as an IP in a
// blocked range. Unparseable strings return false; they are hostnames, not
// addresses, and go through DNS validation instead.
func IsPrivateIPAddress(address string) bool {
	addr, err := netip.ParseAddr(normalizeHostname(address))
	if err != nil {
		return false
	}
	return IsPrivateIP(addr)
}

// ValidatePublicHostname checks that a hostname is safe to fetch from: not
// blocked by name, not a private address literal, and not resolving to any
// private address. DNS resolution happens here on purpose — a public name
// pointing at 169.254.169.254 is the classic SSRF vector.
func ValidatePublicHostname(hostname string) error {
	normalized := normalizeHostname(hostname)
	if normalized == "" {
		return errors.New("invalid hostname: empty after normalization")
	}

	if IsBlockedHostname(normalized) {
		return blocked("blocked hostname: %s", hostname)
	}

	if addr, err := netip.ParseAddr(normalized); err == nil {
		if IsPrivateIP(addr) {
			return blocked("blocked: private/internal IP address")
		}
		return nil
	}

	ips, err := net.LookupIP(normalized)
	if err != nil {
		return fmt.Errorf("unable to resolve hostname: %s: %w", hostname, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("unable to resolve hostname: %s", hostname)
	}
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			return blocked("blocked: unparseable resolved address for %s", hostname)
		}
		if IsPrivateIP(addr) {
			return blocked("blocked: resolves to private/internal IP address")
		}
	}
	return nil
}
