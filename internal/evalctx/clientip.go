package evalctx

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxyHeaders are consulted in order; the first valid address wins.
var proxyHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Real-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"Forwarded-For",
	"Forwarded",
}

// reservedPrefixes are rejected in proxy headers on top of the private,
// loopback, link-local, unspecified and multicast checks.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::ffff:0:0/96"),
}

// ClientIP extracts the client address from proxy headers, falling back to
// the socket peer address (host:port or bare host). Header entries holding a
// private or reserved address are skipped, so a forged or internal hop never
// wins over a public one.
func ClientIP(h http.Header, remoteAddr string) string {
	for _, name := range proxyHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		for _, part := range strings.Split(v, ",") {
			if ip := parseHeaderIP(part); ip != "" {
				return ip
			}
		}
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// parseHeaderIP accepts a bare address or an RFC 7239 "for=" element.
func parseHeaderIP(s string) string {
	s = strings.TrimSpace(s)
	for _, elem := range strings.Split(s, ";") {
		elem = strings.TrimSpace(elem)
		if len(elem) > 4 && strings.EqualFold(elem[:4], "for=") {
			s = strings.Trim(elem[4:], `"`)
			if host, _, err := net.SplitHostPort(s); err == nil {
				s = host
			}
			s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
			break
		}
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || !isPublic(addr) {
		return ""
	}
	return addr.String()
}

func isPublic(addr netip.Addr) bool {
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsUnspecified() || addr.IsMulticast() || addr.IsLinkLocalMulticast() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}
