// Package ipintel resolves client IPs to classification records.
//
// A Resolver fronts a Fetcher (ip-api over HTTP, or local MaxMind databases)
// with a Cache (file, memory, redis or SQL). Records are cached without
// expiry. Failed lookups are cached as permanent fallback records.
package ipintel

import (
	"net/netip"
	"strings"
)

// Status values carried by a Record.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Fallback field values.
const (
	UnknownCountry     = "unknown"
	UnknownCountryCode = "XX"
	FallbackMessage    = "ip-api error"
	LocalhostCountry   = "localhost"
)

// Record is the IP intelligence record, stored as one JSON document per IP.
// Field names follow the ip-api.com response.
type Record struct {
	Query       string `json:"query"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName,omitempty"`
	City        string `json:"city,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Org         string `json:"org"`
	ISP         string `json:"isp"`
	AS          string `json:"as,omitempty"`
	Reverse     string `json:"reverse,omitempty"`
	Mobile      bool   `json:"mobile,omitempty"`
	Proxy       bool   `json:"proxy"`
	Hosting     bool   `json:"hosting"`
}

// Fallback builds the record returned and cached when a lookup fails.
func Fallback(ip string) Record {
	return Record{
		Query:       ip,
		Status:      StatusFail,
		Message:     FallbackMessage,
		Country:     UnknownCountry,
		CountryCode: UnknownCountryCode,
	}
}

// Succeeded reports whether the record came from a successful lookup.
func (r Record) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Keep this list conservative: residential ISPs must not match.
var hostingKeywords = []string{
	"vpn", "virtual private network", "proxy",
	"tor", "exit node",
	"colo", "colocation", "datacenter", "data center", "hosting",
	"cloud", "vps",
	"digitalocean", "linode", "vultr", "ovh", "hetzner",
	"google cloud", "google llc", "amazon", "aws", "amazon web services",
	"microsoft azure", "azure",
	"choopa", "leaseweb", "contabo", "upcloud", "ikoula", "scaleway",
}

// IsVPNOrHosting reports whether the record looks like VPN, proxy or hosting
// traffic: either flag is set, or org/isp names a known hosting keyword.
func IsVPNOrHosting(r Record) bool {
	if r.Proxy || r.Hosting {
		return true
	}
	hay := strings.ToLower(r.Org + " " + r.ISP)
	for _, kw := range hostingKeywords {
		if strings.Contains(hay, kw) {
			return true
		}
	}
	return false
}

// VPNName returns org (fallback isp) for VPN/hosting records and "" for
// everything else. "" means both "unknown" and "not a VPN".
func VPNName(r Record) string {
	if !IsVPNOrHosting(r) {
		return ""
	}
	if r.Org != "" {
		return r.Org
	}
	return r.ISP
}

// CountryFor returns "localhost" for loopback and private addresses,
// otherwise the record's country code.
func CountryFor(r Record, ip string) string {
	if IsLocal(ip) {
		return LocalhostCountry
	}
	return r.CountryCode
}

var localPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// IsLocal reports whether ip is 127.0.0.1, ::1 or in an RFC1918 range.
func IsLocal(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr == netip.MustParseAddr("127.0.0.1") || addr == netip.IPv6Loopback() {
		return true
	}
	for _, p := range localPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
