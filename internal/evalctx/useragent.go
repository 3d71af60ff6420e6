package evalctx

import (
	"regexp"
	"strings"
)

var botPattern = regexp.MustCompile(`(?i)bot|crawler|spider|preview|fetcher|slurp|facebookexternalhit|twitterbot|linkedinbot|whatsapp|telegram|bingpreview|curl|wget|python-requests|golang|httpclient|axios|vkshare`)

// UserAgent is the coarse classification used by browser/os conditions.
type UserAgent struct {
	Browser string
	OS      string
	IsBot   bool
}

// ParseUserAgent classifies a user agent string. Bots report "Bot" for both
// browser and OS. Order matters: Edge UAs also contain "chrome", Chrome UAs
// also contain "safari".
func ParseUserAgent(ua string) UserAgent {
	u := strings.ToLower(ua)
	if botPattern.MatchString(u) {
		return UserAgent{Browser: "Bot", OS: "Bot", IsBot: true}
	}

	out := UserAgent{Browser: "Other", OS: "Other"}
	switch {
	case strings.Contains(u, "edg"):
		out.Browser = "Edge"
	case strings.Contains(u, "chrome"):
		out.Browser = "Chrome"
	case strings.Contains(u, "safari"):
		out.Browser = "Safari"
	case strings.Contains(u, "firefox"):
		out.Browser = "Firefox"
	}

	switch {
	case strings.Contains(u, "windows"):
		out.OS = "Windows"
	case strings.Contains(u, "android"):
		out.OS = "Android"
	case strings.Contains(u, "iphone"), strings.Contains(u, "ipad"):
		out.OS = "iOS"
	case strings.Contains(u, "mac os"):
		out.OS = "macOS"
	case strings.Contains(u, "linux"):
		out.OS = "Linux"
	}
	return out
}
