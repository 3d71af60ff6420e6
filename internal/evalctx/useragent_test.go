package evalctx

import "testing"

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		browser string
		os      string
		bot     bool
	}{
		{
			name:    "chrome windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			browser: "Chrome", os: "Windows",
		},
		{
			name:    "edge windows",
			ua:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			browser: "Edge", os: "Windows",
		},
		{
			name:    "safari iphone",
			ua:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			browser: "Safari", os: "iOS",
		},
		{
			name:    "chrome android",
			ua:      "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			browser: "Chrome", os: "Android",
		},
		{
			name:    "firefox linux",
			ua:      "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			browser: "Firefox", os: "Linux",
		},
		{
			name:    "safari mac",
			ua:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			browser: "Safari", os: "macOS",
		},
		{
			name:    "googlebot",
			ua:      "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			browser: "Bot", os: "Bot", bot: true,
		},
		{name: "curl", ua: "curl/8.4.0", browser: "Bot", os: "Bot", bot: true},
		{name: "empty", ua: "", browser: "Other", os: "Other"},
		{name: "unknown", ua: "SomeTV/1.0", browser: "Other", os: "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUserAgent(tt.ua)
			if got.Browser != tt.browser || got.OS != tt.os || got.IsBot != tt.bot {
				t.Errorf("ParseUserAgent = %+v, want %s/%s/%v", got, tt.browser, tt.os, tt.bot)
			}
		})
	}
}
