package evalctx

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"peer address", nil, "198.51.100.1:54321", "198.51.100.1"},
		{"bare peer", nil, "198.51.100.1", "198.51.100.1"},
		{"v6 peer", nil, "[2001:db8::5]:443", "2001:db8::5"},
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "203.0.113.1", "X-Forwarded-For": "203.0.113.2"}, "10.0.0.1:80", "203.0.113.1"},
		{"forwarded for list", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "10.0.0.1:80", "203.0.113.7"},
		{"skips invalid entries", map[string]string{"X-Forwarded-For": "unknown, 203.0.113.8"}, "10.0.0.1:80", "203.0.113.8"},
		{"invalid header falls through", map[string]string{"X-Real-IP": "garbage", "X-Forwarded-For": "203.0.113.9"}, "10.0.0.1:80", "203.0.113.9"},
		{"rfc 7239", map[string]string{"Forwarded": `for="[2001:db8::9]:4711";proto=https`}, "10.0.0.1:80", "2001:db8::9"},
		{"rfc 7239 v4", map[string]string{"Forwarded": "for=192.0.2.60;proto=http;by=203.0.113.43"}, "10.0.0.1:80", "192.0.2.60"},
		{"all invalid uses peer", map[string]string{"X-Real-IP": "nope"}, "10.0.0.1:80", "10.0.0.1"},
		{"private hop skipped", map[string]string{"X-Forwarded-For": "10.1.2.3, 203.0.113.7"}, "10.0.0.1:80", "203.0.113.7"},
		{"loopback header ignored", map[string]string{"CF-Connecting-IP": "127.0.0.1"}, "198.51.100.9:443", "198.51.100.9"},
		{"private header falls to next header", map[string]string{"X-Real-IP": "192.168.1.4", "X-Forwarded-For": "203.0.113.5"}, "10.0.0.1:80", "203.0.113.5"},
		{"link-local ignored", map[string]string{"X-Real-IP": "169.254.1.1"}, "198.51.100.9:443", "198.51.100.9"},
		{"unspecified ignored", map[string]string{"X-Real-IP": "0.0.0.0"}, "198.51.100.9:443", "198.51.100.9"},
		{"reserved ignored", map[string]string{"X-Real-IP": "250.1.2.3"}, "198.51.100.9:443", "198.51.100.9"},
		{"v6 loopback ignored", map[string]string{"X-Real-IP": "::1"}, "198.51.100.9:443", "198.51.100.9"},
		{"v6 unique local ignored", map[string]string{"X-Forwarded-For": "fd00::1, 2001:db8::7"}, "198.51.100.9:443", "2001:db8::7"},
		{"v4-mapped ignored", map[string]string{"X-Real-IP": "::ffff:203.0.113.4"}, "198.51.100.9:443", "198.51.100.9"},
		{"rfc 7239 private for", map[string]string{"Forwarded": "for=10.0.0.3;proto=http"}, "198.51.100.9:443", "198.51.100.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := ClientIP(h, tt.remoteAddr); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
