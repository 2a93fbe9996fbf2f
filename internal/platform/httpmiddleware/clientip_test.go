package httpmiddleware

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"direct", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"spoofed header from untrusted peer", "203.0.113.7:5555", map[string]string{"X-Forwarded-For": "1.1.1.1"}, "203.0.113.7"},
		{"cloudflare via local proxy", "127.0.0.1:1234", map[string]string{"CF-Connecting-IP": "198.51.100.1"}, "198.51.100.1"},
		{"xff first hop", "10.0.0.2:1234", map[string]string{"X-Forwarded-For": "198.51.100.2, 10.0.0.1"}, "198.51.100.2"},
		{"x-real-ip", "192.168.1.5:1234", map[string]string{"X-Real-IP": "198.51.100.3"}, "198.51.100.3"},
		{"garbage header", "172.16.0.1:1234", map[string]string{"X-Forwarded-For": "not-an-ip"}, "172.16.0.1"},
		{"ipv6 ula proxy", "[fd00::1]:1234", map[string]string{"CF-Connecting-IP": "2001:db8::1"}, "2001:db8::1"},
		{"no port", "203.0.113.9", nil, "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Fatalf("ClientIP: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountryCode(t *testing.T) {
	tests := []struct {
		remoteAddr string
		header     string
		want       string
	}{
		{"127.0.0.1:1", "nl", "NL"},
		{"127.0.0.1:1", "XX", ""},
		{"127.0.0.1:1", "T1", ""},
		{"127.0.0.1:1", "NLD", ""},
		{"203.0.113.7:1", "NL", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tt.remoteAddr
		req.Header.Set("CF-IPCountry", tt.header)
		if got := CountryCode(req); got != tt.want {
			t.Fatalf("CountryCode(%s, %q): got %q, want %q", tt.remoteAddr, tt.header, got, tt.want)
		}
	}
}
