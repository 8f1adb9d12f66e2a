package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 203.0.113.9 , 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:5000", "198.51.100.4"},
		{"remote ipv4", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote ipv6", nil, "[::1]:1234", "::1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataMiddleware(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, ua = GetClientIP(r.Context()), GetUserAgent(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPatch, "/statuses/1", nil)
	req.RemoteAddr = "192.0.2.8:443"
	req.Header.Set("User-Agent", "ops-console/2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.8", ip)
	assert.Equal(t, "ops-console/2", ua)
}
