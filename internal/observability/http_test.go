package observability

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientMetaFrom(t *testing.T) {
	cases := []struct {
		name       string
		header     map[string]string
		remoteAddr string
		wantIP     string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "10.0.0.2"}, "10.0.0.3:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.3:5000", "198.51.100.4"},
		{"socket address", nil, "192.0.2.9:41000", "192.0.2.9"},
		{"unparseable address", nil, "pipe", "pipe"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			for key, value := range tc.header {
				header.Set(key, value)
			}
			assert.Equal(t, tc.wantIP, ClientMetaFrom(header, tc.remoteAddr).IP)
		})
	}
}

func TestClientMetaFromIDs(t *testing.T) {
	header := http.Header{}
	header.Set(RequestIDHeader, "req-1")
	header.Set("X-Device-Id", "kiosk-3")

	meta := ClientMetaFrom(header, "192.0.2.1:80")
	assert.Equal(t, "req-1", meta.RequestID)
	assert.Equal(t, "kiosk-3", meta.DeviceID)
}

func TestBuildHeaders(t *testing.T) {
	assert.Empty(t, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, BuildHeaders("r", "t"))
}
