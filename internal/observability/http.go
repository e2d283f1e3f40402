package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestIDHeader carries the correlation id across HTTP and websocket handshakes.
const RequestIDHeader = "X-Request-Id"

const deviceIDHeader = "X-Device-Id"

// ClientMeta identifies the caller of a handshake for logs and session events.
type ClientMeta struct {
	DeviceID  string
	RequestID string
	IP        string
}

// ClientMetaFrom reads the client identity from handshake headers. The first
// X-Forwarded-For hop wins over X-Real-IP, which wins over the socket address.
func ClientMetaFrom(header http.Header, remoteAddr string) ClientMeta {
	return ClientMeta{
		DeviceID:  header.Get(deviceIDHeader),
		RequestID: header.Get(RequestIDHeader),
		IP:        clientIP(header, remoteAddr),
	}
}

func clientIP(header http.Header, remoteAddr string) string {
	if forwarded := header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(header.Get("X-Real-IP")); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
