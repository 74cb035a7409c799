package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the best guess at the originating client address:
// the first X-Forwarded-For hop, then X-Real-IP, then the socket peer host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
