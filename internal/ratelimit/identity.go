package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity derives the rate-limit key from the request's originating
// address. Precedence:
//
//  1. X-Forwarded-For, reading the entry appended by the outermost trusted
//     proxy (len - trustedProxies) so client-prepended values are ignored
//  2. X-Real-IP
//  3. CF-Connecting-IP
//  4. the host part of RemoteAddr
//
// Proxy headers are ignored entirely when trustedProxies is 0.
func ClientIdentity(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			idx := len(parts) - trustedProxies
			if idx < 0 {
				idx = 0
			}
			if ip := strings.TrimSpace(parts[idx]); ip != "" {
				return ip
			}
		}
		for _, h := range []string{"X-Real-IP", "CF-Connecting-IP"} {
			if ip := strings.TrimSpace(r.Header.Get(h)); ip != "" {
				return ip
			}
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}
