package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/seace/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for the export audit log.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, clientIP(r), r.UserAgent())
}

// clientIP returns RemoteAddr without its port. It is already resolved by
// TrustedRealIP.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
