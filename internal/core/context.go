package core

import "context"

type contextKey string

const (
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithClient attaches the caller's address and user agent for the
// export audit log.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyIPAddress, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ClientFromContext returns the values set by ContextWithClient.
func ClientFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeyIPAddress).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}
