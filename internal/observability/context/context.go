package context

import (
	"context"

	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
)

type requestIDKey struct{}
type clientKey struct{}

type clientInfo struct {
	ip        string
	userAgent string
}

// WithRequestID attaches the correlation id of the inbound request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithClient stores the caller address and user agent for audit entries.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientKey{}, clientInfo{ip: ip, userAgent: userAgent})
}

func ClientFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	info, _ := ctx.Value(clientKey{}).(clientInfo)
	return info.ip, info.userAgent
}

// TenantIDFromContext returns the tenant id as a log-friendly string.
func TenantIDFromContext(ctx context.Context) string {
	id, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok {
		return ""
	}
	return id.String()
}

// ActorFromContext returns the actor type and id for log fields.
func ActorFromContext(ctx context.Context) (string, string) {
	id, ok := tenantcontext.ActorIDFromContext(ctx)
	if !ok {
		return "", ""
	}
	return "user", id.String()
}
