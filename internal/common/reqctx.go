package common

import "context"

// RequestContext holds per-request metadata injected by the HTTP middleware.
type RequestContext struct {
	CorrelationID string
	ViewID        string
}

type contextKey int

const requestContextKey contextKey = iota

// WithRequestContext stores a RequestContext in the request context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// RequestContextFromContext retrieves the RequestContext from context, or nil if absent.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// ResolveCorrelationID returns the request's correlation id, or "" outside a request.
func ResolveCorrelationID(ctx context.Context) string {
	if rc := RequestContextFromContext(ctx); rc != nil {
		return rc.CorrelationID
	}
	return ""
}

// LoggerFromContext returns logger tagged with the request's correlation id
// and view id when present.
func LoggerFromContext(ctx context.Context, logger *Logger) *Logger {
	rc := RequestContextFromContext(ctx)
	if rc == nil {
		return logger
	}
	l := logger
	if rc.CorrelationID != "" {
		l = l.WithStr("correlation_id", rc.CorrelationID)
	}
	if rc.ViewID != "" {
		l = l.WithStr("view_id", rc.ViewID)
	}
	return l
}
