package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	sessionIDKey ctxKey = "session_id"
)

// ContextWithRequestID stores the request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithSessionID stores the wizard session ID in the context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func SessionIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// WithContext enriches the logger with correlation fields found in ctx.
func WithContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return l
	}
	b := l.With()
	added := false
	if rid := RequestIDFromContext(ctx); rid != "" {
		b = b.Str(FieldRequestID, rid)
		added = true
	}
	if sid := SessionIDFromContext(ctx); sid != "" {
		b = b.Str(FieldSessionID, sid)
		added = true
	}
	if !added {
		return l
	}
	return b.Logger()
}

// FromContext returns the component logger enriched with ctx fields.
func FromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
