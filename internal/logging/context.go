package logging

import (
	"context"
	"log/slog"
)

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey string

const (
	loggerKey    ctxKey = "logger"
	requestIDKey ctxKey = "requestID"
	traceIDKey   ctxKey = "traceID"
	spanIDKey    ctxKey = "spanID"
	accountIDKey ctxKey = "accountID"
	pairingIDKey ctxKey = "pairingID"
)

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil || value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

// withTag stores value and adds it to the context logger under attr.
func withTag(ctx context.Context, key ctxKey, attr, value string) context.Context {
	if ctx == nil || value == "" {
		return ctx
	}
	ctx = WithLogger(ctx, FromContext(ctx).With(slog.String(attr, value)))
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

// WithRequestID stores a request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves a previously stored request identifier.
func RequestIDFromContext(ctx context.Context) string { return stringFrom(ctx, requestIDKey) }

// WithTraceID stores a trace identifier on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withString(ctx, traceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace identifier from the context.
func TraceIDFromContext(ctx context.Context) string { return stringFrom(ctx, traceIDKey) }

// WithSpanID stores the current span identifier on the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return withString(ctx, spanIDKey, spanID)
}

// SpanIDFromContext retrieves the span identifier from the context.
func SpanIDFromContext(ctx context.Context) string { return stringFrom(ctx, spanIDKey) }

// WithAccountID stores the authenticated account on the context and tags the
// request logger with it.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return withTag(ctx, accountIDKey, "account_id", accountID)
}

// AccountIDFromContext retrieves the authenticated account identifier.
func AccountIDFromContext(ctx context.Context) string { return stringFrom(ctx, accountIDKey) }

// WithPairingID tags the request logger with the pairing a call operates on.
func WithPairingID(ctx context.Context, pairingID string) context.Context {
	return withTag(ctx, pairingIDKey, "pairing_id", pairingID)
}

// PairingIDFromContext retrieves the pairing identifier.
func PairingIDFromContext(ctx context.Context) string { return stringFrom(ctx, pairingIDKey) }
