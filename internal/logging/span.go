package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span is a named unit of work. Its logger carries the trace, span, and any
// attributes passed to StartSpan.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
}

// StartSpan opens a child span of whatever span ctx already carries, starting
// a new trace when there is none.
func StartSpan(ctx context.Context, name string, attrs ...slog.Attr) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	fields := make([]any, 0, len(attrs)+4)
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		fields = append(fields, slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	fields = append(fields, slog.String("span_id", spanID), slog.String("span_name", name))
	if parent := SpanIDFromContext(ctx); parent != "" {
		fields = append(fields, slog.String("parent_span_id", parent))
	}
	for _, attr := range attrs {
		fields = append(fields, attr)
	}

	span := &Span{name: name, logger: FromContext(ctx).With(fields...), start: time.Now()}
	ctx = WithSpanID(WithLogger(ctx, span.logger), spanID)
	return ctx, span
}

// End logs the span's duration at debug level.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.logger.Debug("span completed", slog.Duration("duration", time.Since(s.start)))
}

// Fail records err against the span. Nil errors are ignored so callers can
// defer it with a named return.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.logger.Warn("span failed", slog.String("error", err.Error()), slog.Duration("duration", time.Since(s.start)))
}
