package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/salescoach"

// Tracer returns the salescoach tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span. The caller must end it, usually with [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartProviderSpan starts a span labelled with the provider serving it.
func StartProviderSpan(ctx context.Context, name, provider string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{Attr("provider", provider)}, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan ends span, marking it failed with the [ErrorKind] of err when err
// is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		kind := ErrorKind(err)
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.kind", kind))
		span.SetStatus(codes.Error, kind)
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// The API echoes it in the X-Correlation-ID header.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is [LoggerFrom] on the default logger.
func Logger(ctx context.Context) *slog.Logger {
	return LoggerFrom(ctx, slog.Default())
}

// LoggerFrom adds trace_id and span_id from the span in ctx to base.
func LoggerFrom(ctx context.Context, base *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
