package observe

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of every API response.
const CorrelationHeader = "X-Correlation-ID"

// responseState records what the handler did with the response. Hijack and
// Flush pass through so the live role-play websocket keeps working.
type responseState struct {
	http.ResponseWriter
	status   int
	upgraded bool
}

func (s *responseState) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *responseState) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observe: %T cannot be hijacked", s.ResponseWriter)
	}
	conn, rw, err := h.Hijack()
	if err != nil {
		return nil, nil, err
	}
	s.upgraded = true
	s.status = http.StatusSwitchingProtocols
	return conn, rw, nil
}

func (s *responseState) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *responseState) Unwrap() http.ResponseWriter { return s.ResponseWriter }

type middleware struct {
	metrics *Metrics
	log     *slog.Logger
	quiet   []string
	prop    propagation.TextMapPropagator
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

// WithRequestLogger sets the access logger. Defaults to [slog.Default].
func WithRequestLogger(l *slog.Logger) MiddlewareOption {
	return func(m *middleware) { m.log = l }
}

// WithQuietRoutes logs successful requests to the given mux patterns at
// debug level. Probes and scrapes would otherwise flood the access log.
func WithQuietRoutes(patterns ...string) MiddlewareOption {
	return func(m *middleware) { m.quiet = append(m.quiet, patterns...) }
}

// Middleware traces and times every request. It continues a W3C trace from
// the request headers when present, echoes the trace ID in
// [CorrelationHeader], records [Metrics.HTTPRequestDuration] under the
// matched route pattern and writes one access log line per request.
func Middleware(metrics *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mw := &middleware{
		metrics: metrics,
		log:     slog.Default(),
		prop:    propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	}
	for _, o := range opts {
		o(mw)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mw.serve(next, w, r)
		})
	}
}

func (mw *middleware) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := mw.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := StartSpan(ctx, "HTTP "+r.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(semconv.HTTPRequestMethodKey.String(r.Method), semconv.URLPath(r.URL.Path)),
	)
	defer span.End()

	if cid := CorrelationID(ctx); cid != "" {
		w.Header().Set(CorrelationHeader, cid)
	}
	mw.prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

	r = r.WithContext(ctx)
	state := &responseState{ResponseWriter: w, status: http.StatusOK}
	next.ServeHTTP(state, r)
	elapsed := time.Since(start)

	// The mux fills in Pattern on the request it was given.
	route := r.URL.Path
	if r.Pattern != "" {
		route = r.Pattern
		span.SetName(r.Pattern)
		span.SetAttributes(semconv.HTTPRoute(r.Pattern))
	}
	span.SetAttributes(semconv.HTTPResponseStatusCode(state.status))
	mw.metrics.RecordHTTP(ctx, r.Method, route, elapsed)

	LoggerFrom(ctx, mw.log).LogAttrs(ctx, mw.level(r.Pattern, state.status), "request completed",
		slog.String("method", r.Method),
		slog.String("route", route),
		slog.Int("status", state.status),
		slog.Bool("upgraded", state.upgraded),
		slog.Duration("duration", elapsed),
	)
}

func (mw *middleware) level(pattern string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case status < http.StatusBadRequest && slices.Contains(mw.quiet, pattern):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
