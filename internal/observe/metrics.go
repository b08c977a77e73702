// Package observe ties salescoach's telemetry together: OpenTelemetry
// instruments for provider calls, coaching operations, budget alerts and
// HTTP traffic, span helpers that carry the provider label, a request
// middleware and a decorator that instruments any [llm.Provider].
//
// Instruments are created from whichever [metric.MeterProvider] the caller
// hands to [NewMetrics]. [Setup] installs a Prometheus-backed provider
// globally, and [DefaultMetrics] builds instruments from it on first use.
// Tests pass an SDK provider with a manual reader instead.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

const meterName = "github.com/MrWong99/salescoach"

// Metrics holds the salescoach instruments. Prefer the Record helpers over
// the fields so every series carries the same attribute keys.
type Metrics struct {
	// LLMDuration is the latency of one upstream completion, by provider.
	LLMDuration metric.Float64Histogram

	// OperationDuration is the latency of a coaching operation, by provider
	// and operation. One operation may issue several upstream calls.
	OperationDuration metric.Float64Histogram

	// ProviderRequests counts upstream calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed upstream calls by provider and error kind.
	ProviderErrors metric.Int64Counter

	// Tokens counts consumed tokens by provider and direction.
	Tokens metric.Int64Counter

	// BudgetNotifications counts crossed budget thresholds by level.
	BudgetNotifications metric.Int64Counter

	// ActiveRolePlays is the number of open live role-play sessions.
	ActiveRolePlays metric.Int64UpDownCounter

	// HTTPRequestDuration is the API latency by method and route.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets span quick categorisations up to multi-minute analyses of
// long recordings.
var latencyBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120}

// instruments creates instruments on one meter and keeps the first error of
// each, so NewMetrics can report them together.
type instruments struct {
	meter metric.Meter
	errs  []error
}

func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	b.check(name, err)
	return h
}

func (b *instruments) counter(name, desc string, opts ...metric.Int64CounterOption) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, append(opts, metric.WithDescription(desc))...)
	b.check(name, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.check(name, err)
	return g
}

func (b *instruments) check(name string, err error) {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s: %w", name, err))
	}
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	m := &Metrics{
		LLMDuration:         b.latency("salescoach.llm.duration", "Latency of a single LLM completion call."),
		OperationDuration:   b.latency("salescoach.operation.duration", "Latency of a coaching operation by provider and operation."),
		ProviderRequests:    b.counter("salescoach.provider.requests", "Provider API requests by provider, kind and status."),
		ProviderErrors:      b.counter("salescoach.provider.errors", "Provider errors by provider and kind."),
		Tokens:              b.counter("salescoach.llm.tokens", "Tokens consumed by provider and direction.", metric.WithUnit("{token}")),
		BudgetNotifications: b.counter("salescoach.budget.notifications", "Token budget thresholds crossed by level."),
		ActiveRolePlays:     b.gauge("salescoach.active_roleplays", "Open live role-play sessions."),
		HTTPRequestDuration: b.latency("salescoach.http.request.duration", "HTTP request latency by method and route."),
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("observe: create instruments: %w", errors.Join(b.errs...))
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments built from the global meter provider.
// It panics if they cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordOperation records the latency of a coaching operation started at
// begin.
func (m *Metrics) RecordOperation(ctx context.Context, provider, op string, begin time.Time) {
	m.OperationDuration.Record(ctx, time.Since(begin).Seconds(),
		metric.WithAttributes(Attr("provider", provider), Attr("operation", op)))
}

// RecordLLMCall records one upstream completion started at begin. A nil err
// counts as "ok"; anything else is counted under its [ErrorKind].
func (m *Metrics) RecordLLMCall(ctx context.Context, provider string, begin time.Time, err error) {
	m.LLMDuration.Record(ctx, time.Since(begin).Seconds(), metric.WithAttributes(Attr("provider", provider)))
	if err != nil {
		m.RecordProviderRequest(ctx, provider, "llm", "error")
		m.RecordProviderError(ctx, provider, ErrorKind(err))
		return
	}
	m.RecordProviderRequest(ctx, provider, "llm", "ok")
}

// RecordProviderRequest counts one upstream request.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

// RecordProviderError counts one failed upstream request.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordTokens adds the prompt and completion counts of u. Zero counts are
// skipped.
func (m *Metrics) RecordTokens(ctx context.Context, provider string, u llm.Usage) {
	for _, d := range []struct {
		dir string
		n   int
	}{{"prompt", u.PromptTokens}, {"completion", u.CompletionTokens}} {
		if d.n > 0 {
			m.Tokens.Add(ctx, int64(d.n), metric.WithAttributes(Attr("provider", provider), Attr("direction", d.dir)))
		}
	}
}

// RecordBudgetNotification counts a crossed budget threshold.
func (m *Metrics) RecordBudgetNotification(ctx context.Context, level string) {
	m.BudgetNotifications.Add(ctx, 1, metric.WithAttributes(Attr("level", level)))
}

// RecordHTTP records one served request. route should be the matched mux
// pattern so the series stays low-cardinality.
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("method", method), Attr("path", route)))
}
