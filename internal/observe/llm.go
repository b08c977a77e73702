package observe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/salescoach/internal/resilience"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// InstrumentedLLM decorates an [llm.Provider] with a span, a latency sample,
// a request counter and token counters for every completion call.
type InstrumentedLLM struct {
	next    llm.Provider
	name    string
	metrics *Metrics
}

var _ llm.Provider = (*InstrumentedLLM)(nil)

// InstrumentLLM wraps p. name labels every series, usually the provider
// identifier the coaching layer routes by.
func InstrumentLLM(p llm.Provider, name string, m *Metrics) *InstrumentedLLM {
	return &InstrumentedLLM{next: p, name: name, metrics: m}
}

// Complete forwards to the wrapped provider.
func (p *InstrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := StartProviderSpan(ctx, "llm.complete", p.name,
		attribute.Bool("llm.json", req.JSON),
		attribute.Int("llm.attachments", len(req.Attachments)),
	)

	start := time.Now()
	resp, err := p.next.Complete(ctx, req)
	p.metrics.RecordLLMCall(ctx, p.name, start, err)
	if err != nil {
		EndSpan(span, err)
		Logger(ctx).Debug("llm call failed", "provider", p.name, "kind", ErrorKind(err), "err", err)
		return nil, err
	}
	if resp != nil {
		p.metrics.RecordTokens(ctx, p.name, resp.Usage)
		span.SetAttributes(attribute.Int("llm.usage.total", resp.Usage.TotalTokens))
	}
	EndSpan(span, nil)
	return resp, nil
}

// Capabilities returns the wrapped provider's capabilities.
func (p *InstrumentedLLM) Capabilities() llm.ModelCapabilities {
	return p.next.Capabilities()
}

// ErrorKind classifies err into a short label for the provider error
// counter.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 0:
			return "transport"
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case apiErr.StatusCode >= 500:
			return "upstream"
		default:
			return "rejected"
		}
	}
	return "other"
}
