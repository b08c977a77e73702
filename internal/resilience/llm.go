package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// GuardedLLM implements [llm.Provider] behind a [CircuitBreaker].
type GuardedLLM struct {
	next    llm.Provider
	name    string
	breaker *CircuitBreaker
}

var _ llm.Provider = (*GuardedLLM)(nil)

// GuardLLM wraps p with a breaker configured by cfg. cfg.Name labels both the
// breaker and the fail-fast error; cfg.IsFailure defaults to [IsBackendFailure].
func GuardLLM(p llm.Provider, cfg CircuitBreakerConfig) *GuardedLLM {
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsBackendFailure
	}
	return &GuardedLLM{next: p, name: cfg.Name, breaker: NewCircuitBreaker(cfg)}
}

// Complete forwards req unless the breaker is open, in which case it returns
// an [llm.APIError] with status 503 wrapping [ErrCircuitOpen].
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.breaker.Execute(func() error {
		var err error
		resp, err = g.next.Complete(ctx, req)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, &llm.APIError{
			Provider:   g.name,
			StatusCode: http.StatusServiceUnavailable,
			Message:    "provider temporarily disabled after repeated failures",
			Err:        ErrCircuitOpen,
		}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Capabilities returns the wrapped provider's capabilities.
func (g *GuardedLLM) Capabilities() llm.ModelCapabilities { return g.next.Capabilities() }

// Breaker exposes the breaker for health reporting.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// IsBackendFailure reports whether err says something about the backend's
// health: transport errors, rate limiting and 5xx responses count, while
// client-side rejections and caller cancellation do not.
func IsBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 0 ||
			apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode >= 500
	}
	return true
}
