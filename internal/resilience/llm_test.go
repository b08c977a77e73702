package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
	"github.com/MrWong99/salescoach/pkg/provider/llm/mock"
)

func TestGuardLLM_FailsFastWhileOpen(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	upstream := &llm.APIError{Provider: "openrouter", StatusCode: http.StatusBadGateway, Message: "bad gateway"}
	p := &mock.Provider{CompleteErr: upstream}
	g := GuardLLM(p, CircuitBreakerConfig{Name: "deepseek", MaxFailures: 2, ResetTimeout: time.Minute, Now: clock.Now})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.Complete(ctx, llm.CompletionRequest{}); !errors.Is(err, upstream) {
			t.Fatalf("call %d: err = %v, want upstream error", i, err)
		}
	}

	_, err := g.Complete(ctx, llm.CompletionRequest{})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *llm.APIError", err)
	}
	if apiErr.Provider != "deepseek" || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Error("fail-fast error does not wrap ErrCircuitOpen")
	}
	if n := len(p.Calls()); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}

	clock.Advance(time.Minute)
	p.CompleteErr = nil
	p.CompleteResponse = &llm.CompletionResponse{Content: "ok"}
	resp, err := g.Complete(ctx, llm.CompletionRequest{})
	if err != nil || resp.Content != "ok" {
		t.Fatalf("probe: resp=%+v err=%v", resp, err)
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("state = %v, want closed", g.Breaker().State())
	}
}

func TestGuardLLM_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteErr: &llm.APIError{Provider: "openai", StatusCode: http.StatusBadRequest}}
	g := GuardLLM(p, CircuitBreakerConfig{Name: "openai", MaxFailures: 1})

	for i := 0; i < 3; i++ {
		_, _ = g.Complete(context.Background(), llm.CompletionRequest{})
	}
	if n := len(p.Calls()); n != 3 {
		t.Errorf("upstream calls = %d, want 3", n)
	}
	if g.Breaker().State() != StateClosed {
		t.Errorf("state = %v, want closed", g.Breaker().State())
	}
}

func TestGuardLLM_ForwardsCapabilities(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{ModelCapabilities: llm.ModelCapabilities{SupportsAudio: true}}
	if !GuardLLM(p, CircuitBreakerConfig{Name: "gemini"}).Capabilities().SupportsAudio {
		t.Error("capabilities not forwarded")
	}
}

func TestIsBackendFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"transport", &llm.APIError{Err: errors.New("connection refused")}, true},
		{"rate limited", &llm.APIError{StatusCode: 429}, true},
		{"server", &llm.APIError{StatusCode: 500}, true},
		{"unauthorized", &llm.APIError{StatusCode: 401}, false},
		{"unknown", errors.New("boom"), true},
	}
	for _, tc := range tests {
		if got := IsBackendFailure(tc.err); got != tc.want {
			t.Errorf("%s: IsBackendFailure = %v, want %v", tc.name, got, tc.want)
		}
	}
}
