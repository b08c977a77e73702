package observe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/salescoach/internal/resilience"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
	"github.com/MrWong99/salescoach/pkg/provider/llm/mock"
)

func TestInstrumentLLM_Success(t *testing.T) {
	m, reader, exp := testSetup(t)
	p := &mock.Provider{
		Responses: []mock.Response{{
			Content: "hola",
			Usage:   llm.Usage{PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50},
		}},
		ModelCapabilities: llm.ModelCapabilities{SupportsAudio: true},
	}
	wrapped := InstrumentLLM(p, "gemini", m)

	resp, err := wrapped.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hola" {
		t.Errorf("content = %q", resp.Content)
	}
	if !wrapped.Capabilities().SupportsAudio {
		t.Error("capabilities not forwarded")
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "salescoach.provider.requests", "status", "ok"); got != 1 {
		t.Errorf("ok requests = %d, want 1", got)
	}
	if got := sumFor(t, rm, "salescoach.llm.tokens", "direction", "prompt"); got != 40 {
		t.Errorf("prompt tokens = %d, want 40", got)
	}
	if findMetric(rm, "salescoach.llm.duration") == nil {
		t.Error("llm duration not recorded")
	}
	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "llm.complete" {
		t.Fatalf("spans = %+v", spans)
	}
}

func TestInstrumentLLM_ErrorCounted(t *testing.T) {
	m, reader, _ := testSetup(t)
	apiErr := &llm.APIError{Provider: "openrouter", StatusCode: 429, Message: "slow down"}
	p := &mock.Provider{Responses: []mock.Response{{Err: apiErr}}}

	_, err := InstrumentLLM(p, "deepseek", m).Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, apiErr) {
		t.Fatalf("err = %v, want the provider error unchanged", err)
	}

	rm := collect(t, reader)
	if got := sumFor(t, rm, "salescoach.provider.errors", "kind", "rate_limited"); got != 1 {
		t.Errorf("rate_limited errors = %d, want 1", got)
	}
	if got := sumFor(t, rm, "salescoach.provider.requests", "status", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("wrap: %w", context.Canceled), "canceled"},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"circuit", &llm.APIError{Provider: "gemini", StatusCode: 503, Err: resilience.ErrCircuitOpen}, "circuit_open"},
		{"transport", &llm.APIError{Provider: "gemini", Err: errors.New("dial tcp")}, "transport"},
		{"rate limited", &llm.APIError{StatusCode: 429}, "rate_limited"},
		{"upstream", &llm.APIError{StatusCode: 502}, "upstream"},
		{"rejected", &llm.APIError{StatusCode: 401}, "rejected"},
		{"other", errors.New("boom"), "other"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.want {
				t.Errorf("ErrorKind = %q, want %q", got, tc.want)
			}
		})
	}
}
