package anyllm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Eres un cliente.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Buenos días"},
			{Role: llm.RoleAssistant, Content: "¿Quién habla?"},
		},
	})
	if len(params.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[2].ContentString() != "¿Quién habla?" {
		t.Errorf("assistant content = %q", params.Messages[2].ContentString())
	}
	if params.Model != "deepseek-chat" {
		t.Errorf("model = %q", params.Model)
	}
}

func TestBuildParams_TemperatureZeroIsSent(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "deepseek-chat"}
	params := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		Temperature: llm.Temperature(0),
		MaxTokens:   128,
	})
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Errorf("Temperature = %v, want pointer to 0", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("MaxTokens = %v, want 128", params.MaxTokens)
	}

	params = p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	if params.Temperature != nil {
		t.Error("Temperature should be nil when unset")
	}
	if params.MaxTokens != nil {
		t.Error("MaxTokens should be nil when unset")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model   string
		wantCtx int
	}{
		{"deepseek-chat", 64_000},
		{"gpt-4o-mini", 128_000},
		{"gemini-2.5-flash", 1_048_576},
		{"something-else", 128_000},
	}
	for _, tc := range tests {
		caps := (&Provider{model: tc.model}).Capabilities()
		if caps.ContextWindow != tc.wantCtx {
			t.Errorf("%s: ContextWindow = %d, want %d", tc.model, caps.ContextWindow, tc.wantCtx)
		}
		if caps.SupportsAudio {
			t.Errorf("%s: must not advertise audio", tc.model)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "deepseek-chat"); err == nil {
		t.Error("expected error for empty backend name")
	}
	if _, err := New("deepseek", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "m", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported backend")
	}
}

func TestNew_DeepSeekWithAPIKey(t *testing.T) {
	t.Parallel()
	p, err := New("deepseek", "deepseek-chat", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.backendName != "deepseek" {
		t.Errorf("backendName = %q", p.backendName)
	}
}

func TestComplete_RejectsAttachments(t *testing.T) {
	t.Parallel()
	p, err := New("deepseek", "deepseek-chat", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "x"}},
		Attachments: []llm.Attachment{{MIMEType: "audio/wav"}},
	})
	if err == nil {
		t.Fatal("expected error for attachments")
	}
}

func TestComplete_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p, err := New("deepseek", "deepseek-chat", anyllmlib.WithAPIKey("sk-test"), anyllmlib.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}},
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Complete took %v, want it bounded by the timeout", elapsed)
	}
}
