package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

func startGeminiServer(t *testing.T, status int, body string) (*httptest.Server, *string, *string) {
	t.Helper()
	var gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &gotBody, &gotPath
}

const okResponse = `{
  "candidates": [{"content": {"role": "model", "parts": [{"text": "{\"fillerWordCount\": 3}"}]}, "finishReason": "STOP"}],
  "usageMetadata": {"promptTokenCount": 40, "candidatesTokenCount": 9, "totalTokenCount": 49}
}`

func TestComplete_JSONWithAudio(t *testing.T) {
	t.Parallel()
	srv, body, path := startGeminiServer(t, http.StatusOK, okResponse)

	p, err := New(context.Background(), "test-key", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "Eres un coach de elocución.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "Analiza el tono."}},
		Temperature:  llm.Temperature(0),
		JSON:         true,
		Attachments:  []llm.Attachment{{MIMEType: "audio/mpeg", Name: "call.mp3", Data: []byte("ID3")}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Content != `{"fillerWordCount": 3}` {
		t.Errorf("Content = %q", resp.Content)
	}
	want := llm.Usage{PromptTokens: 40, CompletionTokens: 9, TotalTokens: 49}
	if resp.Usage != want {
		t.Errorf("Usage = %+v, want %+v", resp.Usage, want)
	}

	if !strings.Contains(*path, "gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q, want default model generateContent", *path)
	}
	for _, frag := range []string{
		`"responseMimeType":"application/json"`,
		`"temperature":0`,
		`"inlineData"`,
		`"mimeType":"audio/mpeg"`,
		`Eres un coach de elocución.`,
	} {
		if !strings.Contains(*body, frag) {
			t.Errorf("request body missing %s\nbody: %s", frag, *body)
		}
	}
}

func TestComplete_APIError(t *testing.T) {
	t.Parallel()
	srv, _, _ := startGeminiServer(t, http.StatusBadRequest,
		`{"error": {"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"}}`)

	p, err := New(context.Background(), "bad-key", "gemini-2.5-flash", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
	})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *llm.APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if apiErr.Message != "API key not valid" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestBuildContents(t *testing.T) {
	t.Parallel()

	contents, err := buildContents(llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Hola, le llamo de Bancolombia."},
			{Role: llm.RoleAssistant, Content: "¿Qué desea?"},
			{Role: llm.RoleUser, Content: "Ofrecerle un seguro."},
		},
		Attachments: []llm.Attachment{{MIMEType: "audio/wav", Data: []byte{0}}},
	})
	if err != nil {
		t.Fatalf("buildContents: %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("len = %d, want 3", len(contents))
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant role mapped to %q, want model", contents[1].Role)
	}
	if len(contents[2].Parts) != 2 {
		t.Errorf("last user turn parts = %d, want text + audio", len(contents[2].Parts))
	}
	if len(contents[0].Parts) != 1 {
		t.Errorf("first user turn should not carry the attachment")
	}

	if _, err := buildContents(llm.CompletionRequest{}); err == nil {
		t.Error("expected error for empty messages")
	}
	if _, err := buildContents(llm.CompletionRequest{Messages: []llm.Message{{Role: "tool"}}}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestCapabilities_Audio(t *testing.T) {
	t.Parallel()
	p := &Provider{model: DefaultModel}
	if !p.Capabilities().SupportsAudio {
		t.Error("gemini must advertise audio support")
	}
}
