// Package gemini provides an LLM provider backed by the Google Gemini API via
// google.golang.org/genai. It is the only built-in provider that accepts inline
// audio attachments.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// DefaultModel is used when New is called with an empty model name.
const DefaultModel = "gemini-2.5-flash"

// Provider implements llm.Provider using the Gemini generateContent API.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Gemini provider. An empty apiKey makes the SDK fall back to
// the GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.timeout > 0 {
		d := cfg.timeout
		cc.HTTPOptions.Timeout = &d
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, err := buildContents(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, buildConfig(req))
	if err != nil {
		return nil, wrapError(err)
	}

	out := &llm.CompletionResponse{Content: resp.Text()}
	if md := resp.UsageMetadata; md != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}
	return out, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:    1_048_576,
		MaxOutputTokens:  65_536,
		SupportsAudio:    true,
		SupportsJSONMode: true,
	}
	if strings.Contains(strings.ToLower(p.model), "1.5") || strings.Contains(strings.ToLower(p.model), "2.0") {
		caps.MaxOutputTokens = 8_192
	}
	return caps
}

func buildConfig(req llm.CompletionRequest) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	return gc
}

// buildContents maps the conversation onto Gemini contents. Assistant turns
// become "model" turns; system messages inside the history are folded into
// user turns. Attachments ride on the last user turn.
func buildContents(req llm.CompletionRequest) ([]*genai.Content, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages")
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	lastUser := -1
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		switch m.Role {
		case llm.RoleAssistant:
			role = genai.RoleModel
		case llm.RoleUser, llm.RoleSystem:
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
		contents = append(contents, genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(m.Content)}, role))
		if role == genai.RoleUser {
			lastUser = len(contents) - 1
		}
	}
	if len(req.Attachments) > 0 {
		if lastUser < 0 {
			return nil, errors.New("attachments require a user message")
		}
		for _, a := range req.Attachments {
			contents[lastUser].Parts = append(contents[lastUser].Parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
		}
	}
	return contents, nil
}

// wrapError converts genai errors into *llm.APIError.
func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.APIError{Provider: "gemini", StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.APIError{Provider: "gemini", StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return &llm.APIError{Provider: "gemini", Err: err}
}
