// Package openai provides an LLM provider backed by any OpenAI-compatible chat
// completions endpoint. It serves both api.openai.com and OpenRouter, which
// fronts DeepSeek and other hosted models behind the same wire format.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Provider implements llm.Provider using the OpenAI chat completions API.
type Provider struct {
	client          oai.Client
	model           string
	name            string
	legacyMaxTokens bool
}

// config holds optional configuration for the provider.
type config struct {
	name            string
	baseURL         string
	organization    string
	timeout         time.Duration
	httpClient      *http.Client
	headers         map[string]string
	legacyMaxTokens bool
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request timeout covering the whole round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithHeader adds a static header to every request. OpenRouter uses
// HTTP-Referer and X-Title to attribute traffic.
func WithHeader(key, value string) Option {
	return func(c *config) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithName sets the provider label reported in [llm.APIError]. Default: "openai".
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithLegacyMaxTokens sends the completion cap as max_tokens instead of
// max_completion_tokens. Most OpenAI-compatible gateways only honour the former.
func WithLegacyMaxTokens() Option {
	return func(c *config) {
		c.legacyMaxTokens = true
	}
}

// NewOpenRouter constructs a Provider preconfigured for OpenRouter with the
// attribution headers it expects.
func NewOpenRouter(apiKey, model, referer, title string, opts ...Option) (*Provider, error) {
	base := []Option{
		WithName("openrouter"),
		WithBaseURL(OpenRouterBaseURL),
		WithLegacyMaxTokens(),
	}
	if referer != "" {
		base = append(base, WithHeader("HTTP-Referer", referer))
	}
	if title != "" {
		base = append(base, WithHeader("X-Title", title))
	}
	return New(apiKey, model, append(base, opts...)...)
}

// New constructs a new OpenAI LLM Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{name: "openai"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	for k, v := range cfg.headers {
		reqOpts = append(reqOpts, option.WithHeader(k, v))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{
		client:          client,
		model:           model,
		name:            cfg.name,
		legacyMaxTokens: cfg.legacyMaxTokens,
	}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if len(req.Attachments) > 0 {
		return nil, fmt.Errorf("%s: attachments are not supported", p.name)
	}
	params, err := p.buildParams(req)
	if err != nil {
		return nil, fmt.Errorf("%s: build params: %w", p.name, err)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.APIError{Provider: p.name, Message: "empty choices in response"}
	}

	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return modelCapabilities(p.model)
}

// wrapError converts SDK errors into *llm.APIError, keeping the backend's own
// message when the response carried one.
func (p *Provider) wrapError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" && apiErr.Response != nil {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &llm.APIError{Provider: p.name, StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return &llm.APIError{Provider: p.name, Err: err}
}

// modelCapabilities returns ModelCapabilities for known model names, including
// the OpenRouter "vendor/model" form.
func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:    128_000,
		MaxOutputTokens:  4_096,
		SupportsJSONMode: true,
	}

	lower := strings.ToLower(model)
	if i := strings.LastIndex(lower, "/"); i >= 0 {
		lower = lower[i+1:]
	}
	switch {
	case strings.HasPrefix(lower, "gpt-4o"):
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(lower, "gpt-4.1"):
		caps.ContextWindow = 1_047_576
		caps.MaxOutputTokens = 32_768
	case strings.HasPrefix(lower, "gpt-4-turbo"):
		caps.MaxOutputTokens = 4_096
	case strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192
		caps.SupportsJSONMode = false
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	case strings.HasPrefix(lower, "deepseek-chat"):
		caps.ContextWindow = 64_000
		caps.MaxOutputTokens = 8_192
	case strings.HasPrefix(lower, "deepseek-r1"), strings.HasPrefix(lower, "deepseek-reasoner"):
		caps.ContextWindow = 64_000
		caps.MaxOutputTokens = 8_192
		caps.SupportsJSONMode = false
	}
	return caps
}

// buildParams converts a CompletionRequest into OpenAI SDK params.
func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	var messages []oai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}

	for _, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return oai.ChatCompletionNewParams{}, fmt.Errorf("no messages")
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		if p.legacyMaxTokens {
			params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
		} else {
			params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
		}
	}
	if req.JSON && modelCapabilities(p.model).SupportsJSONMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	return params, nil
}

// convertMessage converts an llm.Message to an OpenAI SDK message param.
func convertMessage(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", m.Role)
	}
}
