// Package mock scripts an [llm.Provider] for tests.
//
// Replies are served in order from Responses. Once the script runs out,
// every call returns CompleteResponse and CompleteErr. Each call is recorded
// and can be inspected with Calls.
//
//	p := &mock.Provider{Responses: []mock.Response{
//	    {Content: `{"category":"Seguros"}`, Usage: llm.Usage{TotalTokens: 10}},
//	}}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Response is one scripted reply. Err wins over Content.
type Response struct {
	Content string
	Usage   llm.Usage
	Err     error

	// Delay holds the reply back. A context that ends first makes the call
	// fail with the context's error, as a real backend would.
	Delay time.Duration
}

// Provider is a scripted [llm.Provider]. It is safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	Responses []Response

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	ModelCapabilities llm.ModelCapabilities

	// CompleteCalls should be read through Calls while calls may be in flight.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and serves the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	r, scripted := p.next(ctx, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !scripted {
		return p.CompleteResponse, p.CompleteErr
	}
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{Content: r.Content, Usage: r.Usage}, nil
}

// next records the call and pops the script. The lock is released before
// any Delay so concurrent callers are not serialised.
func (p *Provider) next(ctx context.Context, req llm.CompletionRequest) (Response, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if len(p.Responses) == 0 {
		return Response{}, false
	}
	r := p.Responses[0]
	p.Responses = p.Responses[1:]
	return r, true
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.CompleteCalls...)
}

// Reset forgets the recorded calls but keeps the script.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
