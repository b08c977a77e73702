package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/salescoach/internal/observe"
)

// Dispatcher routes each operation to the adapter registered for a provider
// identifier. Identifiers without an adapter fall back to the default. It
// holds no per-call state and forwards arguments unchanged.
//
// Case studies are generated by a single designated adapter regardless of the
// requested provider.
type Dispatcher struct {
	adapters  map[ProviderID]Coach
	def       ProviderID
	caseStudy ProviderID
	log       *slog.Logger
	metrics   *observe.Metrics
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithDefaultProvider sets the adapter used for unknown identifiers.
// Defaults to [ProviderGemini].
func WithDefaultProvider(id ProviderID) DispatcherOption {
	return func(d *Dispatcher) { d.def = id }
}

// WithCaseStudyProvider sets the adapter that generates case studies.
// Defaults to [ProviderGemini].
func WithCaseStudyProvider(id ProviderID) DispatcherOption {
	return func(d *Dispatcher) { d.caseStudy = id }
}

// WithDispatchLogger sets the logger. Defaults to [slog.Default].
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// WithDispatchMetrics records per-operation latency on m.
func WithDispatchMetrics(m *observe.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher over adapters. The default provider must
// have an adapter.
func NewDispatcher(adapters map[ProviderID]Coach, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		adapters:  make(map[ProviderID]Coach, len(adapters)),
		def:       ProviderGemini,
		caseStudy: ProviderGemini,
		log:       slog.Default(),
	}
	for id, c := range adapters {
		if c != nil {
			d.adapters[id] = c
		}
	}
	for _, o := range opts {
		o(d)
	}
	if _, ok := d.adapters[d.def]; !ok {
		return nil, fmt.Errorf("coach: default provider %q has no adapter", d.def)
	}
	return d, nil
}

// Has reports whether an adapter is registered for id.
func (d *Dispatcher) Has(id ProviderID) bool {
	_, ok := d.adapters[id]
	return ok
}

// DefaultProvider returns the fallback provider identifier.
func (d *Dispatcher) DefaultProvider() ProviderID { return d.def }

// CaseStudyProvider returns the provider every case study is routed to.
func (d *Dispatcher) CaseStudyProvider() ProviderID { return d.caseStudy }

// Resolve returns the identifier and adapter that serve id.
func (d *Dispatcher) Resolve(id ProviderID) (ProviderID, Coach) {
	if c, ok := d.adapters[id]; ok {
		return id, c
	}
	return d.def, d.adapters[d.def]
}

// start opens a span for op and returns a function that closes it and
// records the operation latency.
func (d *Dispatcher) start(ctx context.Context, op string, id ProviderID) (context.Context, func(error)) {
	begin := time.Now()
	ctx, span := observe.StartProviderSpan(ctx, "coach."+op, string(id))
	return ctx, func(err error) {
		observe.EndSpan(span, err)
		if d.metrics != nil {
			d.metrics.RecordOperation(ctx, string(id), op, begin)
		}
	}
}

// CategorizeText forwards to the adapter for id.
func (d *Dispatcher) CategorizeText(ctx context.Context, id ProviderID, text string) (category string, usage TokenUsage, err error) {
	id, c := d.Resolve(id)
	ctx, finish := d.start(ctx, "categorize", id)
	defer func() { finish(err) }()
	return c.CategorizeText(ctx, text)
}

// AnalyzeContent forwards to the adapter for id.
func (d *Dispatcher) AnalyzeContent(ctx context.Context, id ProviderID, req AnalysisRequest) (res *AnalysisResult, err error) {
	id, c := d.Resolve(id)
	ctx, finish := d.start(ctx, "analyze", id)
	defer func() { finish(err) }()
	return c.AnalyzeContent(ctx, req)
}

// AnalyzeRolePlay forwards to the adapter for id.
func (d *Dispatcher) AnalyzeRolePlay(ctx context.Context, id ProviderID, conversation []ChatMessage, clientProfile, product string) (res *RolePlayAnalysisResult, err error) {
	id, c := d.Resolve(id)
	ctx, finish := d.start(ctx, "analyze_roleplay", id)
	defer func() { finish(err) }()
	return c.AnalyzeRolePlay(ctx, conversation, clientProfile, product)
}

// GenerateScript forwards to the adapter for id.
func (d *Dispatcher) GenerateScript(ctx context.Context, id ProviderID, req ScriptRequest) (script string, usage TokenUsage, err error) {
	id, c := d.Resolve(id)
	ctx, finish := d.start(ctx, "generate_script", id)
	defer func() { finish(err) }()
	return c.GenerateScript(ctx, req)
}

// GetRolePlayResponse forwards to the adapter for id.
func (d *Dispatcher) GetRolePlayResponse(ctx context.Context, id ProviderID, history []ChatMessage, clientProfile, product string) (reply string, usage TokenUsage, err error) {
	id, c := d.Resolve(id)
	ctx, finish := d.start(ctx, "roleplay_reply", id)
	defer func() { finish(err) }()
	return c.GetRolePlayResponse(ctx, history, clientProfile, product)
}

// GetRolePlayMultipleChoiceTurn forwards to the adapter for id.
func (d *Dispatcher) GetRolePlayMultipleChoiceTurn(ctx context.Context, id ProviderID, history []ChatMessage, clientProfile, product string) (turn *RolePlayTurn, usage TokenUsage, err error) {
	id, c := d.Resolve(id)
	ctx, finish := d.start(ctx, "roleplay_turn", id)
	defer func() { finish(err) }()
	return c.GetRolePlayMultipleChoiceTurn(ctx, history, clientProfile, product)
}

// GenerateCaseStudy routes to [Dispatcher.CaseStudyProvider] whatever id is.
func (d *Dispatcher) GenerateCaseStudy(ctx context.Context, id ProviderID, problemType, userNotes string) (cs *CaseStudy, usage TokenUsage, err error) {
	c, ok := d.adapters[d.caseStudy]
	if !ok {
		return nil, TokenUsage{}, ErrCaseStudyUnsupported
	}
	if id != d.caseStudy {
		d.log.Warn("coach: case study rerouted", "requested", id, "provider", d.caseStudy)
	}
	ctx, finish := d.start(ctx, "case_study", d.caseStudy)
	defer func() { finish(err) }()
	cs, usage, err = c.GenerateCaseStudy(ctx, problemType, userNotes)
	if errors.Is(err, ErrCaseStudyUnsupported) {
		return nil, TokenUsage{}, fmt.Errorf("coach: case study provider %q: %w", d.caseStudy, err)
	}
	return cs, usage, err
}
