// Package coaching is the application service in front of the coach
// dispatcher. It adds what a single provider call does not know about:
// same-category history for comparisons, persisted results, persona lookup
// and token budget accounting.
package coaching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/salescoach/internal/budget"
	"github.com/MrWong99/salescoach/internal/coach"
	"github.com/MrWong99/salescoach/internal/knowledge"
	"github.com/MrWong99/salescoach/internal/observe"
	"github.com/MrWong99/salescoach/internal/store"
	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// ErrProviderUnavailable is returned when a known provider is requested but
// no backend is configured for it (typically a missing API key).
var ErrProviderUnavailable = errors.New("coaching: provider not configured")

// History kinds accepted by [Service.History].
const (
	KindAnalysis  = "analysis"
	KindRolePlay  = "roleplay"
	KindCaseStudy = "casestudy"
	historyPrefix = "history:"
)

// Outcome wraps an operation result with the tokens it consumed and any
// budget notifications it triggered.
type Outcome[T any] struct {
	Result        T                     `json:"result"`
	Provider      coach.ProviderID      `json:"provider"`
	TokenUsage    llm.Usage             `json:"tokenUsage"`
	Notifications []budget.Notification `json:"notifications,omitempty"`
}

// AnalyzeInput is the input to [Service.Analyze].
type AnalyzeInput struct {
	Provider coach.ProviderID
	Text     string
	Audio    *coach.Audio
	Mode     coach.AnalysisMode
}

// ProviderStatus describes one provider for clients choosing a backend.
type ProviderStatus struct {
	ID         coach.ProviderID `json:"id"`
	Configured bool             `json:"configured"`
	Default    bool             `json:"default"`
}

// Overview bundles every history list with the usage stats.
type Overview struct {
	Analyses    []coach.AnalysisResult         `json:"analyses"`
	RolePlays   []coach.RolePlayAnalysisResult `json:"rolePlays"`
	CaseStudies []coach.CaseStudy              `json:"caseStudies"`
	Usage       budget.Stats                   `json:"usage"`
}

// Service coordinates coaching operations.
type Service struct {
	dispatch *coach.Dispatcher
	budget   *budget.Tracker
	kb       *knowledge.Base
	metrics  *observe.Metrics
	log      *slog.Logger

	analyses    *store.History[coach.AnalysisResult]
	rolePlays   *store.History[coach.RolePlayAnalysisResult]
	caseStudies *store.History[coach.CaseStudy]
}

// Option configures a [Service].
type Option func(*serviceOptions)

type serviceOptions struct {
	historyLimit int
	metrics      *observe.Metrics
	log          *slog.Logger
}

// WithHistoryLimit caps each history list. Defaults to
// [store.DefaultHistoryLimit].
func WithHistoryLimit(n int) Option {
	return func(o *serviceOptions) { o.historyLimit = n }
}

// WithMetrics records token consumption on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) { o.log = l }
}

// New creates a Service.
func New(d *coach.Dispatcher, s store.Store, tr *budget.Tracker, kb *knowledge.Base, opts ...Option) *Service {
	o := serviceOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		dispatch:    d,
		budget:      tr,
		kb:          kb,
		metrics:     o.metrics,
		log:         o.log,
		analyses:    store.NewHistory[coach.AnalysisResult](s, historyPrefix+KindAnalysis, o.historyLimit),
		rolePlays:   store.NewHistory[coach.RolePlayAnalysisResult](s, historyPrefix+KindRolePlay, o.historyLimit),
		caseStudies: store.NewHistory[coach.CaseStudy](s, historyPrefix+KindCaseStudy, o.historyLimit),
	}
}

// Providers lists every known provider and whether it is configured.
func (s *Service) Providers() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(coach.Providers))
	for _, id := range coach.Providers {
		out = append(out, ProviderStatus{
			ID:         id,
			Configured: s.dispatch.Has(id),
			Default:    id == s.dispatch.DefaultProvider(),
		})
	}
	return out
}

// resolve rejects known providers that have no backend. Unknown or empty
// identifiers fall through to the dispatcher's default.
func (s *Service) resolve(id coach.ProviderID) (coach.ProviderID, error) {
	if id.Known() && !s.dispatch.Has(id) {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, id)
	}
	resolved, _ := s.dispatch.Resolve(id)
	return resolved, nil
}

// clientProfile expands a persona name into its full description. Free-form
// descriptions pass through unchanged.
func (s *Service) clientProfile(name string) string {
	if p, ok := s.kb.Profile(name); ok {
		return p.Prompt()
	}
	return name
}

// account records u against the budget and metrics. Failures are logged;
// the caller already paid for the call.
func (s *Service) account(ctx context.Context, id coach.ProviderID, u llm.Usage) []budget.Notification {
	if s.metrics != nil {
		s.metrics.RecordTokens(ctx, string(id), u)
	}
	notes, err := s.budget.Record(ctx, u)
	if err != nil {
		observe.Logger(ctx).Error("coaching: record usage", "err", err)
		return nil
	}
	if s.metrics != nil {
		for _, n := range notes {
			s.metrics.RecordBudgetNotification(ctx, string(n.Level))
		}
	}
	return notes
}

// Categorize classifies text.
func (s *Service) Categorize(ctx context.Context, id coach.ProviderID, text string) (*Outcome[string], error) {
	id, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	category, u, err := s.dispatch.CategorizeText(ctx, id, text)
	if err != nil {
		return nil, err
	}
	return &Outcome[string]{Result: category, Provider: id, TokenUsage: u, Notifications: s.account(ctx, id, u)}, nil
}

// Analyze runs a script or recording analysis. Text in full mode is compared
// with stored analyses of the same category; the result is saved to history.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (*Outcome[*coach.AnalysisResult], error) {
	id, err := s.resolve(in.Provider)
	if err != nil {
		return nil, err
	}
	mode := in.Mode
	if mode == "" {
		mode = coach.ModeFull
	}
	req := coach.AnalysisRequest{Text: in.Text, Audio: in.Audio, Mode: mode}

	var (
		notes    []budget.Notification
		relevant []coach.AnalysisResult
	)
	if in.Audio == nil && in.Text != "" {
		category, u, err := s.dispatch.CategorizeText(ctx, id, in.Text)
		if err != nil {
			return nil, err
		}
		notes = append(notes, s.account(ctx, id, u)...)
		past, err := s.analyses.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("coaching: analyze: %w", err)
		}
		for _, r := range past {
			if r.Category == category {
				relevant = append(relevant, r)
			}
		}
	}
	if mode == coach.ModeFull && len(relevant) > 0 {
		req.HistoricalTexts = make([]string, len(relevant))
		for i, r := range relevant {
			req.HistoricalTexts[i] = r.OriginalText
		}
		req.PreviousScores = meanScores(relevant)
	}

	res, err := s.dispatch.AnalyzeContent(ctx, id, req)
	if err != nil {
		return nil, err
	}
	notes = append(notes, s.account(ctx, id, res.TokenUsage)...)
	if err := s.analyses.Add(ctx, *res); err != nil {
		observe.Logger(ctx).Error("coaching: save analysis", "err", err)
	}
	return &Outcome[*coach.AnalysisResult]{Result: res, Provider: id, TokenUsage: res.TokenUsage, Notifications: notes}, nil
}

// meanScores averages the scores of results, or returns nil for none.
func meanScores(results []coach.AnalysisResult) *coach.PersuasionScores {
	if len(results) == 0 {
		return nil
	}
	var sum coach.PersuasionScores
	for _, r := range results {
		sum.Presuasion += r.Scores.Presuasion
		sum.Ethos += r.Scores.Ethos
		sum.Pathos += r.Scores.Pathos
		sum.Logos += r.Scores.Logos
	}
	n := float64(len(results))
	return &coach.PersuasionScores{
		Presuasion: sum.Presuasion / n,
		Ethos:      sum.Ethos / n,
		Pathos:     sum.Pathos / n,
		Logos:      sum.Logos / n,
	}
}

// AnalyzeRolePlay evaluates a conversation and saves the result.
func (s *Service) AnalyzeRolePlay(ctx context.Context, id coach.ProviderID, conversation []coach.ChatMessage, profile, product string) (*Outcome[*coach.RolePlayAnalysisResult], error) {
	id, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	res, err := s.dispatch.AnalyzeRolePlay(ctx, id, conversation, s.clientProfile(profile), product)
	if err != nil {
		return nil, err
	}
	// Store the persona by name rather than its full description.
	res.ClientProfile = profile
	notes := s.account(ctx, id, res.TokenUsage)
	if err := s.rolePlays.Add(ctx, *res); err != nil {
		observe.Logger(ctx).Error("coaching: save role-play", "err", err)
	}
	return &Outcome[*coach.RolePlayAnalysisResult]{Result: res, Provider: id, TokenUsage: res.TokenUsage, Notifications: notes}, nil
}

// GenerateScript writes a sales script.
func (s *Service) GenerateScript(ctx context.Context, id coach.ProviderID, req coach.ScriptRequest) (*Outcome[string], error) {
	id, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	script, u, err := s.dispatch.GenerateScript(ctx, id, req)
	if err != nil {
		return nil, err
	}
	return &Outcome[string]{Result: script, Provider: id, TokenUsage: u, Notifications: s.account(ctx, id, u)}, nil
}

// RolePlayReply produces the simulated client's next line.
func (s *Service) RolePlayReply(ctx context.Context, id coach.ProviderID, history []coach.ChatMessage, profile, product string) (*Outcome[string], error) {
	id, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	reply, u, err := s.dispatch.GetRolePlayResponse(ctx, id, history, s.clientProfile(profile), product)
	if err != nil {
		return nil, err
	}
	return &Outcome[string]{Result: reply, Provider: id, TokenUsage: u, Notifications: s.account(ctx, id, u)}, nil
}

// RolePlayTurn produces a multiple-choice turn.
func (s *Service) RolePlayTurn(ctx context.Context, id coach.ProviderID, history []coach.ChatMessage, profile, product string) (*Outcome[*coach.RolePlayTurn], error) {
	id, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	turn, u, err := s.dispatch.GetRolePlayMultipleChoiceTurn(ctx, id, history, s.clientProfile(profile), product)
	if err != nil {
		return nil, err
	}
	return &Outcome[*coach.RolePlayTurn]{Result: turn, Provider: id, TokenUsage: u, Notifications: s.account(ctx, id, u)}, nil
}

// GenerateCaseStudy creates a case study on the dispatcher's case-study
// provider and saves it. The requested provider only needs to be valid.
func (s *Service) GenerateCaseStudy(ctx context.Context, id coach.ProviderID, problemType, notes string) (*Outcome[*coach.CaseStudy], error) {
	if _, err := s.resolve(id); err != nil {
		return nil, err
	}
	cs, u, err := s.dispatch.GenerateCaseStudy(ctx, id, problemType, notes)
	if err != nil {
		return nil, err
	}
	served := s.dispatch.CaseStudyProvider()
	out := &Outcome[*coach.CaseStudy]{Result: cs, Provider: served, TokenUsage: u, Notifications: s.account(ctx, served, u)}
	if err := s.caseStudies.Add(ctx, *cs); err != nil {
		observe.Logger(ctx).Error("coaching: save case study", "err", err)
	}
	return out, nil
}

// ErrUnknownHistory is returned by [Service.History] for an unknown kind.
var ErrUnknownHistory = errors.New("coaching: unknown history kind")

// History returns the stored results of one kind, newest first.
func (s *Service) History(ctx context.Context, kind string) (any, error) {
	switch kind {
	case KindAnalysis:
		return s.analyses.List(ctx)
	case KindRolePlay:
		return s.rolePlays.List(ctx)
	case KindCaseStudy:
		return s.caseStudies.List(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownHistory, kind)
}

// Usage returns this month's token stats.
func (s *Service) Usage(ctx context.Context) (budget.Stats, error) {
	return s.budget.Stats(ctx)
}

// SetMonthlyBudget changes the advisory budget.
func (s *Service) SetMonthlyBudget(ctx context.Context, n int) (budget.Stats, error) {
	return s.budget.SetMonthlyBudget(ctx, n)
}

// Overview loads every history list and the usage stats concurrently.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Analyses, err = s.analyses.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.RolePlays, err = s.rolePlays.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.CaseStudies, err = s.caseStudies.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.Usage, err = s.budget.Stats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("coaching: overview: %w", err)
	}
	return &out, nil
}
