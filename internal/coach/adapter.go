// Package coach turns coaching operations (script analysis, role-play,
// script and case-study generation) into prompts for an [llm.Provider] and
// validates what comes back.
//
// An [Adapter] binds the operations to one backend. A [Dispatcher] selects
// the adapter for a [ProviderID] and forwards calls unchanged.
//
// Every operation is a sequential chain of upstream calls. A failure at any
// step fails the whole operation and the usage of completed steps is
// discarded. Nothing is retried.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// creativeTemperature is used for calls that produce prose inside JSON.
const creativeTemperature = 0.7

// Coach is the set of operations every provider adapter offers.
type Coach interface {
	// CategorizeText classifies a sales script into a product category.
	CategorizeText(ctx context.Context, text string) (string, TokenUsage, error)

	// AnalyzeContent scores a script or recording and produces feedback.
	AnalyzeContent(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)

	// AnalyzeRolePlay evaluates a finished role-play conversation.
	AnalyzeRolePlay(ctx context.Context, conversation []ChatMessage, clientProfile, product string) (*RolePlayAnalysisResult, error)

	// GenerateScript writes a cold-call script.
	GenerateScript(ctx context.Context, req ScriptRequest) (string, TokenUsage, error)

	// GetRolePlayResponse produces the simulated client's next reply.
	GetRolePlayResponse(ctx context.Context, history []ChatMessage, clientProfile, product string) (string, TokenUsage, error)

	// GetRolePlayMultipleChoiceTurn produces a client reply and three
	// candidate seller answers.
	GetRolePlayMultipleChoiceTurn(ctx context.Context, history []ChatMessage, clientProfile, product string) (*RolePlayTurn, TokenUsage, error)

	// GenerateCaseStudy creates a training case for a complaint type.
	GenerateCaseStudy(ctx context.Context, problemType, userNotes string) (*CaseStudy, TokenUsage, error)
}

// Limits caps completion tokens per call kind. Zero leaves the backend default.
type Limits struct {
	Categorize       int
	Scores           int
	Highlights       int
	Feedback         int
	Tone             int
	RolePlayAnalysis int
	MultipleChoice   int
	Script           int
	RolePlayReply    int
	CaseStudy        int
}

// CompatLimits are the caps applied to OpenAI-compatible backends.
var CompatLimits = Limits{
	Categorize:       128,
	Scores:           512,
	Highlights:       1024,
	Feedback:         2500,
	RolePlayAnalysis: 2000,
	MultipleChoice:   2000,
	Script:           750,
	RolePlayReply:    256,
}

// DefaultLimits returns the caps used for id when none are configured.
func DefaultLimits(id ProviderID) Limits {
	if id == ProviderGemini {
		return Limits{}
	}
	return CompatLimits
}

// Adapter implements [Coach] on top of a single LLM backend.
type Adapter struct {
	id          ProviderID
	llm         llm.Provider
	kb          Knowledge
	limits      Limits
	caseStudies bool

	rand  func() float64
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

var _ Coach = (*Adapter)(nil)

// Option configures an [Adapter].
type Option func(*Adapter)

// WithLimits overrides the per-call token caps.
func WithLimits(l Limits) Option {
	return func(a *Adapter) { a.limits = l }
}

// WithCaseStudies enables GenerateCaseStudy on the adapter.
func WithCaseStudies() Option {
	return func(a *Adapter) { a.caseStudies = true }
}

// WithRand sets the source of uniform [0,1) values used to estimate a
// comparison baseline.
func WithRand(f func() float64) Option {
	return func(a *Adapter) { a.rand = f }
}

// WithClock sets the time source for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithIDGenerator sets the function producing result IDs.
func WithIDGenerator(f func() string) Option {
	return func(a *Adapter) { a.newID = f }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// NewAdapter binds the coaching operations to p.
func NewAdapter(id ProviderID, p llm.Provider, kb Knowledge, opts ...Option) *Adapter {
	a := &Adapter{
		id:     id,
		llm:    p,
		kb:     kb,
		limits: DefaultLimits(id),
		rand:   rand.Float64,
		now:    time.Now,
		newID:  newResultID,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ID returns the provider identifier the adapter reports in results.
func (a *Adapter) ID() ProviderID { return a.id }

// SupportsCaseStudies reports whether GenerateCaseStudy is available.
func (a *Adapter) SupportsCaseStudies() bool { return a.caseStudies }

// newResultID returns a time-ordered UUID.
func newResultID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func userTurn(text string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: text}}
}

func (a *Adapter) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, TokenUsage, error) {
	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		// Report our provider id rather than the backend's label.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Provider != string(a.id) {
			relabeled := *apiErr
			relabeled.Provider = string(a.id)
			err = &relabeled
		}
		return "", TokenUsage{}, fmt.Errorf("coach: %s: %w", op, err)
	}
	return resp.Content, resp.Usage, nil
}

// CategorizeText implements [Coach].
func (a *Adapter) CategorizeText(ctx context.Context, text string) (string, TokenUsage, error) {
	if strings.TrimSpace(text) == "" {
		return "", TokenUsage{}, ErrEmptyInput
	}
	raw, usage, err := a.complete(ctx, "categorize", llm.CompletionRequest{
		SystemPrompt: jsonAssistantSystem,
		Messages:     userTurn(categorizePrompt(text)),
		Temperature:  llm.Temperature(0),
		MaxTokens:    a.limits.Categorize,
		JSON:         true,
	})
	if err != nil {
		return "", TokenUsage{}, err
	}
	var out struct {
		Category string `json:"category"`
	}
	if err := a.decodeJSON("categorize", raw, &out); err != nil {
		return "", TokenUsage{}, err
	}
	if out.Category == "" {
		return DefaultCategory, usage, nil
	}
	return out.Category, usage, nil
}

type scoresPayload struct {
	Title  string            `json:"title"`
	Scores *PersuasionScores `json:"scores"`
}

type qualitativePayload struct {
	Highlights         []Highlight         `json:"highlights"`
	Feedback           *Feedback           `json:"feedback"`
	Exercises          []Exercise          `json:"exercises"`
	ImprovedText       string              `json:"improvedText"`
	ComparisonAnalysis *ComparisonAnalysis `json:"comparisonAnalysis"`
}

// AnalyzeContent implements [Coach]. Text is categorised first; audio skips
// categorisation and requires a backend that accepts audio. The quantitative
// pass runs before the qualitative one and audio adds a final tone pass.
func (a *Adapter) AnalyzeContent(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeFull
	}

	result := &AnalysisResult{
		ID:        a.newID(),
		Timestamp: a.now(),
		Category:  AudioCategory,
		Provider:  a.id,
	}
	var (
		usages      []TokenUsage
		attachments []llm.Attachment
	)
	switch {
	case req.Audio != nil:
		if !a.llm.Capabilities().SupportsAudio {
			mt := req.Audio.MIMEType
			if mt == "" {
				mt = "audio"
			}
			return nil, &UnsupportedMediaError{Provider: a.id, MediaType: mt}
		}
		if len(req.Audio.Data) == 0 {
			return nil, ErrEmptyInput
		}
		result.OriginalText = "Audio: " + req.Audio.Name
		attachments = []llm.Attachment{{
			MIMEType: req.Audio.MIMEType,
			Name:     req.Audio.Name,
			Data:     req.Audio.Data,
		}}
	case strings.TrimSpace(req.Text) != "":
		category, usage, err := a.CategorizeText(ctx, req.Text)
		if err != nil {
			return nil, err
		}
		result.OriginalText = req.Text
		result.Category = category
		usages = append(usages, usage)
	default:
		return nil, ErrEmptyInput
	}
	audio := len(attachments) > 0

	// Quantitative pass.
	scoresText := req.Text
	if audio {
		scoresText = ""
	}
	raw, usage, err := a.complete(ctx, "analyze scores", llm.CompletionRequest{
		SystemPrompt: rhetoricCoachSystem,
		Messages:     userTurn(scoresPrompt(scoresText)),
		Attachments:  attachments,
		Temperature:  llm.Temperature(0),
		MaxTokens:    a.limits.Scores,
		JSON:         true,
	})
	if err != nil {
		return nil, err
	}
	var quant scoresPayload
	if err := a.decodeJSON("analyze scores", raw, &quant); err != nil {
		return nil, err
	}
	usages = append(usages, usage)
	if quant.Scores != nil {
		result.Scores = *quant.Scores
	}
	result.Title = quant.Title

	// Qualitative pass.
	var prompt string
	maxTokens := a.limits.Feedback
	withHistory := len(req.HistoricalTexts) > 0
	switch {
	case mode == ModeQuick:
		prompt = highlightsPrompt(result.Scores)
		if !audio {
			prompt += "\n**Contenido a analizar:**\n" + req.Text
		}
		maxTokens = a.limits.Highlights
	case audio:
		prompt = historicalSection(req.HistoricalTexts) + feedbackPrompt(result.Scores, withHistory) +
			"\n\n**Analiza la transcripción del siguiente audio:**"
	default:
		prompt = feedbackPrompt(result.Scores, withHistory) + historicalSection(req.HistoricalTexts) +
			"\n**Analiza el siguiente guion actual:**\n" + req.Text
	}
	raw, usage, err = a.complete(ctx, "analyze feedback", llm.CompletionRequest{
		SystemPrompt: rhetoricCoachSystem,
		Messages:     userTurn(prompt),
		Attachments:  attachments,
		Temperature:  llm.Temperature(creativeTemperature),
		MaxTokens:    maxTokens,
		JSON:         true,
	})
	if err != nil {
		return nil, err
	}
	var qual qualitativePayload
	if err := a.decodeJSON("analyze feedback", raw, &qual); err != nil {
		return nil, err
	}
	usages = append(usages, usage)

	if audio {
		raw, usage, err = a.complete(ctx, "analyze tone", llm.CompletionRequest{
			SystemPrompt: elocutionSystem,
			Messages:     userTurn(tonePrompt),
			Attachments:  attachments,
			Temperature:  llm.Temperature(0),
			MaxTokens:    a.limits.Tone,
			JSON:         true,
		})
		if err != nil {
			return nil, err
		}
		var tone ToneAnalysis
		if err := a.decodeJSON("analyze tone", raw, &tone); err != nil {
			return nil, err
		}
		usages = append(usages, usage)
		result.ToneAnalysis = &tone
	}

	result.Highlights = qual.Highlights
	// Quick analyses carry highlights only, whatever the model returned.
	if mode == ModeFull {
		result.Feedback = qual.Feedback
		result.Exercises = qual.Exercises
		result.ImprovedText = qual.ImprovedText
		result.ComparisonAnalysis = qual.ComparisonAnalysis
	}
	result.TokenUsage = llm.SumUsage(usages...)

	if withHistory && result.ComparisonAnalysis != nil {
		result.ComparisonAnalysis.AveragePreviousScores = a.baseline(req.PreviousScores, result.Scores)
	}

	var missing []string
	if result.Title == "" {
		missing = append(missing, "title")
	}
	if quant.Scores == nil {
		missing = append(missing, "scores")
	}
	if qual.Highlights == nil {
		missing = append(missing, "highlights")
	}
	if len(missing) > 0 {
		return nil, &StructureError{Provider: a.id, Operation: "analyze", Missing: missing}
	}
	if mode == ModeFull && (result.Feedback == nil || result.Exercises == nil || result.ImprovedText == "") {
		a.log.Warn("coach: incomplete full analysis",
			"provider", a.id,
			"has_feedback", result.Feedback != nil,
			"has_exercises", result.Exercises != nil,
			"has_improved_text", result.ImprovedText != "",
		)
	}
	return result, nil
}

// baseline returns the comparison baseline. Known prior scores are used
// as-is. Otherwise each dimension is estimated as the current score minus a
// uniform offset in [-5, 15), floored and clamped at zero.
func (a *Adapter) baseline(known *PersuasionScores, current PersuasionScores) *PersuasionScores {
	if known != nil {
		k := *known
		return &k
	}
	estimate := func(v float64) float64 {
		return math.Floor(math.Max(0, v-(a.rand()*20-5)))
	}
	return &PersuasionScores{
		Presuasion: estimate(current.Presuasion),
		Ethos:      estimate(current.Ethos),
		Pathos:     estimate(current.Pathos),
		Logos:      estimate(current.Logos),
	}
}

// AnalyzeRolePlay implements [Coach].
func (a *Adapter) AnalyzeRolePlay(ctx context.Context, conversation []ChatMessage, clientProfile, product string) (*RolePlayAnalysisResult, error) {
	if len(conversation) == 0 {
		return nil, ErrEmptyInput
	}
	raw, usage, err := a.complete(ctx, "analyze role-play", llm.CompletionRequest{
		SystemPrompt: salesCoachSystem,
		Messages:     userTurn(rolePlayAnalysisPrompt(conversation, clientProfile, product)),
		Temperature:  llm.Temperature(creativeTemperature),
		MaxTokens:    a.limits.RolePlayAnalysis,
		JSON:         true,
	})
	if err != nil {
		return nil, err
	}
	var out struct {
		Title           string          `json:"title"`
		Scores          *RolePlayScores `json:"scores"`
		KeyMoments      []KeyMoment     `json:"keyMoments"`
		OverallFeedback string          `json:"overallFeedback"`
		Exercises       []Exercise      `json:"exercises"`
	}
	if err := a.decodeJSON("analyze role-play", raw, &out); err != nil {
		return nil, err
	}

	var missing []string
	if out.Title == "" {
		missing = append(missing, "title")
	}
	if out.Scores == nil {
		missing = append(missing, "scores")
	}
	if out.KeyMoments == nil {
		missing = append(missing, "keyMoments")
	}
	if out.OverallFeedback == "" {
		missing = append(missing, "overallFeedback")
	}
	if out.Exercises == nil {
		missing = append(missing, "exercises")
	}
	if len(missing) > 0 {
		return nil, &StructureError{Provider: a.id, Operation: "analyze role-play", Missing: missing}
	}

	result := &RolePlayAnalysisResult{
		ID:              a.newID(),
		Timestamp:       a.now(),
		Title:           out.Title,
		Product:         product,
		ClientProfile:   clientProfile,
		Scores:          *out.Scores,
		KeyMoments:      out.KeyMoments,
		OverallFeedback: out.OverallFeedback,
		Exercises:       out.Exercises,
		Conversation:    slices.Clone(conversation),
		Provider:        a.id,
		TokenUsage:      usage,
	}
	if correct, total := countChoices(conversation); total > 0 {
		result.CorrectChoices = &correct
		result.TotalChoices = &total
	}
	return result, nil
}

// countChoices counts seller turns that recorded a multiple-choice pick.
func countChoices(conversation []ChatMessage) (correct, total int) {
	for _, m := range conversation {
		if m.Role != ChatRoleUser || m.WasCorrect == nil {
			continue
		}
		total++
		if *m.WasCorrect {
			correct++
		}
	}
	return correct, total
}

// GenerateScript implements [Coach].
func (a *Adapter) GenerateScript(ctx context.Context, req ScriptRequest) (string, TokenUsage, error) {
	if strings.TrimSpace(req.Product) == "" {
		return "", TokenUsage{}, ErrEmptyInput
	}
	text, usage, err := a.complete(ctx, "generate script", llm.CompletionRequest{
		Messages:  userTurn(scriptPrompt(req, a.kb.ProductDetails(req.Product), a.kb.FAQ())),
		MaxTokens: a.limits.Script,
	})
	if err != nil {
		return "", TokenUsage{}, err
	}
	return strings.TrimSpace(text), usage, nil
}

// GetRolePlayResponse implements [Coach]. Model turns are sent as assistant
// messages so the backend continues speaking as the client.
func (a *Adapter) GetRolePlayResponse(ctx context.Context, history []ChatMessage, clientProfile, product string) (string, TokenUsage, error) {
	if len(history) == 0 {
		return "", TokenUsage{}, ErrEmptyInput
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == ChatRoleModel {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Text})
	}
	text, usage, err := a.complete(ctx, "role-play reply", llm.CompletionRequest{
		SystemPrompt: rolePlayPersonaPrompt(clientProfile, product, a.kb.ProductDetails(product)),
		Messages:     msgs,
		MaxTokens:    a.limits.RolePlayReply,
	})
	if err != nil {
		return "", TokenUsage{}, err
	}
	return strings.TrimSpace(text), usage, nil
}

// GetRolePlayMultipleChoiceTurn implements [Coach]. An empty history asks
// for the client's opening line.
func (a *Adapter) GetRolePlayMultipleChoiceTurn(ctx context.Context, history []ChatMessage, clientProfile, product string) (*RolePlayTurn, TokenUsage, error) {
	prompt := multipleChoicePrompt(history, clientProfile, product, a.kb.ProductDetails(product), a.kb.FAQ())
	raw, usage, err := a.complete(ctx, "role-play turn", llm.CompletionRequest{
		SystemPrompt: salesCoachSystem,
		Messages:     userTurn(prompt),
		Temperature:  llm.Temperature(creativeTemperature),
		MaxTokens:    a.limits.MultipleChoice,
		JSON:         true,
	})
	if err != nil {
		return nil, TokenUsage{}, err
	}
	var turn RolePlayTurn
	if err := a.decodeJSON("role-play turn", raw, &turn); err != nil {
		return nil, TokenUsage{}, err
	}
	var missing []string
	if turn.ClientResponse == "" {
		missing = append(missing, "clientResponse")
	}
	if len(turn.Options) != 3 {
		missing = append(missing, fmt.Sprintf("options (got %d, want 3)", len(turn.Options)))
	}
	if len(missing) > 0 {
		return nil, TokenUsage{}, &StructureError{Provider: a.id, Operation: "role-play turn", Missing: missing}
	}
	return &turn, usage, nil
}

// GenerateCaseStudy implements [Coach]. It returns ErrCaseStudyUnsupported
// unless the adapter was built with [WithCaseStudies].
func (a *Adapter) GenerateCaseStudy(ctx context.Context, problemType, userNotes string) (*CaseStudy, TokenUsage, error) {
	if !a.caseStudies {
		return nil, TokenUsage{}, ErrCaseStudyUnsupported
	}
	if strings.TrimSpace(problemType) == "" {
		return nil, TokenUsage{}, ErrEmptyInput
	}
	raw, usage, err := a.complete(ctx, "case study", llm.CompletionRequest{
		SystemPrompt: salesCoachSystem,
		Messages:     userTurn(caseStudyPrompt(problemType, userNotes)),
		Temperature:  llm.Temperature(creativeTemperature),
		MaxTokens:    a.limits.CaseStudy,
		JSON:         true,
	})
	if err != nil {
		return nil, TokenUsage{}, err
	}
	var out struct {
		Scenario             *Scenario             `json:"scenario"`
		DeficientInteraction *DeficientInteraction `json:"deficientInteraction"`
		IdealProcess         *IdealProcess         `json:"idealProcess"`
	}
	if err := a.decodeJSON("case study", raw, &out); err != nil {
		return nil, TokenUsage{}, err
	}
	var missing []string
	if out.Scenario == nil {
		missing = append(missing, "scenario")
	}
	if out.DeficientInteraction == nil {
		missing = append(missing, "deficientInteraction")
	}
	if out.IdealProcess == nil {
		missing = append(missing, "idealProcess")
	}
	if len(missing) > 0 {
		return nil, TokenUsage{}, &StructureError{Provider: a.id, Operation: "case study", Missing: missing}
	}
	return &CaseStudy{
		ID:                   a.newID(),
		Timestamp:            a.now(),
		ProblemType:          problemType,
		Scenario:             *out.Scenario,
		DeficientInteraction: *out.DeficientInteraction,
		IdealProcess:         *out.IdealProcess,
		Provider:             a.id,
		TokenUsage:           usage,
	}, usage, nil
}
