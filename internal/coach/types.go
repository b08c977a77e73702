package coach

import (
	"time"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// ProviderID selects one of the configured coaching backends.
type ProviderID string

// Known provider identifiers.
const (
	ProviderGemini   ProviderID = "gemini"
	ProviderDeepSeek ProviderID = "deepseek"
	ProviderOpenAI   ProviderID = "openai"
)

// Providers lists the known identifiers in display order.
var Providers = []ProviderID{ProviderGemini, ProviderDeepSeek, ProviderOpenAI}

// Known reports whether id is one of [Providers].
func (id ProviderID) Known() bool {
	switch id {
	case ProviderGemini, ProviderDeepSeek, ProviderOpenAI:
		return true
	}
	return false
}

// AnalysisMode controls how much qualitative feedback AnalyzeContent asks for.
type AnalysisMode string

const (
	// ModeQuick requests highlights only.
	ModeQuick AnalysisMode = "quick"
	// ModeFull adds feedback, exercises, an improved rewrite and, when history
	// is present, a comparison.
	ModeFull AnalysisMode = "full"
)

// TokenUsage is the normalised token count of one or more upstream calls.
type TokenUsage = llm.Usage

// DefaultCategory is returned when categorisation yields no category.
const DefaultCategory = "Otro"

// AudioCategory is assigned to audio submissions, which skip categorisation.
const AudioCategory = "General"

// Audio is an uploaded recording.
type Audio struct {
	Name     string
	MIMEType string
	Data     []byte
}

// AnalysisRequest is the input to AnalyzeContent. Exactly one of Text and
// Audio must be set.
type AnalysisRequest struct {
	Text  string
	Audio *Audio

	// HistoricalTexts are earlier scripts of the same category, oldest first.
	HistoricalTexts []string

	Mode AnalysisMode

	// PreviousScores is the known average of the historical results. When nil
	// and HistoricalTexts is non-empty, a baseline is estimated.
	PreviousScores *PersuasionScores
}

// PersuasionScores rates the four rhetorical dimensions, nominally 0-100.
type PersuasionScores struct {
	Presuasion float64 `json:"presuasion"`
	Ethos      float64 `json:"ethos"`
	Pathos     float64 `json:"pathos"`
	Logos      float64 `json:"logos"`
}

// Highlight marks a phrase of the submitted text and the technique it uses.
// Type is one of presuasion, ethos, pathos or logos.
type Highlight struct {
	Text        string `json:"text"`
	Type        string `json:"type"`
	Explanation string `json:"explanation"`
}

// Example is a before/after rewrite.
type Example struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// FeedbackItem is one piece of advice with an optional illustration.
type FeedbackItem struct {
	Advice  string   `json:"advice"`
	Example *Example `json:"example,omitempty"`
}

// EthosFeedback splits credibility advice into its three components.
type EthosFeedback struct {
	Phronesis FeedbackItem `json:"phronesis"`
	Arete     FeedbackItem `json:"arete"`
	Eunoia    FeedbackItem `json:"eunoia"`
}

// Feedback is the full-mode qualitative feedback.
type Feedback struct {
	Ethos  EthosFeedback `json:"ethos"`
	Pathos FeedbackItem  `json:"pathos"`
	Logos  FeedbackItem  `json:"logos"`
}

// Exercise is a practice task suggested after an analysis.
type Exercise struct {
	Type        string `json:"type,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Scenario    string `json:"scenario,omitempty"`
}

// ComparisonAnalysis contrasts the current script with earlier ones.
type ComparisonAnalysis struct {
	KeyImprovement        string            `json:"keyImprovement"`
	RecurringWeakness     string            `json:"recurringWeakness"`
	StrategicAdvice       string            `json:"strategicAdvice"`
	AveragePreviousScores *PersuasionScores `json:"averagePreviousScores,omitempty"`
}

// ToneAnalysis describes delivery in an audio recording.
type ToneAnalysis struct {
	FillerWordCount int     `json:"fillerWordCount"`
	WordsPerMinute  float64 `json:"wordsPerMinute"`
	Feedback        string  `json:"feedback"`
}

// AnalysisResult is the outcome of AnalyzeContent.
type AnalysisResult struct {
	ID                 string              `json:"id"`
	Timestamp          time.Time           `json:"timestamp"`
	Title              string              `json:"title"`
	OriginalText       string              `json:"originalText"`
	Scores             PersuasionScores    `json:"scores"`
	Highlights         []Highlight         `json:"highlights"`
	Feedback           *Feedback           `json:"feedback,omitempty"`
	Exercises          []Exercise          `json:"exercises,omitempty"`
	ImprovedText       string              `json:"improvedText,omitempty"`
	Category           string              `json:"category"`
	ComparisonAnalysis *ComparisonAnalysis `json:"comparisonAnalysis,omitempty"`
	ToneAnalysis       *ToneAnalysis       `json:"toneAnalysis,omitempty"`
	Provider           ProviderID          `json:"provider"`
	TokenUsage         TokenUsage          `json:"tokenUsage"`
}

// Chat roles.
const (
	ChatRoleUser  = "user"
	ChatRoleModel = "model"
)

// ChatMessage is one role-play turn. WasCorrect is set on seller turns that
// picked a multiple-choice option.
type ChatMessage struct {
	Role       string `json:"role"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	WasCorrect *bool  `json:"wasCorrect,omitempty"`
}

// RolePlayScores rates a role-play session.
type RolePlayScores struct {
	Adaptability      float64 `json:"adaptability"`
	Questioning       float64 `json:"questioning"`
	ObjectionHandling float64 `json:"objectionHandling"`
	Closing           float64 `json:"closing"`
}

// Exchange is a seller/client pair quoted in a key moment.
type Exchange struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// KeyMoment is a praised or criticised exchange.
type KeyMoment struct {
	Type     string   `json:"type"`
	Exchange Exchange `json:"exchange"`
	Feedback string   `json:"feedback"`
}

// RolePlayAnalysisResult is the outcome of AnalyzeRolePlay.
type RolePlayAnalysisResult struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	Title           string         `json:"title"`
	Product         string         `json:"product"`
	ClientProfile   string         `json:"clientProfile"`
	Scores          RolePlayScores `json:"scores"`
	KeyMoments      []KeyMoment    `json:"keyMoments"`
	OverallFeedback string         `json:"overallFeedback"`
	Exercises       []Exercise     `json:"exercises"`
	Conversation    []ChatMessage  `json:"conversation"`
	CorrectChoices  *int           `json:"correctChoices,omitempty"`
	TotalChoices    *int           `json:"totalChoices,omitempty"`
	Provider        ProviderID     `json:"provider"`
	TokenUsage      TokenUsage     `json:"tokenUsage"`
}

// RolePlayOption is one answer offered to the seller.
type RolePlayOption struct {
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation"`
}

// RolePlayTurn is a client reply plus three candidate seller answers.
type RolePlayTurn struct {
	ClientResponse string           `json:"clientResponse"`
	Options        []RolePlayOption `json:"options"`
}

// ScriptRequest is the input to GenerateScript.
type ScriptRequest struct {
	Product   string `json:"product"`
	KeyPoints string `json:"keyPoints"`
	Tone      string `json:"tone"`
	Channel   string `json:"channel"`
}

// Scenario frames a case study.
type Scenario struct {
	ClientProfile string `json:"clientProfile"`
	Problem       string `json:"problem"`
}

// DeficientInteraction is the poorly handled call a case study dissects.
type DeficientInteraction struct {
	Transcript       string   `json:"transcript"`
	CriticalAnalysis []string `json:"criticalAnalysis"`
}

// ProcessStep is one stage of the ideal service process.
type ProcessStep struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ExampleDialog string `json:"exampleDialog"`
}

// IdealProcess is the five-step recommended handling.
type IdealProcess struct {
	Empathy   ProcessStep `json:"step1_empathy"`
	Diagnosis ProcessStep `json:"step2_diagnosis"`
	Solution  ProcessStep `json:"step3_solution"`
	CrossSell ProcessStep `json:"step4_crossSell"`
	Closure   ProcessStep `json:"step5_closure"`
}

// CaseStudy is a generated training case.
type CaseStudy struct {
	ID                   string               `json:"id"`
	Timestamp            time.Time            `json:"timestamp"`
	ProblemType          string               `json:"problemType"`
	Scenario             Scenario             `json:"scenario"`
	DeficientInteraction DeficientInteraction `json:"deficientInteraction"`
	IdealProcess         IdealProcess         `json:"idealProcess"`
	Provider             ProviderID           `json:"provider"`
	TokenUsage           TokenUsage           `json:"tokenUsage"`
}
