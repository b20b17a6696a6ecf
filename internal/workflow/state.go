package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cheatkey/cheatkey/internal/quality"
	"github.com/cheatkey/cheatkey/internal/validation"
	"github.com/cheatkey/cheatkey/internal/vectordb"
)

// Status is the lifecycle status of one detection run.
type Status string

const (
	StatusInitialized            Status = "INITIALIZED"
	StatusInputValidating        Status = "INPUT_VALIDATING"
	StatusInputImproving         Status = "INPUT_IMPROVING"
	StatusSearching              Status = "SEARCHING"
	StatusQualityAssessing       Status = "QUALITY_ASSESSING"
	StatusDecisionMaking         Status = "DECISION_MAKING"
	StatusCompleted              Status = "COMPLETED"
	StatusFailed                 Status = "FAILED"
	StatusNeedsHumanIntervention Status = "NEEDS_HUMAN_INTERVENTION"
)

// Step names the pipeline stage being executed.
type Step string

const (
	StepBasicValidation   Step = "BASIC_VALIDATION"
	StepOpenAIValidation  Step = "OPENAI_VALIDATION"
	StepQueryImprovement  Step = "QUERY_IMPROVEMENT"
	StepVectorSearch      Step = "VECTOR_SEARCH"
	StepQualityEvaluation Step = "QUALITY_EVALUATION"
	StepResultAnalysis    Step = "RESULT_ANALYSIS"
	StepFinalDecision     Step = "FINAL_DECISION"
)

// DetectionStatus is the verdict shown to the user.
type DetectionStatus string

const (
	StatusSafe    DetectionStatus = "SAFE"
	StatusWarning DetectionStatus = "WARNING"
	StatusDanger  DetectionStatus = "DANGER"
	StatusUnknown DetectionStatus = "UNKNOWN"
)

// RiskLevel estimates user exposure.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

func riskRank(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

func maxRisk(a, b RiskLevel) RiskLevel {
	if riskRank(b) > riskRank(a) {
		return b
	}
	return a
}

// ActionType tells API callers how to branch on the outcome.
type ActionType string

const (
	ActionImmediateAction          ActionType = "IMMEDIATE_ACTION"
	ActionCommunityShare           ActionType = "COMMUNITY_SHARE"
	ActionManualReview             ActionType = "MANUAL_REVIEW"
	ActionMonitoring               ActionType = "MONITORING"
	ActionNoAction                 ActionType = "NO_ACTION"
	ActionWorkflowFailure          ActionType = "WORKFLOW_FAILURE"
	ActionSystemError              ActionType = "SYSTEM_ERROR"
	ActionOpenAIFailure            ActionType = "OPENAI_FAILURE"
	ActionVectorDBFailure          ActionType = "VECTOR_DB_FAILURE"
	ActionTimeoutError             ActionType = "TIMEOUT_ERROR"
	ActionInputValidationFailure   ActionType = "INPUT_VALIDATION_FAILURE"
	ActionQualityAssessmentFailure ActionType = "QUALITY_ASSESSMENT_FAILURE"
	ActionInvalidInputCase         ActionType = "INVALID_INPUT_CASE"
	ActionAmbiguousInput           ActionType = "AMBIGUOUS_INPUT"
)

// DecisionReason explains why the final decision was taken.
type DecisionReason string

const (
	ReasonHighQualityResults     DecisionReason = "HIGH_QUALITY_RESULTS"
	ReasonMediumQualityResults   DecisionReason = "MEDIUM_QUALITY_RESULTS"
	ReasonLowQualityResults      DecisionReason = "LOW_QUALITY_RESULTS"
	ReasonNoResults              DecisionReason = "NO_RESULTS"
	ReasonInputTooVague          DecisionReason = "INPUT_TOO_VAGUE"
	ReasonCommunityShareSuggested DecisionReason = "COMMUNITY_SHARE_SUGGESTED"
	ReasonSystemFailure          DecisionReason = "SYSTEM_FAILURE"
)

// Category classifies the matched fraud pattern.
type Category string

const (
	CategoryTransaction   Category = "TRANSACTION"
	CategoryInvestment    Category = "INVESTMENT"
	CategoryImpersonation Category = "IMPERSONATION"
	CategoryPhishing      Category = "PHISHING"
)

// CategoryGroup is the coarse bucket shown alongside the category.
type CategoryGroup string

const (
	GroupNormal   CategoryGroup = "NORMAL"
	GroupPhishing CategoryGroup = "PHISHING"
)

// State carries everything one detection run accumulates. Each Execute owns
// its State; nothing here is shared across requests.
type State struct {
	WorkflowID  string
	Input       string // as submitted
	Query       string // normalized, possibly improved, used for search
	Status      Status
	CurrentStep Step

	AttemptCount     int
	OpenAIUsed       bool
	OpenAICallCount  int
	EstimatedCostUSD float64

	Validation    *validation.Result
	SearchResults []vectordb.SearchResult
	Embedding     []float32
	TopScore      float64
	ResultCount   int

	Quality *quality.Assessment

	DetectionStatus DetectionStatus
	RiskLevel       RiskLevel
	ActionType      ActionType
	DecisionReason  DecisionReason
	NextAction      string

	ShouldShare   bool
	ShareTitle    string
	ShareMessage  string
	Categories    []Category
	CategoryGroup CategoryGroup

	ImprovementSuggestions []string

	LastError string
	Log       []string

	StartedAt  time.Time
	FinishedAt time.Time
}

func newState(input string) *State {
	return &State{
		WorkflowID:      uuid.New().String(),
		Input:           input,
		Query:           input,
		Status:          StatusInitialized,
		DetectionStatus: StatusUnknown,
		StartedAt:       time.Now(),
	}
}

// appendLog records a timestamped trace entry for the current step.
func (s *State) appendLog(format string, args ...interface{}) {
	entry := fmt.Sprintf("[%s] %s: %s",
		time.Now().Format(time.RFC3339),
		s.CurrentStep,
		fmt.Sprintf(format, args...),
	)
	s.Log = append(s.Log, entry)
}

// fail terminates the run. All failures are encoded in state; Execute never
// returns an error.
func (s *State) fail(action ActionType, reason DecisionReason, lastError string) {
	s.Status = StatusFailed
	s.DetectionStatus = StatusUnknown
	s.ActionType = action
	s.DecisionReason = reason
	s.LastError = lastError
	s.appendLog("failed: %s (%s)", action, lastError)
}

// ShouldUseLLM gates the OpenAI validation call: once per run, and only
// while attempts remain.
func (s *State) ShouldUseLLM(maxAttempts int) bool {
	return !s.OpenAIUsed && s.AttemptCount < maxAttempts
}

// Failed reports whether the run has terminated unsuccessfully.
func (s *State) Failed() bool {
	return s.Status == StatusFailed
}

// InputRejected reports whether the run failed because of the input itself
// rather than a system fault. Rejections are not persisted to history.
func (s *State) InputRejected() bool {
	return s.ActionType == ActionInvalidInputCase ||
		s.ActionType == ActionAmbiguousInput ||
		s.ActionType == ActionInputValidationFailure
}

// CategoryFromPayload infers the fraud category from a matched case's
// content. Unrecognized content defaults to phishing.
func CategoryFromPayload(payload map[string]interface{}) Category {
	content, _ := payload["content"].(string)
	return categoryFromContent(content)
}

func categoryFromContent(content string) Category {
	switch {
	case containsAny(content, "거래", "중고", "직거래", "택배"):
		return CategoryTransaction
	case containsAny(content, "투자", "주식", "코인", "수익"):
		return CategoryInvestment
	case containsAny(content, "사칭", "기관", "검찰", "경찰"):
		return CategoryImpersonation
	default:
		return CategoryPhishing
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
