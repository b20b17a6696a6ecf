// Package workflow runs the multi-stage detection pipeline: validate the
// report, optionally consult the LLM, search the case index, score the
// evidence, and decide. Execute never returns an error; every failure mode
// is encoded in the returned State.
package workflow

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/budget"
	"github.com/cheatkey/cheatkey/internal/lexicon"
	"github.com/cheatkey/cheatkey/internal/metrics"
	"github.com/cheatkey/cheatkey/internal/quality"
	"github.com/cheatkey/cheatkey/internal/validation"
	"github.com/cheatkey/cheatkey/internal/vectordb"
)

// CaseIndex is the embed+search surface of the vector index.
type CaseIndex interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, vec []float32, topK int) ([]vectordb.SearchResult, error)
}

// SemanticValidator is the LLM-backed input classifier.
type SemanticValidator interface {
	Validate(ctx context.Context, input string) validation.Result
	ImproveQuery(ctx context.Context, input string) string
}

// Config tunes the engine.
type Config struct {
	// MaxAttempts bounds how many runs may consult the LLM.
	MaxAttempts int
	// TopK results requested from the index.
	TopK int
	// LowSimilarity is the floor under which matches are not trusted.
	LowSimilarity float64
	// ExpectedOutputTokens sizes the LLM cost estimate.
	ExpectedOutputTokens int
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          2,
		TopK:                 5,
		LowSimilarity:        0.3,
		ExpectedOutputTokens: 100,
	}
}

// Engine orchestrates one detection run per Execute call.
type Engine struct {
	cfg       Config
	index     CaseIndex
	validator SemanticValidator
	scorer    *quality.Scorer
	costs     *budget.Tracker
	lex       *lexicon.Lexicon
	log       *zap.Logger
}

// NewEngine wires the pipeline.
func NewEngine(cfg Config, index CaseIndex, validator SemanticValidator, scorer *quality.Scorer, costs *budget.Tracker, lex *lexicon.Lexicon, logger *zap.Logger) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.LowSimilarity <= 0 {
		cfg.LowSimilarity = 0.3
	}
	if cfg.ExpectedOutputTokens <= 0 {
		cfg.ExpectedOutputTokens = 100
	}
	if lex == nil {
		lex = lexicon.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		index:     index,
		validator: validator,
		scorer:    scorer,
		costs:     costs,
		lex:       lex,
		log:       logger,
	}
}

// Execute runs the full pipeline for one report. It never panics across the
// boundary and never returns an error; inspect the State.
func (e *Engine) Execute(ctx context.Context, input string) (st *State) {
	st = newState(input)
	st.AttemptCount++
	metrics.DetectionsStarted.Inc()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Detection workflow panic",
				zap.String("workflow_id", st.WorkflowID),
				zap.Any("panic", r),
			)
			st.fail(ActionSystemError, ReasonSystemFailure, "internal error")
		}
		st.FinishedAt = time.Now()
		var qscore float64
		if st.Quality != nil {
			qscore = st.Quality.OverallScore
		}
		metrics.RecordDetectionMetrics(string(st.Status), string(st.ActionType), time.Since(start).Seconds(), qscore)
	}()

	steps := []func(context.Context, *State){
		e.basicValidation,
		e.semanticValidation,
		e.queryImprovement,
		e.vectorSearch,
		e.qualityEvaluation,
		e.resultAnalysis,
		e.finalDecision,
	}
	for _, step := range steps {
		if st.Failed() {
			return st
		}
		step(ctx, st)
	}
	if !st.Failed() {
		st.Status = StatusCompleted
		st.appendLog("completed with status %s", st.DetectionStatus)
	}

	e.log.Info("Detection workflow finished",
		zap.String("workflow_id", st.WorkflowID),
		zap.String("status", string(st.Status)),
		zap.String("detection_status", string(st.DetectionStatus)),
		zap.String("action_type", string(st.ActionType)),
		zap.Float64("top_score", st.TopScore),
	)
	return st
}

// basicValidation normalizes whitespace and rejects meaningless input
// before anything costs money.
func (e *Engine) basicValidation(_ context.Context, st *State) {
	st.Status = StatusInputValidating
	st.CurrentStep = StepBasicValidation

	normalized := strings.Join(strings.Fields(st.Input), " ")
	st.Query = normalized

	if normalized == "" {
		st.fail(ActionInputValidationFailure, ReasonInputTooVague, "empty input")
		st.NextAction = "의심스러운 상황을 입력해 주세요"
		return
	}
	if e.scorer.IsMeaningless(normalized) {
		st.fail(ActionInvalidInputCase, ReasonInputTooVague, "meaningless input")
		st.NextAction = "사기 의심 상황을 구체적으로 설명해 주세요"
		return
	}
	st.appendLog("input accepted (%d chars)", len([]rune(normalized)))
}

// semanticValidation consults the LLM once per run, budget permitting. LLM
// trouble degrades to rule-only operation; an explicit INVALID_CASE or
// NEEDS_CLARIFICATION verdict stops the run.
func (e *Engine) semanticValidation(ctx context.Context, st *State) {
	st.CurrentStep = StepOpenAIValidation

	if !st.ShouldUseLLM(e.cfg.MaxAttempts) {
		st.appendLog("skipped: llm already consulted")
		return
	}

	estimated := e.costs.EstimateCost(st.Query, e.cfg.ExpectedOutputTokens)
	if !e.costs.CanMakeCall(estimated) {
		st.appendLog("skipped: budget denied (estimated $%.6f)", estimated)
		return
	}

	result := e.validator.Validate(ctx, st.Query)
	st.OpenAIUsed = true
	st.OpenAICallCount++
	st.EstimatedCostUSD += estimated
	e.costs.RecordCall(estimated)
	st.Validation = &result
	st.appendLog("verdict %s (confidence %.2f)", result.Type, result.Confidence)

	switch result.Type {
	case validation.TypeInvalidCase:
		st.fail(ActionInvalidInputCase, ReasonInputTooVague, "input rejected by semantic validation")
		st.NextAction = result.Suggestion
	case validation.TypeNeedsClarification:
		st.fail(ActionAmbiguousInput, ReasonInputTooVague, "input needs clarification")
		st.NextAction = result.Suggestion
	case validation.TypeOpenAIError:
		e.log.Warn("Semantic validation degraded, continuing on rules",
			zap.String("workflow_id", st.WorkflowID),
		)
	}
}

// queryImprovement rewrites the query when a previous assessment found it
// weak, under the same LLM gate and budget admission as semantic validation.
// With no prior assessment in this run the step is a no-op.
func (e *Engine) queryImprovement(ctx context.Context, st *State) {
	st.Status = StatusInputImproving
	st.CurrentStep = StepQueryImprovement

	if st.Quality == nil || st.Quality.OverallScore >= 5.0 {
		return
	}
	if !st.ShouldUseLLM(e.cfg.MaxAttempts) {
		st.appendLog("skipped: llm already consulted")
		return
	}
	estimated := e.costs.EstimateCost(st.Query, e.cfg.ExpectedOutputTokens)
	if !e.costs.CanMakeCall(estimated) {
		st.appendLog("skipped: budget denied (estimated $%.6f)", estimated)
		return
	}

	improved := e.validator.ImproveQuery(ctx, st.Query)
	st.OpenAIUsed = true
	st.OpenAICallCount++
	st.EstimatedCostUSD += estimated
	e.costs.RecordCall(estimated)
	if improved != "" && improved != st.Query {
		st.appendLog("query improved: %q -> %q", st.Query, improved)
		st.Query = improved
	}
}

// vectorSearch embeds the query and searches the case index. Failures here
// are fatal: without the index there is nothing to decide on.
func (e *Engine) vectorSearch(ctx context.Context, st *State) {
	st.Status = StatusSearching
	st.CurrentStep = StepVectorSearch

	vec, err := e.index.Embed(ctx, st.Query)
	if err != nil {
		e.log.Error("Embedding failed",
			zap.String("workflow_id", st.WorkflowID),
			zap.Error(err),
		)
		st.fail(ActionVectorDBFailure, ReasonSystemFailure, err.Error())
		return
	}
	st.Embedding = vec

	results, err := e.index.Search(ctx, vec, e.cfg.TopK)
	if err != nil {
		e.log.Error("Vector search failed",
			zap.String("workflow_id", st.WorkflowID),
			zap.Error(err),
		)
		st.fail(ActionVectorDBFailure, ReasonSystemFailure, err.Error())
		return
	}

	st.SearchResults = results
	st.ResultCount = len(results)
	if len(results) > 0 {
		st.TopScore = results[0].Score
	}
	st.appendLog("found %d cases, top score %.3f", st.ResultCount, st.TopScore)
}

func (e *Engine) qualityEvaluation(_ context.Context, st *State) {
	st.Status = StatusQualityAssessing
	st.CurrentStep = StepQualityEvaluation

	assessment := e.scorer.Assess(st.SearchResults, st.Query)
	st.Quality = &assessment
	st.ImprovementSuggestions = assessment.ImprovementSteps
	st.appendLog("quality %.2f (%s)", assessment.OverallScore, assessment.Grade)
}

// resultAnalysis maps search evidence to a verdict. Empty or untrusted
// results become UNKNOWN with a community-share recommendation.
func (e *Engine) resultAnalysis(_ context.Context, st *State) {
	st.Status = StatusDecisionMaking
	st.CurrentStep = StepResultAnalysis

	switch {
	case st.ResultCount == 0:
		st.DetectionStatus = StatusUnknown
		st.DecisionReason = ReasonNoResults
		st.ActionType = ActionCommunityShare
		st.ShouldShare = true
		st.Categories = []Category{CategoryPhishing}
		st.ShareTitle = "신종 사기 의심 사례"
		st.ShareMessage = "유사 사례가 없는 새로운 유형일 수 있습니다. 커뮤니티에 공유해 다른 사용자를 보호하세요."
		st.NextAction = "커뮤니티 공유를 권장합니다"
		st.appendLog("no results: recommending community share")

	case st.TopScore < e.cfg.LowSimilarity:
		st.DetectionStatus = StatusUnknown
		st.DecisionReason = ReasonCommunityShareSuggested
		st.ActionType = ActionCommunityShare
		st.ShouldShare = true
		st.Quality.CapScore(3.0)
		st.ImprovementSuggestions = e.scorer.ImprovementSteps(st.Quality.OverallScore)
		st.Categories = []Category{CategoryFromPayload(st.SearchResults[0].Payload)}
		st.ShareTitle = "확인되지 않은 사기 의심 사례"
		st.ShareMessage = "기존 사례와의 유사도가 낮아 판단이 어렵습니다. 커뮤니티 공유를 권장합니다."
		st.NextAction = "커뮤니티 공유를 권장합니다"
		st.appendLog("top score %.3f below %.2f: verdict untrusted", st.TopScore, e.cfg.LowSimilarity)

	default:
		top := st.SearchResults[0]
		st.DetectionStatus = matchedStatus(top)
		st.Categories = []Category{CategoryFromPayload(top.Payload)}
		st.appendLog("matched case %s with status %s", top.ID, st.DetectionStatus)
	}
}

// finalDecision applies the quality-based decision table and the risk
// estimate. Branches already decided in resultAnalysis keep their action.
func (e *Engine) finalDecision(_ context.Context, st *State) {
	st.CurrentStep = StepFinalDecision

	if st.ActionType == "" {
		q := st.Quality.OverallScore
		switch {
		case q >= 8.0:
			st.DecisionReason = ReasonHighQualityResults
			if st.DetectionStatus == StatusDanger {
				st.ActionType = ActionImmediateAction
				st.NextAction = "확인된 사기 수법입니다. 요구에 응하지 말고 즉시 차단하세요."
			} else {
				st.ActionType = ActionMonitoring
				st.NextAction = "검색된 사례의 대응 방법을 참고하세요."
			}
		case q >= 6.0:
			st.DecisionReason = ReasonMediumQualityResults
			st.ActionType = ActionMonitoring
			st.NextAction = "사례를 참고하되 금융기관이나 경찰에 추가 확인을 권장합니다."
		case q >= 4.0:
			st.DecisionReason = ReasonLowQualityResults
			st.ActionType = ActionManualReview
			st.NextAction = "신뢰도가 제한적입니다. 상황을 더 구체적으로 입력해 주세요."
		default:
			st.DecisionReason = ReasonLowQualityResults
			st.ActionType = ActionManualReview
			st.NextAction = "판단 근거가 부족합니다. 입력을 보완하거나 수동 검토를 요청하세요."
		}
	}

	if st.DetectionStatus == StatusSafe {
		st.CategoryGroup = GroupNormal
	} else {
		st.CategoryGroup = GroupPhishing
	}

	st.RiskLevel = e.estimateRisk(st)
	st.appendLog("decision %s, risk %s (%s)", st.ActionType, st.RiskLevel, st.DecisionReason)
}

// estimateRisk joins the quality-derived risk with a keyword scan of the
// original input; the worse of the two wins.
func (e *Engine) estimateRisk(st *State) RiskLevel {
	qualityRisk := RiskHigh
	if st.Quality != nil {
		switch q := st.Quality.OverallScore; {
		case q >= 8.0:
			qualityRisk = RiskLow
		case q >= 6.0:
			qualityRisk = RiskMedium
		}
	}
	if st.ResultCount > 0 && st.TopScore < e.cfg.LowSimilarity {
		qualityRisk = RiskHigh
	}

	keywordRisk := RiskLow
	if _, level := e.lex.HighestRiskTerm(st.Input); level == "high" {
		keywordRisk = RiskHigh
	} else if level == "medium" {
		keywordRisk = RiskMedium
	}

	return maxRisk(qualityRisk, keywordRisk)
}

// matchedStatus derives the verdict from the matched case: an explicit
// payload status wins, otherwise similarity decides.
func matchedStatus(r vectordb.SearchResult) DetectionStatus {
	if s, ok := r.Payload["status"].(string); ok {
		switch DetectionStatus(strings.ToUpper(s)) {
		case StatusSafe, StatusWarning, StatusDanger, StatusUnknown:
			return DetectionStatus(strings.ToUpper(s))
		}
	}
	switch {
	case r.Score >= 0.5:
		return StatusDanger
	case r.Score >= 0.3:
		return StatusWarning
	default:
		return StatusSafe
	}
}
