// Package validation classifies report text with an LLM before the vector
// search runs. The validator never returns an error: an unreachable or
// misbehaving LLM degrades to an OPENAI_ERROR result and the pipeline
// continues on rules alone.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/lexicon"
)

// Type is the closed classification of an input.
type Type string

const (
	TypeValidCase          Type = "VALID_CASE"
	TypeInvalidCase        Type = "INVALID_CASE"
	TypeNeedsClarification Type = "NEEDS_CLARIFICATION"
	TypeOpenAIError        Type = "OPENAI_ERROR"
)

// typeTable is the closed mapping from model output to Type. Anything not
// listed here is treated as an OpenAI error.
var typeTable = map[string]Type{
	"VALID_CASE":          TypeValidCase,
	"INVALID_CASE":        TypeInvalidCase,
	"NEEDS_CLARIFICATION": TypeNeedsClarification,
}

// Result is the validator verdict. Valid=false stops the workflow;
// OPENAI_ERROR keeps Valid=true so LLM trouble never blocks detection.
type Result struct {
	Valid      bool    `json:"valid"`
	Type       Type    `json:"type"`
	Reason     string  `json:"reason"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// Completer is the LLM dependency.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Validator classifies input via the LLM with a parser-strategy chain.
type Validator struct {
	llm     Completer
	lex     *lexicon.Lexicon
	log     *zap.Logger
	parsers []parser
}

type parser func(response string) (Result, bool)

// NewValidator creates a semantic validator.
func NewValidator(llm Completer, lex *lexicon.Lexicon, logger *zap.Logger) *Validator {
	if lex == nil {
		lex = lexicon.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Validator{llm: llm, lex: lex, log: logger}
	// ordered: structured JSON first, keyword scan as fallback
	v.parsers = []parser{parseJSON, parseKeywords}
	return v
}

// Validate classifies the input. Never returns an error.
func (v *Validator) Validate(ctx context.Context, input string) Result {
	prompt := classificationPrompt(input)

	response, err := v.llm.Complete(ctx, prompt)
	if err != nil {
		v.log.Warn("Semantic validation LLM call failed", zap.Error(err))
		return errorResult("AI 검증을 수행하지 못했습니다")
	}

	for _, p := range v.parsers {
		if r, ok := p(response); ok {
			v.log.Debug("Semantic validation parsed",
				zap.String("type", string(r.Type)),
				zap.Float64("confidence", r.Confidence),
			)
			return r
		}
	}

	v.log.Warn("Semantic validation response unparseable",
		zap.String("response", truncate(response, 200)),
	)
	r := errorResult("AI 응답을 해석하지 못했습니다")
	r.Confidence = 0.3
	return r
}

// ImproveQuery asks the LLM to rewrite a weak report into a searchable
// query. On any failure it falls back to rule-based guidance.
func (v *Validator) ImproveQuery(ctx context.Context, input string) string {
	prompt := improvementPrompt(input)

	response, err := v.llm.Complete(ctx, prompt)
	if err != nil {
		v.log.Warn("Query improvement LLM call failed, using rules", zap.Error(err))
		return v.improveByRules(input)
	}
	improved := strings.TrimSpace(response)
	if improved == "" {
		return v.improveByRules(input)
	}
	return improved
}

// improveByRules is the deterministic fallback: it nudges the text toward
// the fraud vocabulary the index is built on.
func (v *Validator) improveByRules(input string) string {
	t := strings.TrimSpace(input)
	if t == "" {
		return t
	}
	if !v.lex.ContainsFraudKeyword(t) {
		return t + " 사기 피해 의심 사례"
	}
	return t
}

func classificationPrompt(input string) string {
	return fmt.Sprintf(`다음 텍스트가 사기/피싱 피해 상담으로 적절한지 분류하세요.

텍스트: %q

JSON으로만 답하세요:
{"result": "VALID_CASE" | "INVALID_CASE" | "NEEDS_CLARIFICATION", "reason": "판단 근거", "suggestion": "사용자 안내"}`, input)
}

func improvementPrompt(input string) string {
	return fmt.Sprintf(`다음 사기 피해 설명을 유사 사례 검색에 적합하도록 핵심 키워드 중심으로 다시 작성하세요. 다시 작성한 문장만 출력하세요.

설명: %q`, input)
}

type jsonVerdict struct {
	Result     string  `json:"result"`
	Reason     string  `json:"reason"`
	Suggestion string  `json:"suggestion"`
	Confidence float64 `json:"confidence"`
}

// parseJSON extracts the first JSON object from the response, tolerating
// markdown fences around it.
func parseJSON(response string) (Result, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}

	var verdict jsonVerdict
	if err := json.Unmarshal([]byte(response[start:end+1]), &verdict); err != nil {
		return Result{}, false
	}

	typ, ok := typeTable[strings.ToUpper(strings.TrimSpace(verdict.Result))]
	if !ok {
		return Result{}, false
	}

	confidence := verdict.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.9
	}
	return Result{
		Valid:      typ == TypeValidCase,
		Type:       typ,
		Reason:     verdict.Reason,
		Suggestion: verdict.Suggestion,
		Confidence: confidence,
	}, true
}

// parseKeywords scans raw text for the classification labels. INVALID_CASE
// is checked before VALID_CASE because the former contains the latter.
func parseKeywords(response string) (Result, bool) {
	upper := strings.ToUpper(response)
	switch {
	case strings.Contains(upper, "INVALID_CASE"):
		return Result{
			Valid:      false,
			Type:       TypeInvalidCase,
			Reason:     "사기 피해 상담과 무관한 내용입니다",
			Suggestion: "사기 의심 상황을 구체적으로 설명해 주세요",
			Confidence: 0.7,
		}, true
	case strings.Contains(upper, "NEEDS_CLARIFICATION"):
		return Result{
			Valid:      false,
			Type:       TypeNeedsClarification,
			Reason:     "내용이 모호하여 판단이 어렵습니다",
			Suggestion: "언제, 어떤 경로로 연락을 받았는지 알려 주세요",
			Confidence: 0.6,
		}, true
	case strings.Contains(upper, "VALID_CASE"):
		return Result{
			Valid:      true,
			Type:       TypeValidCase,
			Reason:     "사기 피해 상담으로 적절합니다",
			Confidence: 0.8,
		}, true
	}
	return Result{}, false
}

func errorResult(reason string) Result {
	return Result{
		Valid:      true,
		Type:       TypeOpenAIError,
		Reason:     reason,
		Confidence: 0,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
