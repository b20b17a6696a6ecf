// Package quality scores how much trust a detection verdict deserves, based
// on search evidence and how well the user described the incident.
package quality

import (
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/lexicon"
	"github.com/cheatkey/cheatkey/internal/vectordb"
)

// Grade buckets the overall score for presentation.
type Grade string

const (
	GradeExcellent    Grade = "EXCELLENT"
	GradeGood         Grade = "GOOD"
	GradeAcceptable   Grade = "ACCEPTABLE"
	GradePoor         Grade = "POOR"
	GradeUnacceptable Grade = "UNACCEPTABLE"
)

// Weights of the overall score: top similarity contributes up to 6 points
// (60%), result count up to 2 (20%), input quality up to 2 (20%).
const (
	similarityWeight = 6.0
	maxScore         = 10.0

	// symbolRatioLimit marks input as meaningless when punctuation and
	// symbols dominate.
	symbolRatioLimit = 0.7
)

// Config tunes the scorer.
type Config struct {
	// MinInputLength in runes; shorter input is meaningless.
	MinInputLength int
	// MinAcceptableScore is the floor for Acceptable.
	MinAcceptableScore float64
}

// DefaultConfig returns the stock scorer thresholds.
func DefaultConfig() Config {
	return Config{
		MinInputLength:     2,
		MinAcceptableScore: 5.0,
	}
}

// Assessment is the scorer verdict for one detection run.
type Assessment struct {
	OverallScore     float64   `json:"overallScore"`
	Grade            Grade     `json:"grade"`
	Reason           string    `json:"reason"`
	Suggestion       string    `json:"suggestion"`
	TopScore         float64   `json:"topScore"`
	ResultCount      int       `json:"resultCount"`
	Acceptable       bool      `json:"acceptable"`
	ImprovementSteps []string  `json:"improvementSteps,omitempty"`
	AssessedAt       time.Time `json:"assessedAt"`
}

// CapScore lowers the overall score to limit and re-derives the grade. The
// orchestrator applies it when the top similarity is too low to trust the
// formula's output.
func (a *Assessment) CapScore(limit float64) {
	if a.OverallScore <= limit {
		return
	}
	a.OverallScore = limit
	a.Grade = gradeFor(limit)
	a.Acceptable = false
}

// Scorer is a pure function of (results, input); it holds no per-request
// state and is safe for concurrent use.
type Scorer struct {
	cfg Config
	lex *lexicon.Lexicon
	log *zap.Logger
}

// NewScorer creates a quality scorer.
func NewScorer(cfg Config, lex *lexicon.Lexicon, logger *zap.Logger) *Scorer {
	if cfg.MinInputLength <= 0 {
		cfg.MinInputLength = 2
	}
	if cfg.MinAcceptableScore <= 0 {
		cfg.MinAcceptableScore = 5.0
	}
	if lex == nil {
		lex = lexicon.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{cfg: cfg, lex: lex, log: logger}
}

// Assess scores the evidence for one detection run. Empty results score 0.
func (s *Scorer) Assess(results []vectordb.SearchResult, input string) Assessment {
	now := time.Now()

	if len(results) == 0 {
		return Assessment{
			OverallScore:     0,
			Grade:            GradeUnacceptable,
			Reason:           "유사한 사례를 찾지 못했습니다",
			Suggestion:       "새로운 유형일 수 있으니 커뮤니티에 공유해 주세요",
			Acceptable:       false,
			ImprovementSteps: s.ImprovementSteps(0),
			AssessedAt:       now,
		}
	}

	topScore := results[0].Score
	score := topScore*similarityWeight + countScore(len(results)) + s.InputQuality(input)
	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}

	a := Assessment{
		OverallScore:     score,
		Grade:            gradeFor(score),
		TopScore:         topScore,
		ResultCount:      len(results),
		Acceptable:       score >= s.cfg.MinAcceptableScore,
		ImprovementSteps: s.ImprovementSteps(score),
		AssessedAt:       now,
	}
	a.Reason, a.Suggestion = narrativeFor(score)

	s.log.Debug("Quality assessed",
		zap.Float64("overall_score", score),
		zap.Float64("top_score", topScore),
		zap.Int("result_count", len(results)),
		zap.String("grade", string(a.Grade)),
	)
	return a
}

// IsMeaningless reports whether input carries no detection value: repeated
// characters, a bare greeting, mostly symbols, or too short. Any fraud
// keyword overrides the verdict.
func (s *Scorer) IsMeaningless(input string) bool {
	t := strings.TrimSpace(input)
	if s.lex.ContainsFraudKeyword(t) {
		return false
	}
	if len([]rune(t)) < s.cfg.MinInputLength {
		return true
	}
	if s.lex.IsGreeting(t) {
		return true
	}
	if hasRepeatedRun(t, 3) {
		return true
	}
	if symbolRatio(t) > symbolRatioLimit {
		return true
	}
	return false
}

// InputQuality rates the description itself on a 0..2 scale: meaningless
// input scores 0, fraud-unrelated input 0.5, otherwise length and the
// question/specificity/platform markers each add a capped amount.
func (s *Scorer) InputQuality(input string) float64 {
	t := strings.TrimSpace(input)
	if s.IsMeaningless(t) {
		return 0
	}
	if !s.lex.ContainsFraudKeyword(t) {
		return 0.5
	}

	var q float64
	switch n := len([]rune(t)); {
	case n >= 30:
		q += 0.5
	case n >= 15:
		q += 0.3
	case n >= 8:
		q += 0.2
	}
	if s.lex.HasQuestionMarker(t) {
		q += 0.5
	}
	if s.lex.HasSpecificityMarker(t) {
		q += 0.5
	}
	if s.lex.HasPlatformMarker(t) {
		q += 0.5
	}
	if q > 2.0 {
		q = 2.0
	}
	return q
}

func countScore(n int) float64 {
	switch {
	case n >= 5:
		return 2.0
	case n >= 3:
		return 1.5
	case n >= 1:
		return 1.0
	default:
		return 0
	}
}

func gradeFor(score float64) Grade {
	switch {
	case score >= 9:
		return GradeExcellent
	case score >= 7:
		return GradeGood
	case score >= 5:
		return GradeAcceptable
	case score >= 3:
		return GradePoor
	default:
		return GradeUnacceptable
	}
}

func narrativeFor(score float64) (reason, suggestion string) {
	switch {
	case score >= 8:
		return "유사 사례가 충분히 확인되었습니다",
			"검색된 사례의 대응 방법을 참고하세요"
	case score >= 6:
		return "참고할 만한 유사 사례가 있습니다",
			"사례를 참고하되 추가 확인을 권장합니다"
	case score >= 4:
		return "유사 사례의 신뢰도가 제한적입니다",
			"더 구체적인 내용을 입력하면 정확도가 올라갑니다"
	default:
		return "신뢰할 만한 유사 사례가 부족합니다",
			"입력 내용을 보완하거나 수동 검토를 권장합니다"
	}
}

// ImprovementSteps returns ordered guidance for weak input. Below the
// acceptable floor the list leads with the most impactful fixes.
func (s *Scorer) ImprovementSteps(score float64) []string {
	var steps []string
	if score < 5.0 {
		steps = append(steps,
			"언제, 어디서, 어떤 경로로 연락을 받았는지 적어 주세요",
			"상대방이 요구한 행동을 구체적으로 설명해 주세요",
		)
	}
	if score < 7.0 {
		steps = append(steps,
			"금액, 계좌, 연락처 등 구체적인 정보를 포함해 주세요",
		)
	}
	return steps
}

func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

func symbolRatio(s string) float64 {
	total := 0
	symbols := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			symbols++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(symbols) / float64(total)
}
