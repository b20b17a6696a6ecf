package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/lexicon"
	"github.com/cheatkey/cheatkey/internal/vectordb"
)

func newScorer() *Scorer {
	return NewScorer(DefaultConfig(), lexicon.Default(), zap.NewNop())
}

func results(scores ...float64) []vectordb.SearchResult {
	out := make([]vectordb.SearchResult, len(scores))
	for i, s := range scores {
		out[i] = vectordb.SearchResult{ID: "id", Score: s}
	}
	return out
}

func TestIsMeaningless(t *testing.T) {
	s := newScorer()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"repeated characters", "ㅋㅋㅋㅋ", true},
		{"greeting", "안녕하세요", true},
		{"greeting english", "hello", true},
		{"mostly symbols", "!!!???!!", true},
		{"single character", "똥", true},
		{"empty", "", true},
		{"fraud keyword overrides short", "사기", false},
		{"fraud keyword overrides repetition", "계좌번호를 자꾸ㅋㅋㅋ 물어봐요", false},
		{"normal description", "모르는 번호로 문자가 왔어요", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsMeaningless(tt.input), "input %q", tt.input)
		})
	}
}

func TestInputQuality(t *testing.T) {
	s := newScorer()

	assert.Equal(t, 0.0, s.InputQuality("ㅋㅋㅋㅋ"), "meaningless input scores zero")
	assert.Equal(t, 0.5, s.InputQuality("오늘 날씨가 좋네요"), "fraud-unrelated input scores 0.5")

	// rich description: long, platform, fraud keywords
	rich := "은행에서 문자가 왔는데 링크를 클릭하라고 합니다. 계좌 비밀번호를 입력하라는데 의심스럽습니다"
	q := s.InputQuality(rich)
	assert.GreaterOrEqual(t, q, 1.0)
	assert.LessOrEqual(t, q, 2.0)

	// short fraud mention scores lower than the rich one
	assert.Less(t, s.InputQuality("사기인가요?"), q)
}

func TestAssessEmptyResults(t *testing.T) {
	s := newScorer()

	a := s.Assess(nil, "의심스러운 문자를 받았어요")
	assert.Equal(t, 0.0, a.OverallScore)
	assert.Equal(t, GradeUnacceptable, a.Grade)
	assert.False(t, a.Acceptable)
	assert.NotEmpty(t, a.ImprovementSteps)
}

func TestAssessHighConfidence(t *testing.T) {
	s := newScorer()

	rich := "은행에서 문자가 왔는데 링크를 클릭하라고 합니다. 계좌 비밀번호를 입력하라는데 의심스럽습니다"
	a := s.Assess(results(0.85, 0.8, 0.7, 0.6, 0.5), rich)

	assert.GreaterOrEqual(t, a.OverallScore, 8.0)
	assert.Equal(t, 5, a.ResultCount)
	assert.InDelta(t, 0.85, a.TopScore, 1e-9)
	assert.True(t, a.Acceptable)
	assert.Empty(t, a.ImprovementSteps)
}

func TestAssessIsDeterministic(t *testing.T) {
	s := newScorer()
	in := "링크를 클릭했는데 계좌 정보를 요구합니다"
	r := results(0.72, 0.6, 0.5)

	a1 := s.Assess(r, in)
	a2 := s.Assess(r, in)
	assert.Equal(t, a1.OverallScore, a2.OverallScore)
	assert.Equal(t, a1.Grade, a2.Grade)
}

func TestAssessScoreClamped(t *testing.T) {
	s := newScorer()
	rich := "은행에서 전화가 왔는데 계좌 비밀번호와 카드번호를 달라고 요구했습니다. 어떻게 해야 하나요?"
	a := s.Assess(results(1.0, 1.0, 1.0, 1.0, 1.0, 1.0), rich)
	assert.LessOrEqual(t, a.OverallScore, 10.0)
}

func TestCountScoreSteps(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0}, {1, 1.0}, {2, 1.0}, {3, 1.5}, {4, 1.5}, {5, 2.0}, {9, 2.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countScore(tt.n), "n=%d", tt.n)
	}
}

func TestGradeLadder(t *testing.T) {
	tests := []struct {
		score float64
		want  Grade
	}{
		{9.5, GradeExcellent},
		{9.0, GradeExcellent},
		{8.0, GradeGood},
		{7.0, GradeGood},
		{5.5, GradeAcceptable},
		{4.0, GradePoor},
		{3.0, GradePoor},
		{1.0, GradeUnacceptable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.score), "score=%v", tt.score)
	}
}

func TestImprovementStepsOrdered(t *testing.T) {
	s := newScorer()

	low := s.ImprovementSteps(2.0)
	mid := s.ImprovementSteps(6.0)
	high := s.ImprovementSteps(8.0)

	assert.Len(t, low, 3)
	assert.Len(t, mid, 1)
	assert.Empty(t, high)
	// the weakest input leads with the who/when/where guidance
	assert.Contains(t, low[0], "언제")
}
