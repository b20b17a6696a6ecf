package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/lexicon"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newValidator(llm Completer) *Validator {
	return NewValidator(llm, lexicon.Default(), zap.NewNop())
}

func TestValidateParsesJSON(t *testing.T) {
	v := newValidator(&fakeCompleter{
		response: `{"result": "VALID_CASE", "reason": "사기 상담", "suggestion": ""}`,
	})

	r := v.Validate(context.Background(), "보이스피싱 같아요")
	assert.True(t, r.Valid)
	assert.Equal(t, TypeValidCase, r.Type)
	assert.Equal(t, "사기 상담", r.Reason)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
}

func TestValidateParsesFencedJSON(t *testing.T) {
	v := newValidator(&fakeCompleter{
		response: "```json\n{\"result\": \"INVALID_CASE\", \"reason\": \"잡담\"}\n```",
	})

	r := v.Validate(context.Background(), "점심 뭐 먹지")
	assert.False(t, r.Valid)
	assert.Equal(t, TypeInvalidCase, r.Type)
}

func TestValidateKeywordFallback(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantType Type
		wantConf float64
	}{
		{"valid", "분류 결과는 VALID_CASE 입니다", TypeValidCase, 0.8},
		{"invalid wins over substring", "INVALID_CASE: 상담 아님", TypeInvalidCase, 0.7},
		{"clarification", "NEEDS_CLARIFICATION - 정보 부족", TypeNeedsClarification, 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newValidator(&fakeCompleter{response: tt.response})
			r := v.Validate(context.Background(), "input")
			assert.Equal(t, tt.wantType, r.Type)
			assert.InDelta(t, tt.wantConf, r.Confidence, 1e-9)
		})
	}
}

func TestValidateUnparseableResponse(t *testing.T) {
	v := newValidator(&fakeCompleter{response: "죄송합니다, 판단할 수 없습니다."})

	r := v.Validate(context.Background(), "input")
	assert.Equal(t, TypeOpenAIError, r.Type)
	assert.True(t, r.Valid, "unparseable output must not block the pipeline")
	assert.InDelta(t, 0.3, r.Confidence, 1e-9)
}

func TestValidateUnknownLabelRejected(t *testing.T) {
	// a label outside the closed table must not classify
	v := newValidator(&fakeCompleter{response: `{"result": "MAYBE_CASE"}`})

	r := v.Validate(context.Background(), "input")
	assert.Equal(t, TypeOpenAIError, r.Type)
}

func TestValidateLLMError(t *testing.T) {
	v := newValidator(&fakeCompleter{err: errors.New("connection refused")})

	r := v.Validate(context.Background(), "input")
	assert.Equal(t, TypeOpenAIError, r.Type)
	assert.True(t, r.Valid)
	assert.Equal(t, 0.0, r.Confidence)
}

func TestImproveQueryUsesLLM(t *testing.T) {
	v := newValidator(&fakeCompleter{response: "은행 사칭 문자 링크 클릭 유도"})

	out := v.ImproveQuery(context.Background(), "은행에서 이상한 문자가 왔어요")
	assert.Equal(t, "은행 사칭 문자 링크 클릭 유도", out)
}

func TestImproveQueryFallsBackOnError(t *testing.T) {
	v := newValidator(&fakeCompleter{err: errors.New("timeout")})

	// fraud-related input passes through unchanged
	in := "계좌 비밀번호를 달라는 전화를 받았어요"
	assert.Equal(t, in, v.ImproveQuery(context.Background(), in))

	// unrelated input gets the search vocabulary appended
	out := v.ImproveQuery(context.Background(), "오늘 기분이 나빠요")
	assert.Contains(t, out, "사기")
}
