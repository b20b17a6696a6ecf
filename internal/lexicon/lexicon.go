// Package lexicon holds the Korean fraud-domain keyword tables shared by
// input validation, quality scoring, and risk estimation. Keeping them in one
// place avoids the drift that comes from each consumer carrying its own copy.
package lexicon

import "strings"

// Lexicon is an immutable set of keyword tables. Construct with Default and
// inject; consumers must not mutate the slices.
type Lexicon struct {
	// FraudKeywords marks input as fraud-related even when it would
	// otherwise be classified as meaningless.
	FraudKeywords []string
	// Greetings are standalone salutations with no detection value.
	Greetings []string
	// HighRiskTerms indicate credential or money-movement exposure.
	HighRiskTerms []string
	// MediumRiskTerms indicate contact or delivery vectors.
	MediumRiskTerms []string
	// QuestionMarkers signal the user is asking for help.
	QuestionMarkers []string
	// SpecificityMarkers signal a concrete incident description.
	SpecificityMarkers []string
	// PlatformMarkers name a channel the interaction happened on.
	PlatformMarkers []string
}

// Default returns the built-in vocabulary.
func Default() *Lexicon {
	return &Lexicon{
		FraudKeywords: []string{
			"피싱", "사기", "사칭", "의심", "이상", "수상",
			"메시지", "링크", "클릭", "계좌", "비밀번호", "카드",
			"결제", "은행", "금액", "송금", "이체", "이메일",
			"문자", "전화", "알림", "경고", "주의", "확인", "검증",
		},
		Greetings: []string{
			"안녕하세요", "안녕", "반갑습니다", "하이", "hi", "hello",
		},
		HighRiskTerms: []string{
			"계좌", "비밀번호", "송금", "이체", "주민등록번호", "신분증", "카드번호",
		},
		MediumRiskTerms: []string{
			"링크", "클릭", "문자", "전화", "사이트", "앱",
		},
		QuestionMarkers: []string{
			"?", "무엇", "어떻게", "뭐", "어떡", "인가요", "할까요",
		},
		SpecificityMarkers: []string{
			"받았는데", "받았습니다", "클릭했는데", "입력했는데", "보냈는데", "요구", "달라고",
		},
		PlatformMarkers: []string{
			"카카오톡", "텔레그램", "문자", "전화", "이메일", "은행", "사이트", "앱",
		},
	}
}

// ContainsFraudKeyword reports whether any fraud keyword occurs in text.
func (l *Lexicon) ContainsFraudKeyword(text string) bool {
	return containsAny(text, l.FraudKeywords)
}

// IsGreeting reports whether text, ignoring case and surrounding space, is a
// standalone greeting.
func (l *Lexicon) IsGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, g := range l.Greetings {
		if t == strings.ToLower(g) {
			return true
		}
	}
	return false
}

// HighestRiskTerm returns the first high-risk term found in text, or the
// first medium-risk term if no high-risk term occurs. The second return is
// "high", "medium", or "" when nothing matched.
func (l *Lexicon) HighestRiskTerm(text string) (string, string) {
	for _, k := range l.HighRiskTerms {
		if strings.Contains(text, k) {
			return k, "high"
		}
	}
	for _, k := range l.MediumRiskTerms {
		if strings.Contains(text, k) {
			return k, "medium"
		}
	}
	return "", ""
}

// HasQuestionMarker reports whether text reads like a question.
func (l *Lexicon) HasQuestionMarker(text string) bool {
	return containsAny(text, l.QuestionMarkers)
}

// HasSpecificityMarker reports whether text describes a concrete incident.
func (l *Lexicon) HasSpecificityMarker(text string) bool {
	return containsAny(text, l.SpecificityMarkers)
}

// HasPlatformMarker reports whether text names a contact channel.
func (l *Lexicon) HasPlatformMarker(text string) bool {
	return containsAny(text, l.PlatformMarkers)
}

func containsAny(text string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
