// Package budget enforces the OpenAI spending ceiling for semantic
// validation. The tracker keeps a day-keyed in-memory ledger; admission is
// checked before each LLM call and usage recorded after.
package budget

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cheatkey/cheatkey/internal/metrics"
)

// Ledger entries older than this are dropped lazily on write.
const retentionDays = 7

// Limits are the admission thresholds and token rates. Zero values fall back
// to defaults.
type Limits struct {
	DailyCostUSD   float64
	DailyCalls     int
	PerCallCostUSD float64

	// Cost per million tokens, USD.
	InputCostPerMillionUSD  float64
	OutputCostPerMillionUSD float64
}

// DefaultLimits returns the stock admission thresholds and rates.
func DefaultLimits() Limits {
	return Limits{
		DailyCostUSD:            0.01,
		DailyCalls:              100,
		PerCallCostUSD:          0.001,
		InputCostPerMillionUSD:  0.05,
		OutputCostPerMillionUSD: 0.40,
	}
}

func normalizeLimits(l Limits) Limits {
	def := DefaultLimits()
	if l.DailyCostUSD <= 0 {
		l.DailyCostUSD = def.DailyCostUSD
	}
	if l.DailyCalls <= 0 {
		l.DailyCalls = def.DailyCalls
	}
	if l.PerCallCostUSD <= 0 {
		l.PerCallCostUSD = def.PerCallCostUSD
	}
	if l.InputCostPerMillionUSD <= 0 {
		l.InputCostPerMillionUSD = def.InputCostPerMillionUSD
	}
	if l.OutputCostPerMillionUSD <= 0 {
		l.OutputCostPerMillionUSD = def.OutputCostPerMillionUSD
	}
	return l
}

type dayLedger struct {
	costUSD float64
	calls   int
}

// Tracker is a mutex-guarded daily cost ledger. Safe for concurrent use; it
// is the only state shared across detection requests.
type Tracker struct {
	mu      sync.Mutex
	logger  *zap.Logger
	limits  Limits
	limiter *rate.Limiter
	days    map[string]*dayLedger
	now     func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock injects a clock, used by tests to cross day boundaries.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithRateLimiter adds a call-rate ceiling on top of the cost limits.
func WithRateLimiter(perSecond float64, burst int) Option {
	return func(t *Tracker) {
		if perSecond > 0 {
			t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewTracker creates a cost tracker with the given limits.
func NewTracker(limits Limits, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		logger: logger,
		limits: normalizeLimits(limits),
		days:   make(map[string]*dayLedger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// EstimateTokens approximates the token count of text by character class:
// Hangul at two characters per token, ASCII letters at four, everything else
// at three, plus one for message overhead.
func EstimateTokens(text string) int {
	var hangul, ascii, other int
	for _, r := range text {
		switch {
		case r >= 0xAC00 && r <= 0xD7A3:
			hangul++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			ascii++
		default:
			other++
		}
	}
	return hangul/2 + ascii/4 + other/3 + 1
}

// EstimateCost returns the projected USD cost of one call given the input
// text and the expected completion length in tokens, at the tracker's
// configured rates.
func (t *Tracker) EstimateCost(input string, expectedOutputTokens int) float64 {
	t.mu.Lock()
	inRate, outRate := t.limits.InputCostPerMillionUSD, t.limits.OutputCostPerMillionUSD
	t.mu.Unlock()

	in := EstimateTokens(input)
	return float64(in)/1e6*inRate +
		float64(expectedOutputTokens)/1e6*outRate
}

// CanMakeCall reports whether a call with the given estimated cost is
// admitted under the daily cost limit, daily call limit, and per-call cap.
// Any internal failure admits the call: a broken tracker must not take the
// validation path down with it.
func (t *Tracker) CanMakeCall(estimatedCostUSD float64) (allowed bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Cost tracker panic, allowing call", zap.Any("panic", r))
			allowed = true
		}
	}()

	if t.limiter != nil && !t.limiter.Allow() {
		metrics.BudgetDenials.WithLabelValues("rate_limit").Inc()
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.ledgerLocked()
	switch {
	case estimatedCostUSD > t.limits.PerCallCostUSD:
		metrics.BudgetDenials.WithLabelValues("per_call_cap").Inc()
		t.logger.Warn("LLM call denied: per-call cost cap",
			zap.Float64("estimated_cost_usd", estimatedCostUSD),
			zap.Float64("cap_usd", t.limits.PerCallCostUSD),
		)
		return false
	case day.calls >= t.limits.DailyCalls:
		metrics.BudgetDenials.WithLabelValues("daily_calls").Inc()
		t.logger.Warn("LLM call denied: daily call limit",
			zap.Int("calls_today", day.calls),
			zap.Int("limit", t.limits.DailyCalls),
		)
		return false
	case day.costUSD+estimatedCostUSD > t.limits.DailyCostUSD:
		metrics.BudgetDenials.WithLabelValues("daily_cost").Inc()
		t.logger.Warn("LLM call denied: daily cost limit",
			zap.Float64("cost_today_usd", day.costUSD),
			zap.Float64("estimated_cost_usd", estimatedCostUSD),
			zap.Float64("limit_usd", t.limits.DailyCostUSD),
		)
		return false
	}
	return true
}

// RecordCall adds one call at the given cost to today's ledger and evicts
// entries past retention.
func (t *Tracker) RecordCall(costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.ledgerLocked()
	day.costUSD += costUSD
	day.calls++

	t.evictLocked()
}

// DailyCostUSD returns the recorded cost for the current day.
func (t *Tracker) DailyCostUSD() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledgerLocked().costUSD
}

// DailyCalls returns the recorded call count for the current day.
func (t *Tracker) DailyCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ledgerLocked().calls
}

// Limits returns the current admission thresholds and rates.
func (t *Tracker) Limits() Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// SetLimits replaces the admission thresholds at runtime. Zero values fall
// back to defaults, so partial updates are safe.
func (t *Tracker) SetLimits(limits Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = normalizeLimits(limits)
}

func (t *Tracker) dayKey() string {
	return t.now().UTC().Format("2006-01-02")
}

func (t *Tracker) ledgerLocked() *dayLedger {
	key := t.dayKey()
	day, ok := t.days[key]
	if !ok {
		day = &dayLedger{}
		t.days[key] = day
	}
	return day
}

func (t *Tracker) evictLocked() {
	cutoff := t.now().UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")
	for key := range t.days {
		if key < cutoff {
			delete(t.days, key)
		}
	}
}
