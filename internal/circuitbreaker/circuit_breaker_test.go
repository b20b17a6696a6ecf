package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker(name string, cfg Config) (*CircuitBreaker, *fakeClock) {
	cb := NewCircuitBreaker(name, cfg, zap.NewNop())
	clock := newFakeClock()
	cb.now = clock.Now
	return cb, clock
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error {
		return errors.New("upstream unavailable")
	})
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(context.Background(), func() error { return nil })
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker("llm", Config{FailureThreshold: 3})

	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	assert.Equal(t, StateClosed, cb.State(), "below threshold the breaker stays closed")

	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.State())

	var executed bool
	err := cb.Execute(context.Background(), func() error {
		executed = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, executed, "an open breaker must not run the call")
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cb, _ := newTestBreaker("qdrant", Config{FailureThreshold: 3})

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	require.NoError(t, succeed(cb))
	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	assert.Equal(t, StateClosed, cb.State(), "a success must break the failure streak")

	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb, clock := newTestBreaker("postgres", Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	})

	require.Error(t, fail(cb))
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(31 * time.Second)

	require.NoError(t, succeed(cb))
	assert.Equal(t, StateHalfOpen, cb.State(), "one probe success is not enough to close")

	require.NoError(t, succeed(cb))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker("redis", Config{
		FailureThreshold: 1,
		Timeout:          15 * time.Second,
	})

	require.Error(t, fail(cb))
	clock.Advance(16 * time.Second)

	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, succeed(cb), ErrCircuitBreakerOpen, "the cooldown restarts after a failed probe")
}

func TestBreakerLimitsHalfOpenProbes(t *testing.T) {
	cb, clock := newTestBreaker("embeddings", Config{
		FailureThreshold: 1,
		SuccessThreshold: 10,
		MaxRequests:      2,
		Timeout:          15 * time.Second,
	})

	require.Error(t, fail(cb))
	clock.Advance(16 * time.Second)

	require.NoError(t, succeed(cb))
	require.NoError(t, succeed(cb))
	require.Equal(t, StateHalfOpen, cb.State())

	assert.ErrorIs(t, succeed(cb), ErrTooManyRequests)
}

func TestBreakerClosedWindowRollsOver(t *testing.T) {
	cb, clock := newTestBreaker("llm", Config{
		FailureThreshold: 3,
		Interval:         30 * time.Second,
	})

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))

	clock.Advance(31 * time.Second)

	require.Error(t, fail(cb))
	assert.Equal(t, StateClosed, cb.State(), "failures before the window rolled must not count")

	counts := cb.Counts()
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
}

func TestBreakerCountsWindow(t *testing.T) {
	cb, _ := newTestBreaker("qdrant", Config{FailureThreshold: 5})

	require.NoError(t, succeed(cb))
	require.Error(t, fail(cb))
	require.NoError(t, succeed(cb))

	counts := cb.Counts()
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(2), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
}

func TestBreakerNotifiesStateChanges(t *testing.T) {
	type transition struct {
		name     string
		from, to State
	}
	var transitions []transition

	cb, clock := newTestBreaker("llm", Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, transition{name, from, to})
		},
	})

	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	clock.Advance(11 * time.Second)
	require.NoError(t, succeed(cb))

	require.Len(t, transitions, 3)
	assert.Equal(t, transition{"llm", StateClosed, StateOpen}, transitions[0])
	assert.Equal(t, transition{"llm", StateOpen, StateHalfOpen}, transitions[1])
	assert.Equal(t, transition{"llm", StateHalfOpen, StateClosed}, transitions[2])
}

func TestBreakerDefaultsAppliedForZeroConfig(t *testing.T) {
	cb, _ := newTestBreaker("llm", Config{})

	assert.Equal(t, uint32(3), cb.config.MaxRequests)
	assert.Equal(t, uint32(5), cb.config.FailureThreshold)
	assert.Equal(t, uint32(2), cb.config.SuccessThreshold)
	assert.Equal(t, 10*time.Second, cb.config.Timeout)
	assert.True(t, cb.windowExpiry.IsZero(), "zero interval means the closed window never expires")
}
