// Package circuitbreaker guards the service's outbound dependencies (LLM,
// Qdrant, embeddings, Postgres, Redis) so a sick collaborator fails fast
// instead of stalling detection requests.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many probes in half-open state")
)

// Config holds circuit breaker configuration. Zero values fall back to the
// service defaults; Interval zero means the closed-state counting window
// never rolls over on its own.
type Config struct {
	MaxRequests      uint32        // Probes admitted while half-open
	Interval         time.Duration // Closed-state window before counters reset
	Timeout          time.Duration // Open-state cooldown before probing again
	FailureThreshold uint32        // Consecutive failures that trip the breaker
	SuccessThreshold uint32        // Consecutive half-open successes to close again
	OnStateChange    func(name string, from State, to State)
}

// Counts holds the statistics for the current counting window.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreaker implements the circuit breaker pattern. Counting windows
// guard against attributing a result to a window that already rolled over
// while the call was in flight.
type CircuitBreaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mutex        sync.RWMutex
	state        State
	window       uint64
	counts       Counts
	windowExpiry time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, config Config, logger *zap.Logger) *CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
	if config.Interval > 0 {
		cb.windowExpiry = cb.now().Add(config.Interval)
	}
	return cb
}

// Execute runs fn if the breaker admits the request
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	window, err := cb.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(window, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(window, err == nil)
	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.state
}

// Counts returns the statistics for the current window
func (cb *CircuitBreaker) Counts() Counts {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()
	return cb.counts
}

func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.now()
	state, window := cb.refresh(now)

	if state == StateOpen {
		return window, ErrCircuitBreakerOpen
	}
	if state == StateHalfOpen && cb.counts.Requests >= cb.config.MaxRequests {
		return window, ErrTooManyRequests
	}

	cb.counts.Requests++
	return window, nil
}

func (cb *CircuitBreaker) settle(window uint64, success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := cb.now()
	state, current := cb.refresh(now)
	if current != window {
		return
	}

	if success {
		cb.counts.TotalSuccesses++
		cb.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen {
			cb.counts.ConsecutiveSuccesses++
			if cb.counts.ConsecutiveSuccesses >= cb.config.SuccessThreshold {
				cb.setState(StateClosed, now)
			}
		}
		return
	}

	switch state {
	case StateClosed:
		cb.counts.TotalFailures++
		cb.counts.ConsecutiveFailures++
		if cb.counts.ConsecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

// refresh applies any time-driven transition and returns the resulting state
// and window. Callers must hold the mutex.
func (cb *CircuitBreaker) refresh(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.windowExpiry.IsZero() && cb.windowExpiry.Before(now) {
			cb.rollWindow(now)
		}
	case StateOpen:
		if cb.windowExpiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.window
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	cb.rollWindow(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}

	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
	)
}

func (cb *CircuitBreaker) rollWindow(now time.Time) {
	cb.window++
	cb.counts = Counts{}

	switch cb.state {
	case StateClosed:
		if cb.config.Interval > 0 {
			cb.windowExpiry = now.Add(cb.config.Interval)
		} else {
			cb.windowExpiry = time.Time{}
		}
	case StateOpen:
		cb.windowExpiry = now.Add(cb.config.Timeout)
	default: // StateHalfOpen stays until resolved by probe results
		cb.windowExpiry = time.Time{}
	}
}
