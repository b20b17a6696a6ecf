// Package health aggregates dependency probes into liveness and readiness
// endpoints.
package health

import (
	"context"
	"time"
)

// CheckStatus represents the result of a health check
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusUnhealthy
)

func (s CheckStatus) String() string {
	if s == StatusHealthy {
		return "healthy"
	}
	return "unhealthy"
}

// MarshalJSON renders the status as its string form.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the string form back into a status.
func (s *CheckStatus) UnmarshalJSON(data []byte) error {
	if string(data) == `"healthy"` {
		*s = StatusHealthy
	} else {
		*s = StatusUnhealthy
	}
	return nil
}

// CheckResult contains the result of a single probe.
type CheckResult struct {
	Component string        `json:"component"`
	Status    CheckStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Critical  bool          `json:"critical"`
	Timestamp time.Time     `json:"timestamp"`
}

// Checker probes one dependency.
type Checker interface {
	// Name returns the unique name of this health check
	Name() string

	// Check performs the health check
	Check(ctx context.Context) error

	// IsCritical returns true if this check's failure should mark the
	// service as not ready
	IsCritical() bool

	// Timeout bounds how long the check may take
	Timeout() time.Duration
}

// PingChecker adapts a ping function into a Checker.
type PingChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	ping     func(ctx context.Context) error
}

// NewPingChecker creates a checker around a dependency's ping function.
func NewPingChecker(name string, critical bool, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PingChecker{name: name, critical: critical, timeout: timeout, ping: ping}
}

func (p *PingChecker) Name() string                    { return p.name }
func (p *PingChecker) Check(ctx context.Context) error { return p.ping(ctx) }
func (p *PingChecker) IsCritical() bool                { return p.critical }
func (p *PingChecker) Timeout() time.Duration          { return p.timeout }
