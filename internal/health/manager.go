package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers and serves probe endpoints.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// NewManager creates an empty health manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{checkers: make(map[string]Checker), logger: logger}
}

// Register adds a checker. A later registration with the same name replaces
// the earlier one.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[c.Name()] = c
}

// RunChecks probes all dependencies concurrently.
func (m *Manager) RunChecks(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			res := m.runOne(ctx, c)
			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

func (m *Manager) runOne(ctx context.Context, c Checker) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := CheckResult{
		Component: c.Name(),
		Status:    StatusHealthy,
		Duration:  time.Since(start),
		Critical:  c.IsCritical(),
		Timestamp: time.Now(),
	}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = err.Error()
		m.logger.Warn("Health check failed",
			zap.String("component", c.Name()),
			zap.Bool("critical", c.IsCritical()),
			zap.Error(err),
		)
	}
	return res
}

// IsReady reports whether every critical dependency is healthy.
func (m *Manager) IsReady(ctx context.Context) bool {
	for _, res := range m.RunChecks(ctx) {
		if res.Critical && res.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// RegisterRoutes registers the probe endpoints on the provided mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", m.handleLive)
	mux.HandleFunc("GET /health/ready", m.handleReady)
}

// handleLive always succeeds while the process can serve requests.
func (m *Manager) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

func (m *Manager) handleReady(w http.ResponseWriter, r *http.Request) {
	results := m.RunChecks(r.Context())

	ready := true
	for _, res := range results {
		if res.Critical && res.Status != StatusHealthy {
			ready = false
			break
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":      ready,
		"components": results,
	})
}
