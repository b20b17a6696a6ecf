package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func healthy(ctx context.Context) error { return nil }
func broken(ctx context.Context) error  { return errors.New("connection refused") }

func TestRunChecks(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewPingChecker("postgres", true, time.Second, healthy))
	m.Register(NewPingChecker("qdrant", true, time.Second, broken))

	results := m.RunChecks(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["postgres"].Status)
	assert.Equal(t, StatusUnhealthy, results["qdrant"].Status)
	assert.Contains(t, results["qdrant"].Error, "connection refused")
}

func TestIsReady(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewPingChecker("postgres", true, time.Second, healthy))
	m.Register(NewPingChecker("llm", false, time.Second, broken))
	assert.True(t, m.IsReady(context.Background()), "non-critical failures do not block readiness")

	m.Register(NewPingChecker("qdrant", true, time.Second, broken))
	assert.False(t, m.IsReady(context.Background()))
}

func TestCheckerTimeout(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewPingChecker("slow", true, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	assert.False(t, m.IsReady(context.Background()))
}

func TestProbeEndpoints(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.Register(NewPingChecker("postgres", true, time.Second, healthy))
	mux := http.NewServeMux()
	m.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Ready      bool                   `json:"ready"`
		Components map[string]CheckResult `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)

	m.Register(NewPingChecker("qdrant", true, time.Second, broken))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
