package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/budget"
)

func newBudgetAdminMux(t *testing.T) (*http.ServeMux, *budget.Tracker) {
	t.Helper()
	tracker := budget.NewTracker(budget.DefaultLimits(), zap.NewNop())
	mux := http.NewServeMux()
	NewBudgetAdmin(tracker, zap.NewNop()).RegisterRoutes(mux)
	return mux, tracker
}

func TestBudgetAdminReportsLimitsAndSpend(t *testing.T) {
	mux, tracker := newBudgetAdminMux(t)
	tracker.RecordCall(0.0004)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/budget", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Limits       budgetLimitsRequest `json:"limits"`
		TodayCostUSD float64             `json:"todayCostUsd"`
		TodayCalls   int                 `json:"todayCalls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, budget.DefaultLimits().DailyCalls, body.Limits.DailyCalls)
	assert.Equal(t, 1, body.TodayCalls)
	assert.InDelta(t, 0.0004, body.TodayCostUSD, 1e-9)
}

func TestBudgetAdminUpdatesLimits(t *testing.T) {
	mux, tracker := newBudgetAdminMux(t)

	req := httptest.NewRequest(http.MethodPut, "/admin/budget/limits",
		strings.NewReader(`{"dailyCalls":7,"dailyCostUsd":0.5}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	applied := tracker.Limits()
	assert.Equal(t, 7, applied.DailyCalls)
	assert.InDelta(t, 0.5, applied.DailyCostUSD, 1e-9)
	// fields omitted from the request keep their defaults
	assert.InDelta(t, budget.DefaultLimits().PerCallCostUSD, applied.PerCallCostUSD, 1e-12)
}

func TestBudgetAdminRejectsBadJSON(t *testing.T) {
	mux, tracker := newBudgetAdminMux(t)
	before := tracker.Limits()

	req := httptest.NewRequest(http.MethodPut, "/admin/budget/limits",
		strings.NewReader(`{"dailyCalls":`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, before, tracker.Limits())
}
