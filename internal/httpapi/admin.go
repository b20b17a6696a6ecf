package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/budget"
)

// BudgetAdmin exposes the LLM spending limits on the admin mux, next to the
// health and metrics endpoints. Limit changes take effect immediately; no
// restart or config reload involved.
type BudgetAdmin struct {
	tracker *budget.Tracker
	logger  *zap.Logger
}

// NewBudgetAdmin creates the admin handler around a cost tracker.
func NewBudgetAdmin(tracker *budget.Tracker, logger *zap.Logger) *BudgetAdmin {
	return &BudgetAdmin{tracker: tracker, logger: logger}
}

// RegisterRoutes registers budget routes on the provided mux.
func (a *BudgetAdmin) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/budget", a.handleGet)
	mux.HandleFunc("PUT /admin/budget/limits", a.handlePutLimits)
}

type budgetLimitsRequest struct {
	DailyCostUSD            float64 `json:"dailyCostUsd"`
	DailyCalls              int     `json:"dailyCalls"`
	PerCallCostUSD          float64 `json:"perCallCostUsd"`
	InputCostPerMillionUSD  float64 `json:"inputCostPerMillionUsd"`
	OutputCostPerMillionUSD float64 `json:"outputCostPerMillionUsd"`
}

func (a *BudgetAdmin) handleGet(w http.ResponseWriter, r *http.Request) {
	limits := a.tracker.Limits()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits": budgetLimitsRequest{
			DailyCostUSD:            limits.DailyCostUSD,
			DailyCalls:              limits.DailyCalls,
			PerCallCostUSD:          limits.PerCallCostUSD,
			InputCostPerMillionUSD:  limits.InputCostPerMillionUSD,
			OutputCostPerMillionUSD: limits.OutputCostPerMillionUSD,
		},
		"todayCostUsd": a.tracker.DailyCostUSD(),
		"todayCalls":   a.tracker.DailyCalls(),
	})
}

func (a *BudgetAdmin) handlePutLimits(w http.ResponseWriter, r *http.Request) {
	var req budgetLimitsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	a.tracker.SetLimits(budget.Limits{
		DailyCostUSD:            req.DailyCostUSD,
		DailyCalls:              req.DailyCalls,
		PerCallCostUSD:          req.PerCallCostUSD,
		InputCostPerMillionUSD:  req.InputCostPerMillionUSD,
		OutputCostPerMillionUSD: req.OutputCostPerMillionUSD,
	})
	applied := a.tracker.Limits()
	a.logger.Info("Budget limits updated",
		zap.Float64("daily_cost_usd", applied.DailyCostUSD),
		zap.Int("daily_calls", applied.DailyCalls),
		zap.Float64("per_call_cost_usd", applied.PerCallCostUSD),
	)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits": budgetLimitsRequest{
			DailyCostUSD:            applied.DailyCostUSD,
			DailyCalls:              applied.DailyCalls,
			PerCallCostUSD:          applied.PerCallCostUSD,
			InputCostPerMillionUSD:  applied.InputCostPerMillionUSD,
			OutputCostPerMillionUSD: applied.OutputCostPerMillionUSD,
		},
	})
}
