package detection

import (
	"time"

	"github.com/cheatkey/cheatkey/internal/quality"
	"github.com/cheatkey/cheatkey/internal/workflow"
)

// Response is the API-facing shape of one detection run.
type Response struct {
	WorkflowID      string                   `json:"workflowId"`
	Status          workflow.Status          `json:"status"`
	DetectionStatus workflow.DetectionStatus `json:"detectionStatus"`
	RiskLevel       workflow.RiskLevel       `json:"riskLevel,omitempty"`
	ActionType      workflow.ActionType      `json:"actionType"`
	DecisionReason  workflow.DecisionReason  `json:"decisionReason,omitempty"`
	NextAction      string                   `json:"nextAction,omitempty"`

	TopScore    float64 `json:"topScore"`
	ResultCount int     `json:"resultCount"`

	Quality *quality.Assessment `json:"quality,omitempty"`

	ShouldShare   bool                   `json:"shouldShare"`
	ShareTitle    string                 `json:"shareTitle,omitempty"`
	ShareMessage  string                 `json:"shareMessage,omitempty"`
	Categories    []workflow.Category    `json:"categories,omitempty"`
	CategoryGroup workflow.CategoryGroup `json:"categoryGroup,omitempty"`

	ImprovementSuggestions []string `json:"improvementSuggestions,omitempty"`

	HistoryID int64 `json:"historyId,omitempty"`
}

// HistoryItem is one row of a user's detection history.
type HistoryItem struct {
	ID            int64     `json:"id"`
	InputText     string    `json:"inputText"`
	TopScore      float64   `json:"topScore"`
	Status        string    `json:"status"`
	DetectionType string    `json:"detectionType"`
	MatchedCaseID string    `json:"matchedCaseId,omitempty"`
	DetectedAt    time.Time `json:"detectedAt"`
}
