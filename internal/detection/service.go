// Package detection ties the workflow engine to persistence: it runs the
// pipeline, records the outcome in history, and feeds confident matches back
// into the case index.
package detection

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/db"
	"github.com/cheatkey/cheatkey/internal/workflow"
)

// ErrHistoryAccessDenied is returned when a user requests another user's
// history entry.
var ErrHistoryAccessDenied = errors.New("detection: history belongs to another user")

// ErrInvalidPeriod is returned for an unrecognized history period filter.
var ErrInvalidPeriod = errors.New("detection: invalid period")

// Executor runs one detection pipeline pass.
type Executor interface {
	Execute(ctx context.Context, input string) *workflow.State
}

// HistoryStore persists detection outcomes.
type HistoryStore interface {
	Save(ctx context.Context, h *db.History) error
	ListByUser(ctx context.Context, userID string, period db.Period) ([]db.History, error)
	GetByID(ctx context.Context, id int64) (*db.History, error)
}

// CaseIndex accepts confirmed cases back into the vector index.
type CaseIndex interface {
	Upsert(ctx context.Context, id string, vec []float32, payload map[string]interface{}) error
}

// Config tunes the service.
type Config struct {
	// FeedbackSimilarity is the floor above which a match is written back
	// to the index as a user-analyzed case.
	FeedbackSimilarity float64
}

// Service is the detection application layer.
type Service struct {
	cfg     Config
	engine  Executor
	history HistoryStore
	index   CaseIndex
	logger  *zap.Logger
}

// NewService wires the detection service.
func NewService(cfg Config, engine Executor, history HistoryStore, index CaseIndex, logger *zap.Logger) *Service {
	if cfg.FeedbackSimilarity <= 0 {
		cfg.FeedbackSimilarity = 0.8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, engine: engine, history: history, index: index, logger: logger}
}

// Detect runs the pipeline for one report and persists the outcome. Input
// rejections are returned to the caller but never written to history.
func (s *Service) Detect(ctx context.Context, userID, text string) (*Response, error) {
	st := s.engine.Execute(ctx, text)
	resp := fromState(st)

	if st.InputRejected() {
		return resp, nil
	}

	h := historyFromState(userID, st)
	if err := s.history.Save(ctx, h); err != nil {
		// The verdict is still valid; losing one history row must not
		// fail the request.
		s.logger.Error("Failed to save detection history",
			zap.String("workflow_id", st.WorkflowID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	} else {
		resp.HistoryID = h.ID
	}

	s.feedback(ctx, userID, st)
	return resp, nil
}

// feedback writes a high-confidence match back to the index so the corpus
// grows with confirmed reports.
func (s *Service) feedback(ctx context.Context, userID string, st *workflow.State) {
	if st.TopScore < s.cfg.FeedbackSimilarity || len(st.SearchResults) == 0 || len(st.Embedding) == 0 {
		return
	}

	matched := st.SearchResults[0]
	payload := map[string]interface{}{
		"content":    st.Query,
		"status":     string(st.DetectionStatus),
		"source":     "user-analyzed",
		"user_id":    userID,
		"matched_id": matched.ID,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if kw, ok := matched.Payload["keywords"]; ok {
		payload["keywords"] = kw
	}

	id := uuid.New().String()
	if err := s.index.Upsert(ctx, id, st.Embedding, payload); err != nil {
		s.logger.Warn("Case feedback upsert failed",
			zap.String("workflow_id", st.WorkflowID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Case fed back to index",
		zap.String("case_id", id),
		zap.Float64("top_score", st.TopScore),
	)
}

// GetHistory lists a user's detection history within the period.
func (s *Service) GetHistory(ctx context.Context, userID, period string) ([]HistoryItem, error) {
	p, err := db.ParsePeriod(period)
	if err != nil {
		return nil, ErrInvalidPeriod
	}

	rows, err := s.history.ListByUser(ctx, userID, p)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, historyItem(r))
	}
	return items, nil
}

// GetDetail fetches one history entry, enforcing ownership.
func (s *Service) GetDetail(ctx context.Context, userID string, id int64) (*HistoryItem, error) {
	h, err := s.history.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, ErrHistoryAccessDenied
	}
	item := historyItem(*h)
	return &item, nil
}

func historyFromState(userID string, st *workflow.State) *db.History {
	detectionType := ""
	if len(st.Categories) > 0 {
		detectionType = string(st.Categories[0])
	}
	matched := sql.NullString{}
	if len(st.SearchResults) > 0 {
		matched = sql.NullString{String: st.SearchResults[0].ID, Valid: true}
	}
	return &db.History{
		UserID:        userID,
		InputText:     st.Input,
		TopScore:      st.TopScore,
		Status:        string(st.DetectionStatus),
		DetectionType: detectionType,
		MatchedCaseID: matched,
		DetectedAt:    st.FinishedAt,
	}
}

func historyItem(h db.History) HistoryItem {
	item := HistoryItem{
		ID:            h.ID,
		InputText:     h.InputText,
		TopScore:      h.TopScore,
		Status:        h.Status,
		DetectionType: h.DetectionType,
		DetectedAt:    h.DetectedAt,
	}
	if h.MatchedCaseID.Valid {
		item.MatchedCaseID = h.MatchedCaseID.String
	}
	return item
}

func fromState(st *workflow.State) *Response {
	return &Response{
		WorkflowID:             st.WorkflowID,
		Status:                 st.Status,
		DetectionStatus:        st.DetectionStatus,
		RiskLevel:              st.RiskLevel,
		ActionType:             st.ActionType,
		DecisionReason:         st.DecisionReason,
		NextAction:             st.NextAction,
		TopScore:               st.TopScore,
		ResultCount:            st.ResultCount,
		Quality:                st.Quality,
		ShouldShare:            st.ShouldShare,
		ShareTitle:             st.ShareTitle,
		ShareMessage:           st.ShareMessage,
		Categories:             st.Categories,
		CategoryGroup:          st.CategoryGroup,
		ImprovementSuggestions: st.ImprovementSuggestions,
	}
}
