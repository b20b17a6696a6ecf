package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/circuitbreaker"
	"github.com/cheatkey/cheatkey/internal/metrics"
)

const historyColumns = "id, user_id, input_text, top_score, status, detection_type, matched_case_id, detected_at"

// HistoryStore reads and writes detection history rows.
type HistoryStore struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	now    func() time.Time
}

// NewHistoryStore creates a history store on an open pool.
func NewHistoryStore(db *circuitbreaker.DatabaseWrapper, logger *zap.Logger) *HistoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryStore{db: db, logger: logger, now: time.Now}
}

// Save inserts one history row and fills in its generated ID.
func (s *HistoryStore) Save(ctx context.Context, h *History) error {
	if h.DetectedAt.IsZero() {
		h.DetectedAt = s.now()
	}

	const q = `
		INSERT INTO detection_history
			(user_id, input_text, top_score, status, detection_type, matched_case_id, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := s.db.GetContext(ctx, &h.ID, q,
		h.UserID, h.InputText, h.TopScore, h.Status, h.DetectionType, h.MatchedCaseID, h.DetectedAt,
	)
	if err != nil {
		metrics.HistoryWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("save history: %w", err)
	}

	metrics.HistoryWrites.WithLabelValues("ok").Inc()
	s.logger.Debug("History saved",
		zap.Int64("id", h.ID),
		zap.String("user_id", h.UserID),
		zap.String("status", h.Status),
	)
	return nil
}

// ListByUser returns the user's history within the period, newest first.
func (s *HistoryStore) ListByUser(ctx context.Context, userID string, period Period) ([]History, error) {
	var rows []History
	var err error

	if start, bounded := period.Start(s.now()); bounded {
		q := fmt.Sprintf(`
			SELECT %s FROM detection_history
			WHERE user_id = $1 AND detected_at >= $2
			ORDER BY detected_at DESC`, historyColumns)
		err = s.db.SelectContext(ctx, &rows, q, userID, start)
	} else {
		q := fmt.Sprintf(`
			SELECT %s FROM detection_history
			WHERE user_id = $1
			ORDER BY detected_at DESC`, historyColumns)
		err = s.db.SelectContext(ctx, &rows, q, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return rows, nil
}

// GetByID fetches one history row. Missing rows return ErrNotFound.
func (s *HistoryStore) GetByID(ctx context.Context, id int64) (*History, error) {
	q := fmt.Sprintf("SELECT %s FROM detection_history WHERE id = $1", historyColumns)

	var h History
	err := s.db.GetContext(ctx, &h, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return &h, nil
}
