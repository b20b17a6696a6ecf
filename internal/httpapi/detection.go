// Package httpapi exposes the detection pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/db"
	"github.com/cheatkey/cheatkey/internal/detection"
	"github.com/cheatkey/cheatkey/internal/tracing"
	"github.com/cheatkey/cheatkey/internal/workflow"
)

// DetectionService is the application surface the handler needs.
type DetectionService interface {
	Detect(ctx context.Context, userID, text string) (*detection.Response, error)
	GetHistory(ctx context.Context, userID, period string) ([]detection.HistoryItem, error)
	GetDetail(ctx context.Context, userID string, id int64) (*detection.HistoryItem, error)
}

// DetectionHandler serves the detection API.
type DetectionHandler struct {
	svc    DetectionService
	logger *zap.Logger
}

// NewDetectionHandler creates a new handler.
func NewDetectionHandler(svc DetectionService, logger *zap.Logger) *DetectionHandler {
	return &DetectionHandler{svc: svc, logger: logger}
}

// RegisterRoutes registers detection routes on the provided mux.
func (h *DetectionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/api/detection/case", h.handleDetect)
	mux.HandleFunc("GET /v1/api/detection/history", h.handleHistory)
	mux.HandleFunc("GET /v1/api/detection/history/{id}", h.handleDetail)
}

type detectRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

func (h *DetectionHandler) handleDetect(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartHTTPSpan(r.Context(), r.Method, r.URL.Path)
	defer span.End()

	var req detectRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Text == "" || req.UserID == "" {
		http.Error(w, `{"error":"text and userId are required"}`, http.StatusBadRequest)
		return
	}

	resp, err := h.svc.Detect(ctx, req.UserID, req.Text)
	if err != nil {
		h.logger.Error("Detection request failed", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, statusFor(resp), resp)
}

func (h *DetectionHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}

	items, err := h.svc.GetHistory(r.Context(), userID, r.URL.Query().Get("period"))
	if err != nil {
		if errors.Is(err, detection.ErrInvalidPeriod) {
			http.Error(w, `{"error":"invalid period"}`, http.StatusBadRequest)
			return
		}
		h.logger.Error("History request failed", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

func (h *DetectionHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid history id"}`, http.StatusBadRequest)
		return
	}

	item, err := h.svc.GetDetail(r.Context(), userID, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, `{"error":"history not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, detection.ErrHistoryAccessDenied):
		http.Error(w, `{"error":"access denied"}`, http.StatusForbidden)
		return
	case err != nil:
		h.logger.Error("History detail request failed", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// statusFor maps the pipeline outcome to an HTTP status. The verdict body is
// returned either way; the status tells clients whether to fix their input.
func statusFor(resp *detection.Response) int {
	switch resp.ActionType {
	case workflow.ActionInvalidInputCase,
		workflow.ActionAmbiguousInput,
		workflow.ActionInputValidationFailure:
		return http.StatusBadRequest
	case workflow.ActionSystemError,
		workflow.ActionVectorDBFailure,
		workflow.ActionOpenAIFailure,
		workflow.ActionTimeoutError,
		workflow.ActionWorkflowFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StartServer starts the detection API server on its own goroutine.
func StartServer(port int, svc DetectionService, logger *zap.Logger) *http.Server {
	handler := NewDetectionHandler(svc, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Starting detection API server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Detection API server failed", zap.Error(err))
		}
	}()
	return srv
}
