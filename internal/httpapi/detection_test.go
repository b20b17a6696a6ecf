package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/db"
	"github.com/cheatkey/cheatkey/internal/detection"
	"github.com/cheatkey/cheatkey/internal/workflow"
)

type fakeService struct {
	resp    *detection.Response
	items   []detection.HistoryItem
	detail  *detection.HistoryItem
	err     error
	lastUID string
}

func (f *fakeService) Detect(_ context.Context, userID, _ string) (*detection.Response, error) {
	f.lastUID = userID
	return f.resp, f.err
}

func (f *fakeService) GetHistory(_ context.Context, userID, _ string) ([]detection.HistoryItem, error) {
	f.lastUID = userID
	return f.items, f.err
}

func (f *fakeService) GetDetail(_ context.Context, userID string, _ int64) (*detection.HistoryItem, error) {
	f.lastUID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

func newMux(svc DetectionService) *http.ServeMux {
	mux := http.NewServeMux()
	NewDetectionHandler(svc, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestHandleDetect(t *testing.T) {
	svc := &fakeService{resp: &detection.Response{
		WorkflowID:      "wf-1",
		Status:          workflow.StatusCompleted,
		DetectionStatus: workflow.StatusDanger,
		ActionType:      workflow.ActionImmediateAction,
		TopScore:        0.9,
	}}
	mux := newMux(svc)

	body := `{"text":"은행 사칭 문자를 받았어요","userId":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/api/detection/case", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", svc.lastUID)

	var got detection.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, workflow.StatusDanger, got.DetectionStatus)
}

func TestHandleDetectRejectedInputIs400(t *testing.T) {
	svc := &fakeService{resp: &detection.Response{
		Status:     workflow.StatusFailed,
		ActionType: workflow.ActionInvalidInputCase,
		NextAction: "사기 의심 상황을 구체적으로 설명해 주세요",
	}}
	mux := newMux(svc)

	body := `{"text":"똥","userId":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/api/detection/case", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var got detection.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.NextAction, "the rejection still carries guidance")
}

func TestHandleDetectSystemFailureIs500(t *testing.T) {
	svc := &fakeService{resp: &detection.Response{
		Status:     workflow.StatusFailed,
		ActionType: workflow.ActionVectorDBFailure,
	}}
	mux := newMux(svc)

	body := `{"text":"은행 사칭 문자","userId":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/api/detection/case", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleDetectValidation(t *testing.T) {
	mux := newMux(&fakeService{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing text", `{"userId":"user-1"}`},
		{"missing user", `{"text":"사기 의심"}`},
		{"unknown field", `{"text":"a","userId":"u","extra":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/api/detection/case", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleHistory(t *testing.T) {
	svc := &fakeService{items: []detection.HistoryItem{{ID: 1, Status: "DANGER"}}}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/detection/history?userId=user-1&period=week", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Items []detection.HistoryItem `json:"items"`
		Count int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, "user-1", svc.lastUID)
}

func TestHandleHistoryRequiresUser(t *testing.T) {
	mux := newMux(&fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/v1/api/detection/history", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHistoryInvalidPeriod(t *testing.T) {
	mux := newMux(&fakeService{err: detection.ErrInvalidPeriod})

	req := httptest.NewRequest(http.MethodGet, "/v1/api/detection/history?userId=user-1&period=fortnight", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDetail(t *testing.T) {
	svc := &fakeService{detail: &detection.HistoryItem{ID: 5, Status: "SAFE"}}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/api/detection/history/5?userId=user-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got detection.HistoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(5), got.ID)
}

func TestHandleDetailErrors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		err  error
		want int
	}{
		{"not found", "/v1/api/detection/history/99?userId=user-1", db.ErrNotFound, http.StatusNotFound},
		{"foreign row", "/v1/api/detection/history/5?userId=user-1", detection.ErrHistoryAccessDenied, http.StatusForbidden},
		{"bad id", "/v1/api/detection/history/abc?userId=user-1", nil, http.StatusBadRequest},
		{"missing user", "/v1/api/detection/history/5", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(&fakeService{err: tt.err})
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
