package detection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/db"
	"github.com/cheatkey/cheatkey/internal/vectordb"
	"github.com/cheatkey/cheatkey/internal/workflow"
)

type fakeExecutor struct {
	state *workflow.State
}

func (f *fakeExecutor) Execute(_ context.Context, _ string) *workflow.State {
	return f.state
}

type fakeHistory struct {
	saved    []*db.History
	saveErr  error
	rows     []db.History
	byID     map[int64]*db.History
	nextID   int64
	lastList struct {
		userID string
		period db.Period
	}
}

func (f *fakeHistory) Save(_ context.Context, h *db.History) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.nextID++
	h.ID = f.nextID
	f.saved = append(f.saved, h)
	return nil
}

func (f *fakeHistory) ListByUser(_ context.Context, userID string, period db.Period) ([]db.History, error) {
	f.lastList.userID = userID
	f.lastList.period = period
	return f.rows, nil
}

func (f *fakeHistory) GetByID(_ context.Context, id int64) (*db.History, error) {
	h, ok := f.byID[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return h, nil
}

type fakeIndex struct {
	upserts   int32
	upsertErr error
	lastID    string
	lastVec   []float32
	lastLoad  map[string]interface{}
}

func (f *fakeIndex) Upsert(_ context.Context, id string, vec []float32, payload map[string]interface{}) error {
	atomic.AddInt32(&f.upserts, 1)
	f.lastID = id
	f.lastVec = vec
	f.lastLoad = payload
	return f.upsertErr
}

func completedState(topScore float64) *workflow.State {
	return &workflow.State{
		WorkflowID:      "wf-1",
		Input:           "은행 사칭 문자를 받았어요",
		Query:           "은행 사칭 문자를 받았어요",
		Status:          workflow.StatusCompleted,
		DetectionStatus: workflow.StatusDanger,
		RiskLevel:       workflow.RiskHigh,
		ActionType:      workflow.ActionImmediateAction,
		TopScore:        topScore,
		ResultCount:     1,
		SearchResults: []vectordb.SearchResult{{
			ID:    "case-7",
			Score: topScore,
			Payload: map[string]interface{}{
				"keywords": []interface{}{"은행", "사칭"},
			},
		}},
		Embedding:  []float32{0.1, 0.2},
		Categories: []workflow.Category{workflow.CategoryImpersonation},
		FinishedAt: time.Now(),
	}
}

func newService(st *workflow.State, hist *fakeHistory, idx *fakeIndex) *Service {
	return NewService(Config{FeedbackSimilarity: 0.8}, &fakeExecutor{state: st}, hist, idx, zap.NewNop())
}

func TestDetectPersistsCompletedRun(t *testing.T) {
	hist := &fakeHistory{}
	idx := &fakeIndex{}
	svc := newService(completedState(0.65), hist, idx)

	resp, err := svc.Detect(context.Background(), "user-1", "은행 사칭 문자를 받았어요")
	require.NoError(t, err)

	require.Len(t, hist.saved, 1)
	saved := hist.saved[0]
	assert.Equal(t, "user-1", saved.UserID)
	assert.Equal(t, "DANGER", saved.Status)
	assert.Equal(t, "IMPERSONATION", saved.DetectionType)
	assert.Equal(t, "case-7", saved.MatchedCaseID.String)
	assert.Equal(t, saved.ID, resp.HistoryID)
	assert.Equal(t, workflow.StatusDanger, resp.DetectionStatus)
	assert.Equal(t, int32(0), idx.upserts, "below the feedback floor nothing is upserted")
}

func TestDetectSkipsHistoryForRejectedInput(t *testing.T) {
	st := &workflow.State{
		WorkflowID:      "wf-2",
		Status:          workflow.StatusFailed,
		DetectionStatus: workflow.StatusUnknown,
		ActionType:      workflow.ActionInvalidInputCase,
		NextAction:      "사기 의심 상황을 구체적으로 설명해 주세요",
	}
	hist := &fakeHistory{}
	svc := newService(st, hist, &fakeIndex{})

	resp, err := svc.Detect(context.Background(), "user-1", "똥")
	require.NoError(t, err)
	assert.Empty(t, hist.saved)
	assert.Equal(t, workflow.ActionInvalidInputCase, resp.ActionType)
	assert.Zero(t, resp.HistoryID)
}

func TestDetectFeedsBackConfidentMatch(t *testing.T) {
	hist := &fakeHistory{}
	idx := &fakeIndex{}
	svc := newService(completedState(0.9), hist, idx)

	_, err := svc.Detect(context.Background(), "user-1", "은행 사칭 문자를 받았어요")
	require.NoError(t, err)

	require.Equal(t, int32(1), idx.upserts)
	assert.NotEmpty(t, idx.lastID)
	assert.NotEqual(t, "case-7", idx.lastID, "feedback gets a fresh case id")
	assert.Equal(t, []float32{0.1, 0.2}, idx.lastVec, "embedding is reused, not recomputed")
	assert.Equal(t, "user-analyzed", idx.lastLoad["source"])
	assert.Equal(t, "user-1", idx.lastLoad["user_id"])
	assert.Equal(t, []interface{}{"은행", "사칭"}, idx.lastLoad["keywords"])
}

func TestDetectSurvivesHistoryFailure(t *testing.T) {
	hist := &fakeHistory{saveErr: errors.New("db down")}
	svc := newService(completedState(0.65), hist, &fakeIndex{})

	resp, err := svc.Detect(context.Background(), "user-1", "은행 사칭 문자를 받았어요")
	require.NoError(t, err, "verdict survives a history write failure")
	assert.Equal(t, workflow.StatusCompleted, resp.Status)
	assert.Zero(t, resp.HistoryID)
}

func TestDetectSurvivesFeedbackFailure(t *testing.T) {
	idx := &fakeIndex{upsertErr: errors.New("qdrant down")}
	svc := newService(completedState(0.9), &fakeHistory{}, idx)

	_, err := svc.Detect(context.Background(), "user-1", "은행 사칭 문자를 받았어요")
	assert.NoError(t, err)
}

func TestGetHistoryParsesPeriod(t *testing.T) {
	hist := &fakeHistory{rows: []db.History{{ID: 1, UserID: "user-1", Status: "SAFE"}}}
	svc := newService(nil, hist, &fakeIndex{})

	items, err := svc.GetHistory(context.Background(), "user-1", "week")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, db.PeriodWeek, hist.lastList.period)

	_, err = svc.GetHistory(context.Background(), "user-1", "fortnight")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestGetDetailEnforcesOwnership(t *testing.T) {
	hist := &fakeHistory{byID: map[int64]*db.History{
		5: {ID: 5, UserID: "user-2", InputText: "중고거래 사기"},
	}}
	svc := newService(nil, hist, &fakeIndex{})

	_, err := svc.GetDetail(context.Background(), "user-1", 5)
	assert.ErrorIs(t, err, ErrHistoryAccessDenied)

	item, err := svc.GetDetail(context.Background(), "user-2", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), item.ID)

	_, err = svc.GetDetail(context.Background(), "user-1", 404)
	assert.ErrorIs(t, err, db.ErrNotFound)
}
