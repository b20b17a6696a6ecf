// Package vectordb is a minimal Qdrant HTTP client for the fraud case
// collection.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/circuitbreaker"
	ometrics "github.com/cheatkey/cheatkey/internal/metrics"
	"github.com/cheatkey/cheatkey/internal/tracing"
)

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient creates a Qdrant client for the configured collection.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "fraud_cases"
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "case-index", logger)
	return &Client{
		cfg:   cfg,
		base:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpw: httpw,
		log:   logger,
	}
}

// qdrant request/response shapes (simplified)
type qdrantQueryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type qdrantPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantSearchResponse struct {
	Result []qdrantPoint `json:"result"`
	Status string        `json:"status"`
}

// qdrantQueryResponse for the /points/query endpoint which nests points
type qdrantQueryResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search returns the topK most similar cases, descending by score. Prefers
// the modern /points/query endpoint and falls back to /points/search for
// older Qdrant versions.
func (c *Client) Search(ctx context.Context, vec []float32, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		topK = c.cfg.TopK
	}
	start := time.Now()
	collection := c.cfg.Collection

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", fmt.Sprintf("%s/collections/%s/points/query", c.base, collection))
	defer span.End()

	var thr *float64
	if c.cfg.Threshold > 0 {
		t := c.cfg.Threshold
		thr = &t
	}
	reqBody := qdrantQueryRequest{Query: vec, Limit: topK, ScoreThreshold: thr, WithPayload: true}
	buf, _ := json.Marshal(reqBody)

	call := func(url string, body []byte) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		tracing.InjectTraceparent(ctx, req)
		return c.httpw.Do(req)
	}

	urlQuery := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	resp, err := call(urlQuery, buf)
	if err != nil {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("qdrant query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		legacy := map[string]interface{}{"vector": vec, "limit": topK, "with_payload": true}
		if c.cfg.Threshold > 0 {
			legacy["score_threshold"] = c.cfg.Threshold
		}
		buf2, _ := json.Marshal(legacy)
		urlSearch := fmt.Sprintf("%s/collections/%s/points/search", c.base, collection)
		resp2, err2 := call(urlSearch, buf2)
		if err2 != nil {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant query/search failed: %w", err2)
		}
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, fmt.Errorf("qdrant status %d", resp2.StatusCode)
		}
		var sr qdrantSearchResponse
		if err := json.NewDecoder(resp2.Body).Decode(&sr); err != nil {
			ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
			return nil, err
		}
		ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
		return toResults(sr.Result), nil
	}

	var qr qdrantQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		ometrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	ometrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
	return toResults(qr.Result.Points), nil
}

// Upsert inserts or updates one point in the case collection
func (c *Client) Upsert(ctx context.Context, id string, vec []float32, payload map[string]interface{}) error {
	collection := c.cfg.Collection
	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	body := map[string]interface{}{
		"points": []UpsertItem{{ID: id, Vector: vec, Payload: payload}},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	resp, err := c.httpw.Do(req)
	if err != nil {
		ometrics.VectorUpserts.WithLabelValues(collection, "error").Inc()
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ometrics.VectorUpserts.WithLabelValues(collection, "error").Inc()
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	var r UpsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		ometrics.VectorUpserts.WithLabelValues(collection, "error").Inc()
		return err
	}
	ometrics.VectorUpserts.WithLabelValues(collection, "ok").Inc()
	return nil
}

// Ping checks the Qdrant root endpoint, used by the health manager.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("qdrant health status %d", resp.StatusCode)
	}
	return nil
}

func toResults(points []qdrantPoint) []SearchResult {
	out := make([]SearchResult, 0, len(points))
	for _, p := range points {
		out = append(out, SearchResult{
			ID:      fmt.Sprintf("%v", p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return out
}
