package vectordb

import "time"

// Config controls the Qdrant client
type Config struct {
	Host       string
	Port       int
	Collection string
	TopK       int
	Threshold  float64
	Timeout    time.Duration
}

// SearchResult is one matched fraud case, ordered by descending score.
// Payload carries the case document: content, keywords, source, user_id.
type SearchResult struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertItem represents a single point to insert into Qdrant
type UpsertItem struct {
	ID      interface{}            `json:"id,omitempty"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertResponse captures the basic Qdrant upsert response
type UpsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}
