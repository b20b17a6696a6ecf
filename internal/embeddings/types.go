package embeddings

import "time"

// Config controls the embedding service behavior
type Config struct {
	// BaseURL points to the embedding service providing /embeddings
	BaseURL string
	// Model is the embedding model (e.g., text-embedding-3-small)
	Model string
	// Timeout for outbound HTTP calls
	Timeout time.Duration
	// CacheTTL sets TTL for Redis cache entries
	CacheTTL time.Duration
	// MaxLRU controls in-process LRU size
	MaxLRU int
}
