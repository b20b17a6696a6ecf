// Package llm is a thin chat-completions HTTP client. The semantic validator
// is its only consumer; admission control lives in the budget tracker, not
// here.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/circuitbreaker"
	ometrics "github.com/cheatkey/cheatkey/internal/metrics"
	"github.com/cheatkey/cheatkey/internal/tracing"
)

// Config controls the chat-completions client
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls a chat-completions endpoint
type Client struct {
	cfg   Config
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient creates a chat-completions client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	httpw := circuitbreaker.NewHTTPWrapper(httpClient, "llm", "semantic-validation", logger)
	return &Client{cfg: cfg, httpw: httpw, log: logger}
}

// Ping probes the provider's model listing endpoint.
func (c *Client) Ping(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models", c.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpw.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm ping status %d", resp.StatusCode)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends one user prompt and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	url := fmt.Sprintf("%s/v1/chat/completions", c.cfg.BaseURL)

	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	buf, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		ometrics.RecordLLMMetrics(c.cfg.Model, "error", time.Since(start).Seconds(), 0)
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ometrics.RecordLLMMetrics(c.cfg.Model, "error", time.Since(start).Seconds(), 0)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, string(b))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		ometrics.RecordLLMMetrics(c.cfg.Model, "error", time.Since(start).Seconds(), 0)
		return "", err
	}
	if len(cr.Choices) == 0 {
		ometrics.RecordLLMMetrics(c.cfg.Model, "empty", time.Since(start).Seconds(), 0)
		return "", fmt.Errorf("llm returned no choices")
	}

	ometrics.RecordLLMMetrics(c.cfg.Model, "ok", time.Since(start).Seconds(), 0)
	return cr.Choices[0].Message.Content, nil
}
