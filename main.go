package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cheatkey/cheatkey/internal/budget"
	"github.com/cheatkey/cheatkey/internal/circuitbreaker"
	"github.com/cheatkey/cheatkey/internal/config"
	"github.com/cheatkey/cheatkey/internal/db"
	"github.com/cheatkey/cheatkey/internal/detection"
	"github.com/cheatkey/cheatkey/internal/embeddings"
	"github.com/cheatkey/cheatkey/internal/health"
	"github.com/cheatkey/cheatkey/internal/httpapi"
	"github.com/cheatkey/cheatkey/internal/lexicon"
	"github.com/cheatkey/cheatkey/internal/llm"
	"github.com/cheatkey/cheatkey/internal/quality"
	"github.com/cheatkey/cheatkey/internal/tracing"
	"github.com/cheatkey/cheatkey/internal/validation"
	"github.com/cheatkey/cheatkey/internal/vectordb"
	"github.com/cheatkey/cheatkey/internal/workflow"
)

// caseIndex joins the embedding service and the vector store into the single
// surface the pipeline consumes.
type caseIndex struct {
	embedder *embeddings.Service
	store    *vectordb.Client
}

func (ci *caseIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	return ci.embedder.Embed(ctx, text)
}

func (ci *caseIndex) Search(ctx context.Context, vec []float32, topK int) ([]vectordb.SearchResult, error) {
	return ci.store.Search(ctx, vec, topK)
}

func (ci *caseIndex) Upsert(ctx context.Context, id string, vec []float32, payload map[string]interface{}) error {
	return ci.store.Upsert(ctx, id, vec, payload)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	circuitbreaker.StartMetricsCollection()

	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}

	trackerOpts := []budget.Option{}
	if cfg.Budget.RateLimitPerSecond > 0 {
		trackerOpts = append(trackerOpts,
			budget.WithRateLimiter(cfg.Budget.RateLimitPerSecond, cfg.Budget.RateLimitBurst))
	}
	costs := budget.NewTracker(budget.Limits{
		DailyCostUSD:            cfg.Budget.DailyCostLimitUSD,
		DailyCalls:              cfg.Budget.DailyCallLimit,
		PerCallCostUSD:          cfg.Budget.PerCallCostCapUSD,
		InputCostPerMillionUSD:  cfg.Budget.InputCostPerMillionUSD,
		OutputCostPerMillionUSD: cfg.Budget.OutputCostPerMillionUSD,
	}, logger, trackerOpts...)

	// Admin endpoints come up first so probes respond while dependencies
	// are still connecting.
	hm := health.NewManager(logger)
	adminMux := http.NewServeMux()
	hm.RegisterRoutes(adminMux)
	httpapi.NewBudgetAdmin(costs, logger).RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.AdminPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("Admin HTTP server listening", zap.Int("port", cfg.Server.AdminPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin HTTP server failed", zap.Error(err))
		}
	}()

	dbClient, err := db.NewClient(&db.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database client", zap.Error(err))
	}
	defer dbClient.Close()
	hm.Register(health.NewPingChecker("postgres", true, 5*time.Second, dbClient.Ping))

	historyStore := db.NewHistoryStore(dbClient.Wrapper(), logger)

	// Redis embedding cache is optional; without it the in-process LRU
	// still serves repeat queries.
	var embedCache embeddings.EmbeddingCache
	if cfg.Embeddings.RedisAddr != "" {
		cache, err := embeddings.NewRedisCache(cfg.Embeddings.RedisAddr, logger)
		if err != nil {
			logger.Warn("Redis embedding cache unavailable, continuing with LRU only",
				zap.String("addr", cfg.Embeddings.RedisAddr),
				zap.Error(err),
			)
		} else {
			embedCache = cache
			hm.Register(health.NewPingChecker("redis", false, 3*time.Second, cache.Ping))
		}
	}

	embedder := embeddings.NewService(embeddings.Config{
		BaseURL:  cfg.Embeddings.BaseURL,
		Model:    cfg.Embeddings.Model,
		Timeout:  cfg.Embeddings.Timeout,
		CacheTTL: cfg.Embeddings.CacheTTL,
		MaxLRU:   cfg.Embeddings.MaxLRU,
	}, embedCache)
	hm.Register(health.NewPingChecker("embeddings", true, 5*time.Second, embedder.Ping))

	vectorStore := vectordb.NewClient(vectordb.Config{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		Collection: cfg.Qdrant.Collection,
		TopK:       cfg.Qdrant.TopK,
		Timeout:    cfg.Qdrant.Timeout,
	}, logger)
	hm.Register(health.NewPingChecker("qdrant", true, 5*time.Second, vectorStore.Ping))

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	hm.Register(health.NewPingChecker("llm", false, 5*time.Second, llmClient.Ping))

	lex := lexicon.Default()
	validator := validation.NewValidator(llmClient, lex, logger)
	scorer := quality.NewScorer(quality.Config{
		MinInputLength:     cfg.Quality.MinInputLength,
		MinAcceptableScore: cfg.Quality.MinAcceptableScore,
	}, lex, logger)

	index := &caseIndex{embedder: embedder, store: vectorStore}
	engine := workflow.NewEngine(workflow.Config{
		MaxAttempts:          cfg.Workflow.MaxAttempts,
		TopK:                 cfg.Qdrant.TopK,
		LowSimilarity:        cfg.Workflow.LowSimilarity,
		ExpectedOutputTokens: cfg.Workflow.ExpectedOutputToken,
	}, index, validator, scorer, costs, lex, logger)

	svc := detection.NewService(detection.Config{
		FeedbackSimilarity: cfg.Workflow.FeedbackSimilarity,
	}, engine, historyStore, index, logger)

	apiSrv := httpapi.StartServer(cfg.Server.Port, svc, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Admin server shutdown failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
