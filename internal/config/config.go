// Package config loads service configuration from a YAML file with
// environment overrides. Defaults live in code so the service starts with an
// empty or missing file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cheatkey/cheatkey/internal/tracing"
)

// Config is the root configuration for the detection service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Budget     BudgetConfig     `mapstructure:"budget"`
	Quality    QualityConfig    `mapstructure:"quality"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Tracing    tracing.Config   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port      int `mapstructure:"port"`
	AdminPort int `mapstructure:"admin_port"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type QdrantConfig struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	TopK       int           `mapstructure:"top_k"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type EmbeddingsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	MaxLRU    int           `mapstructure:"max_lru"`
}

type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type BudgetConfig struct {
	DailyCostLimitUSD       float64 `mapstructure:"daily_cost_limit_usd"`
	DailyCallLimit          int     `mapstructure:"daily_call_limit"`
	PerCallCostCapUSD       float64 `mapstructure:"per_call_cost_cap_usd"`
	InputCostPerMillionUSD  float64 `mapstructure:"input_cost_per_million_usd"`
	OutputCostPerMillionUSD float64 `mapstructure:"output_cost_per_million_usd"`
	RateLimitPerSecond      float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst          int     `mapstructure:"rate_limit_burst"`
}

type QualityConfig struct {
	MinInputLength     int     `mapstructure:"min_input_length"`
	MinAcceptableScore float64 `mapstructure:"min_acceptable_score"`
}

type WorkflowConfig struct {
	MaxAttempts         int     `mapstructure:"max_attempts"`
	LowSimilarity       float64 `mapstructure:"low_similarity"`
	FeedbackSimilarity  float64 `mapstructure:"feedback_similarity"`
	ExpectedOutputToken int     `mapstructure:"expected_output_tokens"`
}

// Load reads configuration from CONFIG_PATH (default config/cheatkey.yaml)
// and applies CHEATKEY_* environment overrides. A missing file is not an
// error; defaults apply.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/cheatkey.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	v.SetEnvPrefix("CHEATKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.admin_port", 2112)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "cheatkey")
	v.SetDefault("postgres.password", "cheatkey")
	v.SetDefault("postgres.database", "cheatkey")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6333)
	v.SetDefault("qdrant.collection", "fraud_cases")
	v.SetDefault("qdrant.top_k", 5)
	v.SetDefault("qdrant.timeout", 5*time.Second)

	v.SetDefault("embeddings.base_url", "http://localhost:8000")
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout", 30*time.Second)
	v.SetDefault("embeddings.cache_ttl", time.Hour)
	v.SetDefault("embeddings.max_lru", 2048)

	v.SetDefault("llm.base_url", "https://api.openai.com")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", 10*time.Second)

	v.SetDefault("budget.daily_cost_limit_usd", 0.01)
	v.SetDefault("budget.daily_call_limit", 100)
	v.SetDefault("budget.per_call_cost_cap_usd", 0.001)
	v.SetDefault("budget.input_cost_per_million_usd", 0.05)
	v.SetDefault("budget.output_cost_per_million_usd", 0.40)
	v.SetDefault("budget.rate_limit_per_second", 5.0)
	v.SetDefault("budget.rate_limit_burst", 10)

	v.SetDefault("quality.min_input_length", 2)
	v.SetDefault("quality.min_acceptable_score", 5.0)

	v.SetDefault("workflow.max_attempts", 2)
	v.SetDefault("workflow.low_similarity", 0.3)
	v.SetDefault("workflow.feedback_similarity", 0.8)
	v.SetDefault("workflow.expected_output_tokens", 100)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "cheatkey-detection")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// DSN builds the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}
