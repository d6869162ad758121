package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	LogLevel        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	DatabaseURL     string
	NatsURL         string
	NatsToken       string
	LLMProvider     string
	GeminiAPIKey    string
	GeminiModel     string
	EmbeddingModel  string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	APIToken        string

	ClassifyTimeout time.Duration
	SearchTimeout   time.Duration
	OptimizeTimeout time.Duration
	EvalConcurrency int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; variables already set in the process win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            envInt("REFINERY_PORT", 8760),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		RedisAddr:       envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   envStr("REDIS_PASSWORD", ""),
		RedisDB:         envInt("REDIS_DB", 0),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		LLMProvider:     envStr("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    envStr("GEMINI_API_KEY", ""),
		GeminiModel:     envStr("GEMINI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:  envStr("EMBEDDING_MODEL", "embedding-001"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_CHANNEL", ""),
		APIToken:        envStr("REFINERY_API_TOKEN", ""),
		ClassifyTimeout: envDuration("CLASSIFY_TIMEOUT", 30*time.Second),
		SearchTimeout:   envDuration("SEARCH_TIMEOUT", 5*time.Second),
		OptimizeTimeout: envDuration("OPTIMIZE_TIMEOUT", 5*time.Minute),
		EvalConcurrency: envInt("EVAL_CONCURRENCY", 4),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
