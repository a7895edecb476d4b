package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the inference router.
type Config struct {
	// Server
	Host string
	Port string

	// Ollama (sovereign tier)
	OllamaURL   string
	OllamaModel string

	// Provider API keys
	GroqAPIKey     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	MistralAPIKey  string

	// Rate limits
	CallsPerHourPerIP   int
	FrontierPerDayPerIP int

	// Budget
	DailyFrontierBudgetUSD float64

	// Caching
	CacheTTL    time.Duration
	CacheDBPath string
	RedisURL    string

	// Metrics
	MetricsDBPath      string
	MetricsDatabaseURL string

	// Routing
	DefaultTier    string
	RequestTimeout time.Duration

	// Tier profile overrides (optional YAML file)
	TiersConfigPath string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Host:                   getEnv("HOST", "0.0.0.0"),
		Port:                   getEnv("PORT", "8086"),
		OllamaURL:              getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:            getEnv("OLLAMA_MODEL", "gpt-oss:20b"),
		GroqAPIKey:             getEnv("GROQ_API_KEY", ""),
		OpenAIAPIKey:           getEnv("OPENAI_API_KEY", ""),
		DeepSeekAPIKey:         getEnv("DEEPSEEK_API_KEY", ""),
		MistralAPIKey:          getEnv("MISTRAL_API_KEY", ""),
		CallsPerHourPerIP:      getEnvInt("CALLS_PER_HOUR_PER_IP", 20),
		FrontierPerDayPerIP:    getEnvInt("FRONTIER_PER_DAY_PER_IP", 3),
		DailyFrontierBudgetUSD: getEnvFloat("DAILY_FRONTIER_BUDGET_USD", 5.00),
		CacheTTL:               time.Duration(getEnvInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		CacheDBPath:            getEnv("CACHE_DB_PATH", "data/cache.db"),
		RedisURL:               getEnv("REDIS_URL", ""),
		MetricsDBPath:          getEnv("METRICS_DB_PATH", "data/metrics.db"),
		MetricsDatabaseURL:     getEnv("METRICS_DATABASE_URL", ""),
		DefaultTier:            getEnv("DEFAULT_TIER", "sovereign"),
		RequestTimeout:         time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,
		TiersConfigPath:        getEnv("TIERS_CONFIG_PATH", ""),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}

	if cfg.CallsPerHourPerIP <= 0 {
		return nil, fmt.Errorf("CALLS_PER_HOUR_PER_IP must be positive")
	}
	if cfg.FrontierPerDayPerIP <= 0 {
		return nil, fmt.Errorf("FRONTIER_PER_DAY_PER_IP must be positive")
	}
	if cfg.DailyFrontierBudgetUSD < 0 {
		return nil, fmt.Errorf("DAILY_FRONTIER_BUDGET_USD must not be negative")
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
