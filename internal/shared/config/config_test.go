package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so ambient shell state
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HOST", "PORT",
		"OLLAMA_URL", "OLLAMA_MODEL",
		"GROQ_API_KEY", "OPENAI_API_KEY", "DEEPSEEK_API_KEY", "MISTRAL_API_KEY",
		"CALLS_PER_HOUR_PER_IP", "FRONTIER_PER_DAY_PER_IP",
		"DAILY_FRONTIER_BUDGET_USD",
		"CACHE_TTL_SECONDS", "CACHE_DB_PATH", "REDIS_URL",
		"METRICS_DB_PATH", "METRICS_DATABASE_URL",
		"DEFAULT_TIER", "REQUEST_TIMEOUT_SECONDS",
		"TIERS_CONFIG_PATH", "LOG_LEVEL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8086" {
		t.Errorf("Port = %q, want 8086", cfg.Port)
	}
	if cfg.OllamaURL != "http://localhost:11434" {
		t.Errorf("OllamaURL = %q", cfg.OllamaURL)
	}
	if cfg.OllamaModel != "gpt-oss:20b" {
		t.Errorf("OllamaModel = %q", cfg.OllamaModel)
	}
	if cfg.CallsPerHourPerIP != 20 {
		t.Errorf("CallsPerHourPerIP = %d, want 20", cfg.CallsPerHourPerIP)
	}
	if cfg.FrontierPerDayPerIP != 3 {
		t.Errorf("FrontierPerDayPerIP = %d, want 3", cfg.FrontierPerDayPerIP)
	}
	if cfg.DailyFrontierBudgetUSD != 5.00 {
		t.Errorf("DailyFrontierBudgetUSD = %v, want 5.00", cfg.DailyFrontierBudgetUSD)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if cfg.DefaultTier != "sovereign" {
		t.Errorf("DefaultTier = %q", cfg.DefaultTier)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.GroqAPIKey != "" || cfg.RedisURL != "" || cfg.MetricsDatabaseURL != "" {
		t.Error("optional values should default to empty")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("CALLS_PER_HOUR_PER_IP", "5")
	t.Setenv("DAILY_FRONTIER_BUDGET_USD", "2.50")
	t.Setenv("CACHE_TTL_SECONDS", "120")
	t.Setenv("DEFAULT_TIER", "fast_free")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.GroqAPIKey != "gsk_test" {
		t.Errorf("GroqAPIKey = %q", cfg.GroqAPIKey)
	}
	if cfg.CallsPerHourPerIP != 5 {
		t.Errorf("CallsPerHourPerIP = %d", cfg.CallsPerHourPerIP)
	}
	if cfg.DailyFrontierBudgetUSD != 2.50 {
		t.Errorf("DailyFrontierBudgetUSD = %v", cfg.DailyFrontierBudgetUSD)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	if cfg.DefaultTier != "fast_free" {
		t.Errorf("DefaultTier = %q", cfg.DefaultTier)
	}
}

func TestLoadMalformedNumberFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("CALLS_PER_HOUR_PER_IP", "twenty")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CallsPerHourPerIP != 20 {
		t.Errorf("CallsPerHourPerIP = %d, want default 20", cfg.CallsPerHourPerIP)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"zero hourly limit", "CALLS_PER_HOUR_PER_IP", "0", "CALLS_PER_HOUR_PER_IP"},
		{"negative frontier limit", "FRONTIER_PER_DAY_PER_IP", "-1", "FRONTIER_PER_DAY_PER_IP"},
		{"negative budget", "DAILY_FRONTIER_BUDGET_USD", "-0.01", "DAILY_FRONTIER_BUDGET_USD"},
		{"zero cache ttl", "CACHE_TTL_SECONDS", "0", "CACHE_TTL_SECONDS"},
		{"zero request timeout", "REQUEST_TIMEOUT_SECONDS", "0", "REQUEST_TIMEOUT_SECONDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("Load() succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
