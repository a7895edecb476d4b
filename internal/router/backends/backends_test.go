package backends

import (
	"testing"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/config"
)

func testConfig() *config.Config {
	return &config.Config{
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "gpt-oss:20b",
	}
}

func TestForTierSovereignAlwaysResolves(t *testing.T) {
	m := NewManager(testConfig())
	backend, model, ok := m.ForTier(tiers.Sovereign)
	if !ok {
		t.Fatal("sovereign must resolve even with no API keys configured")
	}
	if backend == nil {
		t.Fatal("sovereign backend is nil")
	}
	if model != "gpt-oss:20b" {
		t.Errorf("model = %q, want gpt-oss:20b", model)
	}
}

func TestForTierWithoutKeysReportsUnavailable(t *testing.T) {
	m := NewManager(testConfig())
	for _, tier := range []tiers.Tier{tiers.FastFree, tiers.Budget, tiers.Frontier, tiers.BYOKey} {
		if _, _, ok := m.ForTier(tier); ok {
			t.Errorf("ForTier(%s) ok = true with no keys configured", tier)
		}
	}
}

func TestForTierResolvesConfiguredProviders(t *testing.T) {
	cfg := testConfig()
	cfg.GroqAPIKey = "gk"
	cfg.DeepSeekAPIKey = "dk"
	cfg.OpenAIAPIKey = "ok"
	m := NewManager(cfg)

	tests := []struct {
		tier      tiers.Tier
		wantModel string
	}{
		{tiers.FastFree, "llama-3.3-70b-versatile"},
		{tiers.Budget, "deepseek-chat"},
		{tiers.Frontier, "gpt-4o-mini"},
	}
	for _, tt := range tests {
		backend, model, ok := m.ForTier(tt.tier)
		if !ok || backend == nil {
			t.Errorf("ForTier(%s) did not resolve", tt.tier)
			continue
		}
		if model != tt.wantModel {
			t.Errorf("ForTier(%s) model = %q, want %q", tt.tier, model, tt.wantModel)
		}
	}
}

func TestForTierBudgetFallsBackToMistral(t *testing.T) {
	cfg := testConfig()
	cfg.MistralAPIKey = "mk"
	m := NewManager(cfg)

	_, model, ok := m.ForTier(tiers.Budget)
	if !ok {
		t.Fatal("budget must resolve when only the Mistral key is set")
	}
	if model != "mistral-small-latest" {
		t.Errorf("model = %q, want mistral-small-latest", model)
	}
}

func TestForBYO(t *testing.T) {
	m := NewManager(testConfig())

	tests := []struct {
		provider  string
		wantModel string
	}{
		{"openai", "gpt-4o-mini"},
		{"groq", "llama-3.3-70b-versatile"},
		{"deepseek", "deepseek-chat"},
		{"mistral", "mistral-small-latest"},
		{"anthropic", "claude-3-5-haiku-20241022"},
	}
	for _, tt := range tests {
		backend, model, err := m.ForBYO(tt.provider, "user-key")
		if err != nil {
			t.Errorf("ForBYO(%s): %v", tt.provider, err)
			continue
		}
		if backend == nil {
			t.Errorf("ForBYO(%s) backend is nil", tt.provider)
		}
		if model != tt.wantModel {
			t.Errorf("ForBYO(%s) model = %q, want %q", tt.provider, model, tt.wantModel)
		}
	}
}

func TestForBYOUnknownProvider(t *testing.T) {
	m := NewManager(testConfig())
	_, _, err := m.ForBYO("cohere", "user-key")
	if err == nil {
		t.Fatal("want error for an unsupported provider")
	}
	if err.Error() != "Unknown provider: cohere" {
		t.Errorf("error = %q, want %q", err.Error(), "Unknown provider: cohere")
	}
}
