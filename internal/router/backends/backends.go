package backends

import (
	"context"
	"fmt"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/config"
)

// Result is the outcome of one generation call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Backend performs the generation call for one tier. Implementations
// honor ctx cancellation; a timeout is reported as an ordinary error.
type Backend interface {
	Generate(ctx context.Context, prompt, systemPrompt, model string, maxTokens int, temperature float32) (*Result, error)
}

const (
	groqBaseURL     = "https://api.groq.com/openai/v1"
	deepseekBaseURL = "https://api.deepseek.com/v1"
	mistralBaseURL  = "https://api.mistral.ai/v1"

	groqDefaultModel      = "llama-3.3-70b-versatile"
	deepseekDefaultModel  = "deepseek-chat"
	mistralDefaultModel   = "mistral-small-latest"
	anthropicDefaultModel = "claude-3-5-haiku-20241022"

	// Frontier dispatches on the cheaper of its two profile models.
	frontierDefaultModel = "gpt-4o-mini"
)

// Manager owns one backend per tier, built from whichever API keys are
// configured, plus the factory for caller-supplied (BYO) credentials.
type Manager struct {
	ollama      *Ollama
	ollamaModel string

	groq     *OpenAICompatible
	deepseek *OpenAICompatible
	mistral  *OpenAICompatible
	openai   *OpenAICompatible
}

// NewManager builds backends for every provider with a configured key.
// The sovereign (Ollama) backend always exists; reachability is checked
// per call.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		ollama:      NewOllama(cfg.OllamaURL),
		ollamaModel: cfg.OllamaModel,
	}

	if cfg.GroqAPIKey != "" {
		m.groq = NewOpenAICompatible("Groq", cfg.GroqAPIKey, groqBaseURL)
	}
	if cfg.DeepSeekAPIKey != "" {
		m.deepseek = NewOpenAICompatible("DeepSeek", cfg.DeepSeekAPIKey, deepseekBaseURL)
	}
	if cfg.MistralAPIKey != "" {
		m.mistral = NewOpenAICompatible("Mistral", cfg.MistralAPIKey, mistralBaseURL)
	}
	if cfg.OpenAIAPIKey != "" {
		m.openai = NewOpenAICompatible("OpenAI", cfg.OpenAIAPIKey, "")
	}

	return m
}

// ForTier returns the backend and dispatch model for t. ok is false when
// the tier has no configured provider key, which the router treats as a
// downgrade, not a failure. byo_key resolves through ForBYO instead.
func (m *Manager) ForTier(t tiers.Tier) (Backend, string, bool) {
	switch t {
	case tiers.Sovereign:
		return m.ollama, m.ollamaModel, true
	case tiers.FastFree:
		if m.groq == nil {
			return nil, "", false
		}
		return m.groq, groqDefaultModel, true
	case tiers.Budget:
		// DeepSeek preferred; Mistral serves when it is the only key.
		if m.deepseek != nil {
			return m.deepseek, deepseekDefaultModel, true
		}
		if m.mistral != nil {
			return m.mistral, mistralDefaultModel, true
		}
		return nil, "", false
	case tiers.Frontier:
		if m.openai == nil {
			return nil, "", false
		}
		return m.openai, frontierDefaultModel, true
	default:
		return nil, "", false
	}
}

type byoProvider struct {
	baseURL string
	model   string
}

var byoProviders = map[string]byoProvider{
	"openai":   {"", frontierDefaultModel},
	"groq":     {groqBaseURL, groqDefaultModel},
	"deepseek": {deepseekBaseURL, deepseekDefaultModel},
	"mistral":  {mistralBaseURL, mistralDefaultModel},
}

// ForBYO builds a one-shot backend from a caller-supplied credential and
// provider name, returning the provider's default model.
func (m *Manager) ForBYO(provider, apiKey string) (Backend, string, error) {
	if provider == "anthropic" {
		return NewAnthropic(apiKey), anthropicDefaultModel, nil
	}
	p, ok := byoProviders[provider]
	if !ok {
		return nil, "", fmt.Errorf("Unknown provider: %s", provider)
	}
	return NewOpenAICompatible(provider, apiKey, p.baseURL), p.model, nil
}

// OllamaHealthy reports whether the local Ollama instance responds.
func (m *Manager) OllamaHealthy(ctx context.Context) bool {
	return m.ollama.Health(ctx)
}
