package tiers

// Tier identifies one execution path through the router. The set is
// closed: adding a tier requires a fallback decision in Next.
type Tier string

const (
	// Sovereign runs on the local Ollama instance. Terminal fallback tier.
	Sovereign Tier = "sovereign"
	// FastFree uses Groq's free tier.
	FastFree Tier = "fast_free"
	// Budget uses low-cost cloud APIs (DeepSeek, Mistral).
	Budget Tier = "budget"
	// Frontier uses premium OpenAI models. Subject to daily quota and budget.
	Frontier Tier = "frontier"
	// BYOKey runs against a caller-supplied API key and provider.
	BYOKey Tier = "byo_key"
)

// All returns every tier, cheapest first.
func All() []Tier {
	return []Tier{Sovereign, FastFree, Budget, Frontier, BYOKey}
}

// Parse maps a caller-supplied tier string onto a Tier. Unknown values
// resolve to Sovereign rather than erroring, so stale or malformed
// clients degrade to local inference.
func Parse(s string) Tier {
	switch Tier(s) {
	case Sovereign, FastFree, Budget, Frontier, BYOKey:
		return Tier(s)
	default:
		return Sovereign
	}
}

// Next returns the tier attempted after t when its backend fails, and
// false when t is the end of the chain. The chain is fixed and acyclic:
// frontier -> budget -> fast_free -> sovereign, byo_key -> sovereign.
func Next(t Tier) (Tier, bool) {
	switch t {
	case Frontier:
		return Budget, true
	case Budget:
		return FastFree, true
	case FastFree:
		return Sovereign, true
	case BYOKey:
		return Sovereign, true
	case Sovereign:
		return "", false
	default:
		return "", false
	}
}

// Chain returns the ordered list of tiers attempted starting from t,
// inclusive. Always ends at Sovereign.
func Chain(t Tier) []Tier {
	chain := []Tier{t}
	for cur := t; ; {
		next, ok := Next(cur)
		if !ok {
			return chain
		}
		chain = append(chain, next)
		cur = next
	}
}

// Profile describes the models, pricing, and output budget of a tier.
// Rates are USD per million tokens.
type Profile struct {
	Name         string   `yaml:"name"`
	Models       []string `yaml:"models"`
	CostPer1MIn  float64  `yaml:"cost_per_1m_input"`
	CostPer1MOut float64  `yaml:"cost_per_1m_output"`
	MaxTokens    int      `yaml:"max_tokens"`
}

// DefaultModel returns the first configured model, or "" when the tier
// carries none (byo_key, where the provider decides).
func (p Profile) DefaultModel() string {
	if len(p.Models) == 0 {
		return ""
	}
	return p.Models[0]
}

// Registry holds the per-tier profile table. It is built once at startup
// and read-only afterwards.
type Registry struct {
	profiles map[Tier]Profile
}

// NewRegistry returns a registry with the built-in profiles.
func NewRegistry() *Registry {
	return &Registry{profiles: map[Tier]Profile{
		Sovereign: {
			Name:      "Sovereign (Local)",
			Models:    []string{"gpt-oss:20b", "qwen3:8b"},
			MaxTokens: 2048,
		},
		FastFree: {
			Name:      "Fast Free (Groq)",
			Models:    []string{"llama-3.3-70b-versatile", "mixtral-8x7b-32768"},
			MaxTokens: 4096,
		},
		Budget: {
			Name:         "Budget Cloud",
			Models:       []string{"deepseek-chat", "mistral-small-latest"},
			CostPer1MIn:  0.14,
			CostPer1MOut: 0.28,
			MaxTokens:    4096,
		},
		Frontier: {
			Name:         "Frontier (OpenAI)",
			Models:       []string{"gpt-4o", "gpt-4o-mini"},
			CostPer1MIn:  2.50,
			CostPer1MOut: 10.00,
			MaxTokens:    4096,
		},
		BYOKey: {
			Name:      "Bring Your Own Key",
			MaxTokens: 4096,
		},
	}}
}

// Override replaces the profile for t. Intended for startup configuration
// only; not safe concurrently with readers.
func (r *Registry) Override(t Tier, p Profile) {
	r.profiles[t] = p
}

// Profile returns the profile for t.
func (r *Registry) Profile(t Tier) Profile {
	return r.profiles[t]
}

// Cost computes the USD cost of a call at tier t.
func (r *Registry) Cost(t Tier, inputTokens, outputTokens int) float64 {
	p := r.profiles[t]
	inCost := float64(inputTokens) / 1_000_000 * p.CostPer1MIn
	outCost := float64(outputTokens) / 1_000_000 * p.CostPer1MOut
	return inCost + outCost
}
