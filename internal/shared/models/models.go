package models

import "time"

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message  string `json:"message"`
	Tier     string `json:"tier,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// TokenUsage reports prompt and completion token counts.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ChatResponse is the reply shape for every /api/chat outcome. Error
// outcomes carry Error (and FallbackTier for quota denials); success
// outcomes carry Response and the accounting fields.
type ChatResponse struct {
	Success      bool        `json:"success"`
	Response     string      `json:"response,omitempty"`
	Tier         string      `json:"tier,omitempty"`
	TierName     string      `json:"tier_name,omitempty"`
	Model        string      `json:"model,omitempty"`
	Cached       bool        `json:"cached"`
	CostUSD      float64     `json:"cost_usd"`
	LatencyMs    int         `json:"latency_ms"`
	Tokens       *TokenUsage `json:"tokens,omitempty"`
	Error        string      `json:"error,omitempty"`
	FallbackTier string      `json:"fallback_tier,omitempty"`
}

// RequestRecord is one append-only metrics row, written once per routed
// request. IdentityHash is the truncated one-way hash of the caller
// identity; the raw identity is never persisted.
type RequestRecord struct {
	ID           string
	Timestamp    time.Time
	IdentityHash string
	Tier         string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int
	CostUSD      float64
	Cached       bool
	Success      bool
}

// UsageStats aggregates the request log at query time.
type UsageStats struct {
	TotalRequests int            `json:"total_requests"`
	TodayRequests int            `json:"today_requests"`
	TodaySpendUSD float64        `json:"today_spend_usd"`
	ByTier        map[string]int `json:"by_tier"`
}
