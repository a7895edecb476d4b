package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/metrics"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/config"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/models"
)

// healthChecker reports sovereign backend reachability. *backends.Manager
// implements it.
type healthChecker interface {
	OllamaHealthy(ctx context.Context) bool
}

// StatusHandler serves the introspection endpoints: status, tier listing,
// transparency, and the health probe.
type StatusHandler struct {
	checker  healthChecker
	metrics  metrics.Recorder
	registry *tiers.Registry
	cfg      *config.Config
	started  time.Time
}

func NewStatusHandler(checker healthChecker, recorder metrics.Recorder, registry *tiers.Registry, cfg *config.Config) *StatusHandler {
	return &StatusHandler{
		checker:  checker,
		metrics:  recorder,
		registry: registry,
		cfg:      cfg,
		started:  time.Now(),
	}
}

type budgetStatus struct {
	LimitUSD     float64 `json:"limit_usd"`
	SpentUSD     float64 `json:"spent_usd"`
	RemainingUSD float64 `json:"remaining_usd"`
}

type tierStatus struct {
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	CostPer1M string   `json:"cost_per_1m"`
}

type statusResponse struct {
	Status            string                `json:"status"`
	UptimeSeconds     float64               `json:"uptime_seconds"`
	OllamaAvailable   bool                  `json:"ollama_available"`
	APIKeysConfigured map[string]bool       `json:"api_keys_configured"`
	DailyBudget       budgetStatus          `json:"daily_budget"`
	Stats             models.UsageStats     `json:"stats"`
	Tiers             map[string]tierStatus `json:"tiers"`
}

// HandleStatus handles GET /api/status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.metrics.Stats(ctx)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	tierTable := make(map[string]tierStatus, len(tiers.All()))
	for _, t := range tiers.All() {
		p := h.registry.Profile(t)
		tierTable[string(t)] = tierStatus{
			Name:      p.Name,
			Models:    p.Models,
			CostPer1M: fmt.Sprintf("$%g/$%g", p.CostPer1MIn, p.CostPer1MOut),
		}
	}

	respondJSON(w, http.StatusOK, statusResponse{
		Status:          "running",
		UptimeSeconds:   time.Since(h.started).Seconds(),
		OllamaAvailable: h.checker.OllamaHealthy(ctx),
		APIKeysConfigured: map[string]bool{
			"groq":     h.cfg.GroqAPIKey != "",
			"openai":   h.cfg.OpenAIAPIKey != "",
			"deepseek": h.cfg.DeepSeekAPIKey != "",
			"mistral":  h.cfg.MistralAPIKey != "",
		},
		DailyBudget: budgetStatus{
			LimitUSD:     h.cfg.DailyFrontierBudgetUSD,
			SpentUSD:     stats.TodaySpendUSD,
			RemainingUSD: round4(h.cfg.DailyFrontierBudgetUSD - stats.TodaySpendUSD),
		},
		Stats: stats,
		Tiers: tierTable,
	})
}

type tierListing struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
	Cost   string   `json:"cost"`
}

// HandleTiers handles GET /api/tiers.
func (h *StatusHandler) HandleTiers(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]tierListing, len(tiers.All()))
	for _, t := range tiers.All() {
		p := h.registry.Profile(t)
		cost := "free"
		if p.CostPer1MIn != 0 {
			cost = fmt.Sprintf("~$%g/1M tokens", p.CostPer1MOut)
		}
		out[string(t)] = tierListing{Name: p.Name, Models: p.Models, Cost: cost}
	}
	respondJSON(w, http.StatusOK, out)
}

type transparencyCost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

type transparencyTier struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	IsLocal   bool             `json:"is_local"`
	Models    []string         `json:"models"`
	CostPer1M transparencyCost `json:"cost_per_1m"`
}

type transparencyDataFlow struct {
	Processing string `json:"processing"`
	Storage    string `json:"storage"`
	Network    string `json:"network"`
	Retention  string `json:"retention"`
}

type transparencyPrivacy struct {
	DataLeavesDevice bool   `json:"data_leaves_device"`
	ThirdPartyAccess bool   `json:"third_party_access"`
	LogsStored       bool   `json:"logs_stored"`
	Encryption       string `json:"encryption"`
}

type transparencySystem struct {
	OllamaAvailable bool    `json:"ollama_available"`
	OllamaModel     *string `json:"ollama_model"`
	APIEndpoint     *string `json:"api_endpoint"`
}

type transparencySession struct {
	TodayRequests  int     `json:"today_requests"`
	TodaySpendUSD  float64 `json:"today_spend_usd"`
	CacheAvailable bool    `json:"cache_available"`
}

type sovereignProvider struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	DataLocation string `json:"data_location"`
}

type cloudProvider struct {
	Configured    bool   `json:"configured"`
	DataRetention string `json:"data_retention"`
}

type transparencyProviders struct {
	Sovereign sovereignProvider        `json:"sovereign"`
	Cloud     map[string]cloudProvider `json:"cloud"`
}

type transparencyResponse struct {
	Tier      transparencyTier      `json:"tier"`
	DataFlow  transparencyDataFlow  `json:"data_flow"`
	Privacy   transparencyPrivacy   `json:"privacy"`
	System    transparencySystem    `json:"system"`
	Session   transparencySession   `json:"session"`
	Providers transparencyProviders `json:"providers"`
}

// HandleTransparency handles GET /api/transparency. It tells the UI, per
// tier, where a request's data would go before the user sends anything.
func (h *StatusHandler) HandleTransparency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tier := tiers.Parse(r.URL.Query().Get("tier"))
	profile := h.registry.Profile(tier)
	isLocal := tier == tiers.Sovereign

	healthy := h.checker.OllamaHealthy(ctx)
	stats, err := h.metrics.Stats(ctx)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	pick := func(local, cloud string) string {
		if isLocal {
			return local
		}
		return cloud
	}

	var ollamaModel, apiEndpoint *string
	if isLocal {
		ollamaModel = &h.cfg.OllamaModel
	} else {
		endpoint := string(tier) + "_api"
		apiEndpoint = &endpoint
	}

	ollamaStatus := "active"
	if !healthy {
		ollamaStatus = "unavailable"
	}

	respondJSON(w, http.StatusOK, transparencyResponse{
		Tier: transparencyTier{
			ID:      string(tier),
			Name:    profile.Name,
			IsLocal: isLocal,
			Models:  profile.Models,
			CostPer1M: transparencyCost{
				Input:  profile.CostPer1MIn,
				Output: profile.CostPer1MOut,
			},
		},
		DataFlow: transparencyDataFlow{
			Processing: pick("local", "cloud"),
			Storage:    pick("local_only", "transient"),
			Network:    pick("none", "api_call"),
			Retention:  pick("your_device", "no_retention"),
		},
		Privacy: transparencyPrivacy{
			DataLeavesDevice: !isLocal,
			ThirdPartyAccess: !isLocal,
			LogsStored:       false, // only metadata is stored, never prompts
			Encryption:       pick("at_rest", "in_transit"),
		},
		System: transparencySystem{
			OllamaAvailable: healthy,
			OllamaModel:     ollamaModel,
			APIEndpoint:     apiEndpoint,
		},
		Session: transparencySession{
			TodayRequests:  stats.TodayRequests,
			TodaySpendUSD:  stats.TodaySpendUSD,
			CacheAvailable: true,
		},
		Providers: transparencyProviders{
			Sovereign: sovereignProvider{
				Name:         "Local (Ollama)",
				Status:       ollamaStatus,
				DataLocation: "Your Mac Mini",
			},
			Cloud: map[string]cloudProvider{
				"groq":     {Configured: h.cfg.GroqAPIKey != "", DataRetention: "none"},
				"deepseek": {Configured: h.cfg.DeepSeekAPIKey != "", DataRetention: "none"},
				"openai":   {Configured: h.cfg.OpenAIAPIKey != "", DataRetention: "30_days_api"},
			},
		},
	})
}

// HandleHealth handles GET /health.
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": "3.0"})
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
