package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/backends"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/cache"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/metrics"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/ratelimit"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/config"
)

const defaultTemperature = 0.7

const systemPromptTemplate = `You are ActiveMirror, a sovereign AI assistant demonstrating the MirrorDNA framework.

Core principles:
- Privacy first: Default to local processing
- Transparent: Show users exactly where their data goes
- Reflective: Help users think, don't just answer
- Sovereign: Respect user autonomy

Current inference tier: %s
Data location: %s

Be concise, honest about limitations, and acknowledge your current tier's capabilities.

%s`

// BackendSource resolves execution backends. *backends.Manager is the
// production implementation.
type BackendSource interface {
	// ForTier returns the backend and dispatch model for t. ok is false
	// when the tier has no configured provider key.
	ForTier(t tiers.Tier) (backends.Backend, string, bool)
	// ForBYO builds a backend from a caller-supplied credential.
	ForBYO(provider, apiKey string) (backends.Backend, string, error)
}

// Request is one top-level routing call.
type Request struct {
	Prompt   string
	Tier     tiers.Tier
	Identity string

	// Caller-supplied credential, required when Tier is byo_key.
	BYOKey      string
	BYOProvider string

	// Retrieved memories injected into the system prompt. Note that the
	// cache key ignores these: identical prompts share a cache entry even
	// when the injected context differs.
	Context []string
}

// Outcome is the terminal result of a routed request that produced a
// response, fresh or cached.
type Outcome struct {
	Response     string
	Tier         tiers.Tier
	TierName     string
	Model        string
	Cached       bool
	CostUSD      float64
	LatencyMs    int
	InputTokens  int
	OutputTokens int
}

// Router walks a request through cache, quota gates, backend execution,
// and the fallback chain. Construct one at startup and share it across
// handlers; all mutable state lives in the injected stores.
type Router struct {
	cache    cache.Store
	limiter  *ratelimit.Limiter
	metrics  metrics.Recorder
	backends BackendSource
	registry *tiers.Registry
	cfg      *config.Config
}

// New builds a Router from its collaborators.
func New(store cache.Store, limiter *ratelimit.Limiter, recorder metrics.Recorder, source BackendSource, registry *tiers.Registry, cfg *config.Config) *Router {
	return &Router{
		cache:    store,
		limiter:  limiter,
		metrics:  recorder,
		backends: source,
		registry: registry,
		cfg:      cfg,
	}
}

// downgrade maps a tier whose provider key is missing to the tier served
// in its place. Distinct from the failure fallback chain: a budget
// request with no budget key goes straight to sovereign without trying
// fast_free.
func downgrade(t tiers.Tier) tiers.Tier {
	if t == tiers.Frontier {
		return tiers.Budget
	}
	return tiers.Sovereign
}

// Route resolves one request to a terminal outcome.
//
// Per attempted tier, in order: cache lookup (a hit bypasses every quota
// gate), frontier daily-call and budget gates, the general rate window,
// then the backend call under the per-call timeout. Quota denials are
// terminal and never enter the fallback chain. Backend failures walk
// frontier -> budget -> fast_free -> sovereign (byo_key -> sovereign),
// re-entering the full sequence at each hop; when sovereign itself fails
// the result is a TerminalError carrying the last backend error.
//
// Exactly one request record is written per call, for the terminal
// outcome, except validation errors, which are never recorded. There is
// no overall deadline: worst case latency is the per-call timeout times
// the number of tiers attempted.
func (r *Router) Route(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()

	if req.Prompt == "" {
		return nil, &ValidationError{Reason: "Message required"}
	}

	tier := req.Tier
	if tier == "" {
		tier = tiers.Parse(r.cfg.DefaultTier)
	}
	if tier == tiers.BYOKey && (req.BYOKey == "" || req.BYOProvider == "") {
		return nil, &ValidationError{Reason: "BYO key requires api_key and provider"}
	}

	identity := req.Identity
	if identity == "" {
		identity = "unknown"
	}

	visited := make(map[tiers.Tier]bool)
	var lastErr error

	for {
		// The chain is acyclic by construction; this guard turns a future
		// edit that introduces a loop into a terminal failure instead of
		// an endless walk.
		if visited[tier] {
			r.record(ctx, metrics.Sample{Identity: identity, Tier: string(tier), LatencyMs: millisSince(start)})
			return nil, &TerminalError{Tier: tier, Err: lastErr}
		}
		visited[tier] = true

		// Cache hit: answer immediately, no quota gates consulted.
		cached, hit, err := r.cache.Get(ctx, req.Prompt, tier)
		if err != nil {
			return nil, fmt.Errorf("cache lookup: %w", err)
		}
		if hit {
			r.record(ctx, metrics.Sample{
				Identity: identity,
				Tier:     string(tier),
				Model:    "cached",
				Cached:   true,
				Success:  true,
			})
			return &Outcome{
				Response:  cached,
				Tier:      tier,
				TierName:  r.registry.Profile(tier).Name,
				Cached:    true,
				LatencyMs: millisSince(start),
			}, nil
		}

		// Frontier carries a daily call quota and a spend cap on top of
		// the general window. Both denials are terminal.
		if tier == tiers.Frontier {
			allowed, err := r.limiter.Allow(ctx, identity, ratelimit.ScopeFrontierDaily, r.cfg.FrontierPerDayPerIP, 24*time.Hour)
			if err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
			if !allowed {
				return nil, r.deny(ctx, identity, start, &QuotaError{
					Reason:        "Daily frontier limit reached",
					Tier:          tier,
					SuggestedTier: tiers.Sovereign,
				})
			}

			spent, err := r.metrics.DailySpend(ctx)
			if err != nil {
				return nil, fmt.Errorf("budget ledger: %w", err)
			}
			if spent >= r.cfg.DailyFrontierBudgetUSD {
				return nil, r.deny(ctx, identity, start, &QuotaError{
					Reason:        "Daily budget exhausted",
					Tier:          tier,
					SuggestedTier: tiers.Sovereign,
				})
			}
		}

		allowed, err := r.limiter.Allow(ctx, identity, ratelimit.ScopeGeneral, r.cfg.CallsPerHourPerIP, time.Hour)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if !allowed {
			return nil, r.deny(ctx, identity, start, &QuotaError{
				Reason: "Rate limit exceeded. Try again later.",
				Tier:   tier,
			})
		}

		var backend backends.Backend
		var model string
		if tier == tiers.BYOKey {
			backend, model, err = r.backends.ForBYO(req.BYOProvider, req.BYOKey)
			if err != nil {
				// Unknown provider name. The credential was never used, so
				// unlike a failing call it does not fall back.
				return nil, &ValidationError{Reason: err.Error()}
			}
		} else {
			var ok bool
			backend, model, ok = r.backends.ForTier(tier)
			if !ok {
				next := downgrade(tier)
				log.Infof("tier %s has no provider key, serving %s instead", tier, next)
				tier = next
				continue
			}
		}

		res, err := r.invoke(ctx, backend, req, tier, model)
		if err == nil {
			latency := millisSince(start)
			cost := r.registry.Cost(tier, res.InputTokens, res.OutputTokens)

			if err := r.cache.Set(ctx, req.Prompt, tier, res.Text, r.cfg.CacheTTL); err != nil {
				log.WithError(err).Warn("cache write failed")
			}
			r.record(ctx, metrics.Sample{
				Identity:     identity,
				Tier:         string(tier),
				Model:        model,
				InputTokens:  res.InputTokens,
				OutputTokens: res.OutputTokens,
				LatencyMs:    latency,
				CostUSD:      cost,
				Success:      true,
			})
			log.WithFields(log.Fields{
				"tier":       string(tier),
				"model":      model,
				"latency_ms": latency,
				"cost_usd":   cost,
			}).Info("request routed")
			return &Outcome{
				Response:     res.Text,
				Tier:         tier,
				TierName:     r.registry.Profile(tier).Name,
				Model:        model,
				CostUSD:      cost,
				LatencyMs:    latency,
				InputTokens:  res.InputTokens,
				OutputTokens: res.OutputTokens,
			}, nil
		}

		lastErr = err
		log.WithError(err).Errorf("tier %s failed", tier)

		next, ok := tiers.Next(tier)
		if !ok {
			r.record(ctx, metrics.Sample{
				Identity:  identity,
				Tier:      string(tier),
				Model:     model,
				LatencyMs: millisSince(start),
			})
			return nil, &TerminalError{Tier: tier, Err: lastErr}
		}
		log.Infof("falling back from %s to %s", tier, next)
		tier = next
	}
}

// invoke runs one backend call under the per-call timeout.
func (r *Router) invoke(ctx context.Context, backend backends.Backend, req Request, t tiers.Tier, model string) (*backends.Result, error) {
	profile := r.registry.Profile(t)
	system := r.systemPrompt(t, req.Context)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	return backend.Generate(callCtx, req.Prompt, system, model, profile.MaxTokens, defaultTemperature)
}

// deny records a quota denial and returns it.
func (r *Router) deny(ctx context.Context, identity string, start time.Time, qe *QuotaError) *QuotaError {
	r.record(ctx, metrics.Sample{
		Identity:  identity,
		Tier:      string(qe.Tier),
		LatencyMs: millisSince(start),
	})
	return qe
}

// record appends one request row. Metrics failures are logged, never
// surfaced: the user outcome is already decided by the time we get here.
func (r *Router) record(ctx context.Context, s metrics.Sample) {
	if err := r.metrics.Record(ctx, s); err != nil {
		log.WithError(err).Error("metrics write failed")
	}
}

// systemPrompt renders the assistant instructions for one tier, with any
// retrieved memories appended as a context block.
func (r *Router) systemPrompt(t tiers.Tier, contextMemories []string) string {
	dataLocation := "Cloud API"
	if t == tiers.Sovereign {
		dataLocation = "Local (your device)"
	}

	var contextBlock string
	if len(contextMemories) > 0 {
		lines := make([]string, len(contextMemories))
		for i, m := range contextMemories {
			lines[i] = "- " + m
		}
		contextBlock = "\nRELEVANT MEMORIES (Use these to ground your answer):\n" + strings.Join(lines, "\n") + "\n"
	}

	return fmt.Sprintf(systemPromptTemplate, r.registry.Profile(t).Name, dataLocation, contextBlock)
}

func millisSince(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}
