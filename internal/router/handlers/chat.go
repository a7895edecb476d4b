package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/router/tiers"
	"github.com/MirrorDNA-Reflection-Protocol/ActiveMirrorOS/internal/shared/models"
)

// inferenceRouter is the slice of *router.Router the chat handler needs.
type inferenceRouter interface {
	Route(ctx context.Context, req router.Request) (*router.Outcome, error)
}

type ChatHandler struct {
	router inferenceRouter
}

func NewChatHandler(r inferenceRouter) *ChatHandler {
	return &ChatHandler{router: r}
}

// HandleChat handles POST /api/chat. Routed outcomes, including quota
// denials and terminal failures, answer 200 with success = false; only
// malformed requests get a 4xx.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var body models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON"})
		return
	}
	if body.Message == "" {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Message required"})
		return
	}

	req := router.Request{
		Prompt:      body.Message,
		Identity:    clientIP(r),
		BYOKey:      body.APIKey,
		BYOProvider: body.Provider,
	}
	if body.Tier != "" {
		req.Tier = tiers.Parse(body.Tier)
	}

	out, err := h.router.Route(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := models.ChatResponse{
		Success:   true,
		Response:  out.Response,
		Tier:      string(out.Tier),
		TierName:  out.TierName,
		Model:     out.Model,
		Cached:    out.Cached,
		CostUSD:   round6(out.CostUSD),
		LatencyMs: out.LatencyMs,
	}
	if !out.Cached {
		resp.Tokens = &models.TokenUsage{Input: out.InputTokens, Output: out.OutputTokens}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) respondError(w http.ResponseWriter, err error) {
	var ve *router.ValidationError
	var qe *router.QuotaError
	var te *router.TerminalError

	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusOK, models.ChatResponse{Success: false, Error: ve.Reason})
	case errors.As(err, &qe):
		respondJSON(w, http.StatusOK, models.ChatResponse{
			Success:      false,
			Error:        qe.Reason,
			FallbackTier: string(qe.SuggestedTier),
		})
	case errors.As(err, &te):
		respondJSON(w, http.StatusOK, models.ChatResponse{
			Success: false,
			Error:   te.Error(),
			Tier:    string(te.Tier),
		})
	default:
		log.WithError(err).Error("chat request failed")
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("response encoding failed")
	}
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// clientIP extracts the caller address used as the rate-limit identity.
// Behind the RealIP middleware RemoteAddr is already the bare client IP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}
