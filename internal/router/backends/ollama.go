package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama calls a local Ollama instance over its generate API. It backs
// the sovereign tier and is the terminal stop of every fallback chain.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllama creates an Ollama backend for the given base URL. Call
// deadlines come from the caller's context.
func NewOllama(baseURL string) *Ollama {
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate implements Backend. Ollama's generate endpoint takes a single
// completion string, so the system prompt is flattened around the user
// prompt. Token counts are estimated from word counts; the endpoint's
// usage fields are not relied on.
func (o *Ollama) Generate(ctx context.Context, prompt, systemPrompt, model string, maxTokens int, temperature float32) (*Result, error) {
	completion := prompt
	if systemPrompt != "" {
		completion = fmt.Sprintf("%s\n\nUser: %s\n\nAssistant:", systemPrompt, prompt)
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: completion,
		Stream: false,
		Options: ollamaOptions{
			Temperature: temperature,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama request encoding failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Ollama request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Ollama connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Ollama error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var generated ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return nil, fmt.Errorf("Ollama response decoding failed: %w", err)
	}

	return &Result{
		Text:         generated.Response,
		InputTokens:  estimateTokens(completion),
		OutputTokens: estimateTokens(generated.Response),
	}, nil
}

// Health reports whether the instance answers its tags endpoint.
func (o *Ollama) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// estimateTokens approximates a token count at 1.3 tokens per word.
func estimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * 1.3)
}
