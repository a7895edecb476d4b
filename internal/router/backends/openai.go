package backends

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompatible calls any chat-completions endpoint that speaks the
// OpenAI wire format: OpenAI itself, Groq, DeepSeek, and Mistral.
type OpenAICompatible struct {
	client *openai.Client
	name   string
}

// NewOpenAICompatible creates a backend for the given endpoint. An empty
// baseURL targets api.openai.com.
func NewOpenAICompatible(name, apiKey, baseURL string) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatible{
		client: openai.NewClientWithConfig(cfg),
		name:   name,
	}
}

// Generate implements Backend.
func (b *OpenAICompatible) Generate(ctx context.Context, prompt, systemPrompt, model string, maxTokens int, temperature float32) (*Result, error) {
	var messages []openai.ChatCompletionMessage
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", b.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", b.name)
	}

	return &Result{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
