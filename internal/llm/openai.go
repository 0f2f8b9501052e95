package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider adapts the OpenAI chat completions API to Provider.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider builds an OpenAI provider.
func NewOpenAIProvider(apiKey string, baseURL string, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = "gpt-4o"
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  m,
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends one chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: openai: nil client")
	}
	if ctx == nil {
		return nil, errors.New("llm: openai: nil context")
	}
	if req == nil {
		return nil, errors.New("llm: openai: nil request")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if sys := strings.TrimSpace(req.System); sys != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("llm: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: openai: empty choices")
	}

	choice := resp.Choices[0]
	return &Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
