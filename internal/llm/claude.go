package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/stellarlinkco/batch-eval/internal/claude"
)

// ClaudeProvider adapts the Claude client to the Provider interface.
type ClaudeProvider struct {
	client *claude.Client
}

// NewClaudeProvider builds a Claude provider; empty options fall back to
// client defaults and environment.
func NewClaudeProvider(apiKey string, baseURL string, model string) *ClaudeProvider {
	opts := make([]claude.Option, 0, 2)
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, claude.WithBaseURL(v))
	}
	if v := strings.TrimSpace(model); v != "" {
		opts = append(opts, claude.WithModel(v))
	}
	return &ClaudeProvider{
		client: claude.NewClient(strings.TrimSpace(apiKey), opts...),
	}
}

// Name returns the provider identifier.
func (p *ClaudeProvider) Name() string {
	return "claude"
}

// Complete sends the request through the Claude client.
func (p *ClaudeProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: claude: nil client")
	}
	if req == nil {
		return nil, errors.New("llm: claude: nil request")
	}

	cReq := &claude.Request{
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		cReq.Messages = append(cReq.Messages, claude.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.Complete(ctx, cReq)
	if err != nil {
		return nil, err
	}
	return &Response{
		Content:    resp.Content,
		StopReason: resp.StopReason,
		Usage: Usage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil
}
