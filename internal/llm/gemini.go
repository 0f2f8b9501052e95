package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider adapts the Gemini API to Provider. The client is
// injected so callers control auth and backend selection.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider builds a Gemini provider around an existing client.
func NewGeminiProvider(client *genai.Client, model string) *GeminiProvider {
	m := strings.TrimSpace(model)
	if m == "" {
		m = "gemini-2.5-flash"
	}
	return &GeminiProvider{client: client, model: m}
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete sends one generate-content request.
func (p *GeminiProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("llm: gemini: nil client")
	}
	if ctx == nil {
		return nil, errors.New("llm: gemini: nil context")
	}
	if req == nil {
		return nil, errors.New("llm: gemini: nil request")
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" || m.Role == "model" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{}
	if sys := strings.TrimSpace(req.System); sys != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: sys}},
		}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("llm: gemini: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	out := &Response{
		Content:    sb.String(),
		StopReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}
