package llm

import "context"

// Provider is a judge-model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Message is a single role/content message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion request.
type Request struct {
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the text result of one completion.
type Response struct {
	Content    string
	Usage      Usage
	StopReason string
}
