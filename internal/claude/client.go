// Package claude wraps the Anthropic messages API for judge calls.
package claude

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel    = "claude-sonnet-4-5-20250929"
	defaultRetryMax = 3
)

// Client holds configuration for Claude API requests.
type Client struct {
	apiKey   string
	baseURL  string
	model    string
	retryMax int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the Claude API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if c == nil {
			return
		}
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return
		}
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithModel sets the default model name.
func WithModel(model string) Option {
	return func(c *Client) {
		if c == nil {
			return
		}
		model = strings.TrimSpace(model)
		if model == "" {
			return
		}
		c.model = model
	}
}

// NewClient constructs a Client with the given API key and options.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   strings.TrimSpace(apiKey),
		model:    defaultModel,
		retryMax: defaultRetryMax,
	}
	if envBaseURL := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); envBaseURL != "" {
		c.baseURL = strings.TrimRight(envBaseURL, "/")
	}
	if c.apiKey == "" {
		c.apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Message is a single role/content message.
type Message struct {
	Role    string
	Content string
}

// Request is one messages API request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
}

// Response is the text result of one messages API call.
type Response struct {
	Content      string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Complete sends a messages API request and returns the text response.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c == nil {
		return nil, errors.New("claude: nil client")
	}
	if ctx == nil {
		return nil, errors.New("claude: nil context")
	}
	if req == nil {
		return nil, errors.New("claude: nil request")
	}
	if c.apiKey == "" {
		return nil, errors.New("claude: missing api key (set ANTHROPIC_API_KEY)")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("claude: no messages")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  toSDKMessages(req.Messages),
	}
	if sys := strings.TrimSpace(req.System); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := c.sdkClient().Messages.New(ctx, params)
	if err != nil {
		return nil, normalizeError(err)
	}

	var sb strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}

	return &Response{
		Content:      sb.String(),
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func toSDKMessages(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, anthropic.MessageParam{
			Role:    toSDKRole(m.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}
	return out
}

func toSDKRole(role string) anthropic.MessageParamRole {
	if strings.EqualFold(strings.TrimSpace(role), "assistant") {
		return anthropic.MessageParamRoleAssistant
	}
	return anthropic.MessageParamRoleUser
}

func (c *Client) sdkClient() *anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
		option.WithMaxRetries(c.retryMax),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &client
}

func normalizeError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("claude: api error (status %d): %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("claude: %w", err)
}
