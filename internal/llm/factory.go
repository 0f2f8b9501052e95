package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/stellarlinkco/batch-eval/internal/config"
)

// NewRegistryFromConfig builds providers for every configured backend.
// ctx is used for client construction only, not for later calls.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("llm: nil config")
	}

	r := NewRegistry()
	for name, pcfg := range cfg.LLM.Providers {
		key := strings.ToLower(strings.TrimSpace(name))
		switch key {
		case "":
			continue
		case "claude", "anthropic":
			r.Register(NewClaudeProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model))
		case "openai":
			r.Register(NewOpenAIProvider(pcfg.APIKey, pcfg.BaseURL, pcfg.Model))
		case "gemini":
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  strings.TrimSpace(pcfg.APIKey),
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, fmt.Errorf("llm: gemini client: %w", err)
			}
			r.Register(NewGeminiProvider(client, pcfg.Model))
		default:
			return nil, fmt.Errorf("llm: unknown provider %q", name)
		}
	}

	return r, nil
}

// DefaultProviderFromConfig resolves the configured default provider.
func DefaultProviderFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("llm: nil config")
	}
	reg, err := NewRegistryFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(cfg.LLM.DefaultProvider)
	if name == "" {
		name = "claude"
	}
	if p, ok := reg.Get(name); ok {
		return p, nil
	}

	if len(reg.providers) == 1 {
		for _, p := range reg.providers {
			return p, nil
		}
	}

	available := reg.Names()
	sort.Strings(available)
	return nil, fmt.Errorf("llm: default provider %q not configured (available: %s)", name, strings.Join(available, ", "))
}
