package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Remote     RemoteConfig     `yaml:"remote"`
	Storage    StorageConfig    `yaml:"storage"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type EvaluationConfig struct {
	Concurrency  int           `yaml:"concurrency,omitempty"`
	FailOnError  bool          `yaml:"fail_on_error,omitempty"`
	TaskTimeout  time.Duration `yaml:"task_timeout,omitempty"`
	BatchTimeout time.Duration `yaml:"batch_timeout,omitempty"`
	Reduction    string        `yaml:"reduction,omitempty"` // "mean" is the only built-in
	OutputFormat string        `yaml:"output_format,omitempty"`
}

type RemoteConfig struct {
	BaseURL      string        `yaml:"base_url,omitempty"`
	APIKey       string        `yaml:"api_key,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg, nil
}

// Default returns a config without reading a file, with the same
// defaults and environment overrides Load applies.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(cfg.LLM.DefaultProvider) == "" {
		cfg.LLM.DefaultProvider = "claude"
	}
	if cfg.Evaluation.Concurrency <= 0 {
		cfg.Evaluation.Concurrency = 4
	}
	if strings.TrimSpace(cfg.Evaluation.Reduction) == "" {
		cfg.Evaluation.Reduction = "mean"
	}
	if cfg.Remote.PollInterval <= 0 {
		cfg.Remote.PollInterval = 5 * time.Second
	}
}

func applyEnv(cfg *Config) {
	setKey := func(provider, key string) {
		p := cfg.LLM.Providers[provider]
		p.APIKey = key
		cfg.LLM.Providers[provider] = p
	}

	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		setKey("claude", v)
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		setKey("openai", v)
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		setKey("gemini", v)
	}
	if v := strings.TrimSpace(os.Getenv("EVAL_SERVICE_URL")); v != "" {
		cfg.Remote.BaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("EVAL_SERVICE_API_KEY")); v != "" {
		cfg.Remote.APIKey = v
	}
}
