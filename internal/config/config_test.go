package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("EVAL_SERVICE_URL", "")
	t.Setenv("EVAL_SERVICE_API_KEY", "")

	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    openai:
      api_key: file-key
      model: gpt-4o-mini
evaluation:
  concurrency: 8
  fail_on_error: true
  task_timeout: 30s
  reduction: mean
  output_format: json
remote:
  base_url: https://eval.example.com
  poll_interval: 2s
storage:
  type: sqlite
  path: /tmp/runs.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.DefaultProvider != "openai" {
		t.Fatalf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Providers["openai"].Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", cfg.LLM.Providers["openai"].Model)
	}
	if cfg.Evaluation.Concurrency != 8 || !cfg.Evaluation.FailOnError {
		t.Fatalf("evaluation = %+v", cfg.Evaluation)
	}
	if cfg.Evaluation.TaskTimeout != 30*time.Second {
		t.Fatalf("task timeout = %v", cfg.Evaluation.TaskTimeout)
	}
	if cfg.Remote.BaseURL != "https://eval.example.com" || cfg.Remote.PollInterval != 2*time.Second {
		t.Fatalf("remote = %+v", cfg.Remote)
	}
	if cfg.Storage.Path != "/tmp/runs.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.DefaultProvider != "claude" {
		t.Fatalf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Evaluation.Concurrency != 4 {
		t.Fatalf("concurrency = %d", cfg.Evaluation.Concurrency)
	}
	if cfg.Evaluation.Reduction != "mean" {
		t.Fatalf("reduction = %q", cfg.Evaluation.Reduction)
	}
	if cfg.Remote.PollInterval != 5*time.Second {
		t.Fatalf("poll interval = %v", cfg.Remote.PollInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic")
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("EVAL_SERVICE_URL", "https://svc.example.com/")
	t.Setenv("EVAL_SERVICE_API_KEY", "env-svc")

	path := writeConfig(t, `
llm:
  providers:
    claude:
      api_key: file-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers["claude"].APIKey != "env-anthropic" {
		t.Fatalf("claude key = %q", cfg.LLM.Providers["claude"].APIKey)
	}
	if cfg.LLM.Providers["openai"].APIKey != "env-openai" {
		t.Fatalf("openai key = %q", cfg.LLM.Providers["openai"].APIKey)
	}
	if cfg.Remote.BaseURL != "https://svc.example.com" {
		t.Fatalf("remote url = %q (trailing slash kept)", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIKey != "env-svc" {
		t.Fatalf("remote key = %q", cfg.Remote.APIKey)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}

	path := writeConfig(t, "llm: [broken")
	if _, err := Load(path); err == nil {
		t.Fatal("broken yaml accepted")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-gemini")

	cfg := Default()
	if cfg.LLM.DefaultProvider != "claude" {
		t.Fatalf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Providers["gemini"].APIKey != "env-gemini" {
		t.Fatalf("gemini key = %q", cfg.LLM.Providers["gemini"].APIKey)
	}
}
