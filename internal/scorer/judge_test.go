package scorer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/batch-eval/internal/llm"
)

type fakeProvider struct {
	content string
	usage   llm.Usage
	err     error

	lastReq *llm.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.lastReq = req
	if p.err != nil {
		return &llm.Response{Usage: p.usage}, p.err
	}
	return &llm.Response{Content: p.content, Usage: p.usage, StopReason: "end_turn"}, nil
}

func TestNewJudge_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewJudge(JudgeConfig{Criteria: "c", Provider: &fakeProvider{}}); err == nil {
		t.Fatal("missing name accepted")
	}
	if _, err := NewJudge(JudgeConfig{Name: "j", Provider: &fakeProvider{}}); err == nil {
		t.Fatal("missing criteria accepted")
	}
	if _, err := NewJudge(JudgeConfig{Name: "j", Criteria: "c"}); err == nil {
		t.Fatal("nil provider accepted")
	}
}

func TestJudge_Score(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		content: `{"score": 4, "reasoning": "mostly coherent"}`,
		usage:   llm.Usage{InputTokens: 100, OutputTokens: 20},
	}
	judge, err := NewJudge(JudgeConfig{
		Name:     "coherence",
		Criteria: "is it coherent",
		Rubric:   []string{"flow", "clarity"},
		Provider: provider,
	})
	if err != nil {
		t.Fatalf("NewJudge: %v", err)
	}

	out, usage, err := Invoke(context.Background(), judge, Args{
		"response": "the answer",
		"query":    "the question",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["score"] != float64(4) {
		t.Fatalf("score = %v", out["score"])
	}
	if out["reasoning"] != "mostly coherent" {
		t.Fatalf("reasoning = %v", out["reasoning"])
	}
	if usage.InputTokens != 100 || usage.OutputTokens != 20 {
		t.Fatalf("usage = %+v", usage)
	}

	if provider.lastReq == nil || len(provider.lastReq.Messages) != 1 {
		t.Fatalf("request = %+v", provider.lastReq)
	}
	prompt := provider.lastReq.Messages[0].Content
	for _, want := range []string{"is it coherent", "flow", "the answer", "the question", "1-5"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestJudge_FencedOutput(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		content: "```json\n{\"score\": 2, \"reasoning\": \"weak\"}\n```",
	}
	judge, err := NewJudge(JudgeConfig{Name: "j", Criteria: "c", Provider: provider})
	if err != nil {
		t.Fatalf("NewJudge: %v", err)
	}

	out, _, err := Invoke(context.Background(), judge, Args{"response": "r"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out["score"] != float64(2) {
		t.Fatalf("score = %v", out["score"])
	}
}

func TestJudge_ScoreOutOfRange(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: `{"score": 9, "reasoning": "x"}`}
	judge, err := NewJudge(JudgeConfig{Name: "j", Criteria: "c", Provider: provider})
	if err != nil {
		t.Fatalf("NewJudge: %v", err)
	}

	_, _, err = Invoke(context.Background(), judge, Args{"response": "r"})
	if err == nil || !strings.Contains(err.Error(), "outside") {
		t.Fatalf("err = %v", err)
	}
}

func TestJudge_UsageSurvivesProviderError(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		err:   errors.New("overloaded"),
		usage: llm.Usage{InputTokens: 80},
	}
	judge, err := NewJudge(JudgeConfig{Name: "j", Criteria: "c", Provider: provider})
	if err != nil {
		t.Fatalf("NewJudge: %v", err)
	}

	_, usage, err := Invoke(context.Background(), judge, Args{"response": "r"})
	if err == nil {
		t.Fatal("expected provider error")
	}
	if usage.InputTokens != 80 {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestJudge_Presets(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{content: `{"score": 5, "reasoning": "ok"}`}

	coh, err := NewCoherence(provider)
	if err != nil {
		t.Fatalf("NewCoherence: %v", err)
	}
	if coh.Name() != "coherence" {
		t.Fatalf("name = %s", coh.Name())
	}

	ta, err := NewTaskAdherence(provider)
	if err != nil {
		t.Fatalf("NewTaskAdherence: %v", err)
	}
	if ta.Name() != "task_adherence" {
		t.Fatalf("name = %s", ta.Name())
	}
}
