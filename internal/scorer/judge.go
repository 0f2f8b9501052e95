package scorer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/batch-eval/internal/llm"
)

const judgePromptTemplate = `You are an expert evaluator. Assess the AI response based on the given criteria.

## Evaluation Criteria
{{.Criteria}}

{{if .Rubric}}
## Scoring Dimensions
{{range .Rubric}}- {{.}}
{{end}}
{{end}}

## Original Question/Context
{{.Query}}

## AI Response to Evaluate
{{.Response}}

## Instructions
Rate the response on a scale of 1-{{.ScoreScale}}.
- 1: Completely fails to meet criteria
- {{.ScoreScale}}: Perfectly meets all criteria

Output ONLY valid JSON in this exact format:
{"score": <integer 1-{{.ScoreScale}}>, "reasoning": "<brief explanation>"}`

var judgePromptTmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	Criteria   string
	Rubric     []string
	Query      string
	Response   string
	ScoreScale int
}

type judgeOutput struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// JudgeConfig configures an LLM-graded scorer.
type JudgeConfig struct {
	Name       string
	Criteria   string
	Rubric     []string
	ScoreScale int // default 5
	MaxTokens  int // default 512
	Provider   llm.Provider
}

// NewJudge builds an async scorer that grades a response against the
// configured criteria with an LLM provider. It declares a required
// "response" parameter and an optional "query" parameter, and reports
// metrics "score" (raw 1..scale) and "reasoning".
func NewJudge(cfg JudgeConfig) (*Async, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("scorer: judge: empty name")
	}
	criteria := strings.TrimSpace(cfg.Criteria)
	if criteria == "" {
		return nil, fmt.Errorf("scorer: judge %s: missing criteria", name)
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("scorer: judge %s: nil llm provider", name)
	}

	scale := cfg.ScoreScale
	if scale < 2 {
		scale = 5
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	params := []Param{
		{Name: "response", Kind: KindString, Required: true},
		{Name: "query", Kind: KindString},
	}

	fn := func(ctx context.Context, args Args) (Outputs, Usage, error) {
		response, _ := args["response"].(string)
		query, _ := args["query"].(string)

		var promptBuf bytes.Buffer
		if err := judgePromptTmpl.Execute(&promptBuf, judgePromptData{
			Criteria:   criteria,
			Rubric:     cfg.Rubric,
			Query:      query,
			Response:   response,
			ScoreScale: scale,
		}); err != nil {
			return nil, Usage{}, fmt.Errorf("judge %s: render prompt: %w", name, err)
		}

		resp, err := cfg.Provider.Complete(ctx, &llm.Request{
			Messages:  []llm.Message{{Role: "user", Content: promptBuf.String()}},
			MaxTokens: maxTokens,
		})

		var usage Usage
		if resp != nil {
			usage = Usage{
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			}
		}
		if err != nil {
			return nil, usage, fmt.Errorf("judge %s: llm: %w", name, err)
		}
		if resp == nil {
			return nil, usage, fmt.Errorf("judge %s: nil llm response", name)
		}

		raw := strings.TrimSpace(llm.Text(resp))
		var out judgeOutput
		if err := llm.ParseJSON(raw, &out); err != nil {
			return nil, usage, fmt.Errorf("judge %s: invalid judge output %q: %w", name, raw, err)
		}
		if out.Score < 1 || out.Score > scale {
			return nil, usage, fmt.Errorf("judge %s: score %d outside 1-%d", name, out.Score, scale)
		}

		return Outputs{
			"score":     float64(out.Score),
			"reasoning": out.Reasoning,
		}, usage, nil
	}

	return NewAsync(name, params, fn), nil
}

// NewCoherence grades logical flow and readability of a response.
func NewCoherence(provider llm.Provider) (*Async, error) {
	return NewJudge(JudgeConfig{
		Name:     "coherence",
		Provider: provider,
		Criteria: "The response is logically organized, easy to follow, and free of contradictions. Ideas connect naturally and the overall answer reads as a single coherent whole.",
		Rubric: []string{
			"Logical flow between sentences and paragraphs",
			"Consistency: no internal contradictions",
			"Clarity: the reader can follow without rereading",
		},
	})
}

// NewTaskAdherence grades whether the response actually carries out the
// task stated in the query.
func NewTaskAdherence(provider llm.Provider) (*Async, error) {
	return NewJudge(JudgeConfig{
		Name:     "task_adherence",
		Provider: provider,
		Criteria: "The response addresses the task in the question directly and completely, stays on topic, and respects any constraints stated in the task.",
		Rubric: []string{
			"Completeness: every part of the task is addressed",
			"Relevance: no off-topic content",
			"Constraint adherence: stated requirements are respected",
		},
	})
}
