package evaluate

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/dataset"
	"github.com/stellarlinkco/batch-eval/internal/mapping"
	"github.com/stellarlinkco/batch-eval/internal/remote"
	"github.com/stellarlinkco/batch-eval/internal/result"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	ds, err := dataset.New([]dataset.Row{
		{"response": "aa", "query": "q0"},
		{"response": "bb", "query": "q1"},
	})
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	return ds
}

func lenScorer() scorer.Local {
	return scorer.NewAsync("len",
		[]scorer.Param{{Name: "response", Kind: scorer.KindString, Required: true}},
		func(ctx context.Context, args scorer.Args) (scorer.Outputs, scorer.Usage, error) {
			s, _ := args["response"].(string)
			return scorer.Outputs{"len": float64(len(s))}, scorer.Usage{}, nil
		})
}

func remoteScorer() *scorer.Remote {
	return &scorer.Remote{
		Name:    "relevance",
		Params:  []scorer.Param{{Name: "response", Kind: scorer.KindString, Required: true}},
		Outputs: []string{"relevance"},
	}
}

// scriptedClient serves a fixed terminal status, or errors.
type scriptedClient struct {
	mu     sync.Mutex
	defErr error
	status *remote.RunStatus
}

func (c *scriptedClient) CreateDefinition(ctx context.Context, def remote.Definition) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defErr != nil {
		return "", c.defErr
	}
	return "d", nil
}

func (c *scriptedClient) CreateRun(ctx context.Context, definitionID string, run remote.RunRequest) (string, error) {
	return "r", nil
}

func (c *scriptedClient) GetRunStatus(ctx context.Context, definitionID, runID string) (*remote.RunStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func completedClient() *scriptedClient {
	return &scriptedClient{
		status: &remote.RunStatus{
			State: remote.StateCompleted,
			Rows: []remote.RunRowResult{
				{Index: 0, Outputs: map[string]map[string]any{"relevance": {"relevance": 4.0}}},
				{Index: 1, Outputs: map[string]map[string]any{"relevance": {"relevance": 2.0}}},
			},
		},
	}
}

func TestEvaluate_LocalOnly(t *testing.T) {
	t.Parallel()

	rep, err := Evaluate(context.Background(), Request{
		Dataset: testDataset(t),
		Local:   []scorer.Local{lenScorer()},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rep.Metrics["len.len"] != 2.0 {
		t.Fatalf("aggregate = %v", rep.Metrics["len.len"])
	}
}

func TestEvaluate_BothPathsMerged(t *testing.T) {
	t.Parallel()

	rep, err := Evaluate(context.Background(), Request{
		Dataset: testDataset(t),
		Local:   []scorer.Local{lenScorer()},
		Remote:  []*scorer.Remote{remoteScorer()},
		Client:  completedClient(),
		Options: Options{PollInterval: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	want := []string{"len.len", "relevance.relevance"}
	if !reflect.DeepEqual(rep.Columns, want) {
		t.Fatalf("columns = %v, want %v", rep.Columns, want)
	}
	if rep.Rows[0].Values["len.len"] != 2.0 || rep.Rows[0].Values["relevance.relevance"] != 4.0 {
		t.Fatalf("row 0 = %+v", rep.Rows[0])
	}
	if len(rep.Failures) != 0 {
		t.Fatalf("failures = %v", rep.Failures)
	}
}

func TestEvaluate_RemoteFailureIsResilient(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{defErr: errors.New("503 unavailable")}

	rep, err := Evaluate(context.Background(), Request{
		Dataset: testDataset(t),
		Local:   []scorer.Local{lenScorer()},
		Remote:  []*scorer.Remote{remoteScorer()},
		Client:  client,
		Options: Options{PollInterval: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// Local results survive; the remote failure lands in the manifest.
	if rep.Metrics["len.len"] != 2.0 {
		t.Fatalf("aggregate = %v", rep.Metrics["len.len"])
	}
	if len(rep.Failures) != 1 {
		t.Fatalf("failures = %v", rep.Failures)
	}
	f := rep.Failures[0]
	if f.Path != "remote" || f.Kind != "remote_submission" {
		t.Fatalf("failure = %+v", f)
	}
}

func TestEvaluate_LocalFailureIsResilient(t *testing.T) {
	t.Parallel()

	failing := scorer.NewAsync("bad",
		[]scorer.Param{{Name: "response", Kind: scorer.KindString, Required: true}},
		func(ctx context.Context, args scorer.Args) (scorer.Outputs, scorer.Usage, error) {
			return nil, scorer.Usage{}, errors.New("boom")
		})

	rep, err := Evaluate(context.Background(), Request{
		Dataset: testDataset(t),
		Local:   []scorer.Local{failing},
		Remote:  []*scorer.Remote{remoteScorer()},
		Client:  completedClient(),
		Options: Options{PollInterval: time.Millisecond, FailOnError: true},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if rep.Metrics["relevance.relevance"] != 3.0 {
		t.Fatalf("remote aggregate = %v", rep.Metrics["relevance.relevance"])
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Path != "local" {
		t.Fatalf("failures = %v", rep.Failures)
	}
}

func TestEvaluate_BothPathsFailed(t *testing.T) {
	t.Parallel()

	failing := scorer.NewAsync("bad",
		[]scorer.Param{{Name: "response", Kind: scorer.KindString, Required: true}},
		func(ctx context.Context, args scorer.Args) (scorer.Outputs, scorer.Usage, error) {
			return nil, scorer.Usage{}, errors.New("boom")
		})
	client := &scriptedClient{defErr: errors.New("down")}

	_, err := Evaluate(context.Background(), Request{
		Dataset: testDataset(t),
		Local:   []scorer.Local{failing},
		Remote:  []*scorer.Remote{remoteScorer()},
		Client:  client,
		Options: Options{PollInterval: time.Millisecond, FailOnError: true},
	})
	if err == nil || !strings.Contains(err.Error(), "both paths failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestEvaluate_RepeatedRunsMatch(t *testing.T) {
	t.Parallel()

	run := func(concurrency int) *result.Report {
		t.Helper()
		rep, err := Evaluate(context.Background(), Request{
			Dataset: testDataset(t),
			Local:   []scorer.Local{lenScorer()},
			Remote:  []*scorer.Remote{remoteScorer()},
			Client:  completedClient(),
			Options: Options{Concurrency: concurrency, PollInterval: time.Millisecond},
		})
		if err != nil {
			t.Fatalf("Evaluate(concurrency=%d): %v", concurrency, err)
		}
		return rep
	}

	base := run(1)
	for _, c := range []int{4, 4, 1} {
		rep := run(c)
		if !reflect.DeepEqual(rep.Columns, base.Columns) {
			t.Fatalf("concurrency %d columns = %v, want %v", c, rep.Columns, base.Columns)
		}
		if !reflect.DeepEqual(rep.Rows, base.Rows) {
			t.Fatalf("concurrency %d rows = %+v, want %+v", c, rep.Rows, base.Rows)
		}
		if !reflect.DeepEqual(rep.Metrics, base.Metrics) {
			t.Fatalf("concurrency %d metrics = %v, want %v", c, rep.Metrics, base.Metrics)
		}
		if len(rep.Failures) != 0 {
			t.Fatalf("concurrency %d failures = %v", c, rep.Failures)
		}
	}
}

func TestEvaluate_Validation(t *testing.T) {
	t.Parallel()

	ds := testDataset(t)

	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"empty dataset", Request{Local: []scorer.Local{lenScorer()}}, "empty dataset"},
		{"no scorers", Request{Dataset: ds}, "no scorers"},
		{"remote without client", Request{Dataset: ds, Remote: []*scorer.Remote{remoteScorer()}}, "without a service client"},
		{"duplicate names", Request{Dataset: ds, Local: []scorer.Local{lenScorer(), lenScorer()}}, "duplicate scorer name"},
		{
			"mapping for unknown scorer",
			Request{
				Dataset:  ds,
				Local:    []scorer.Local{lenScorer()},
				Mappings: map[string]mapping.Spec{"ghost": {"p": "${data.response}"}},
			},
			"unknown scorer",
		},
		{
			"duplicate across paths",
			Request{
				Dataset: ds,
				Local:   []scorer.Local{lenScorer()},
				Remote:  []*scorer.Remote{{Name: "len", Params: nil, Outputs: []string{"v"}}},
				Client:  completedClient(),
			},
			"duplicate scorer name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Evaluate(context.Background(), tc.req)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want ConfigError", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestEvaluate_OnRowAndOnPhase(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	rows := 0
	var phases []remote.Phase

	_, err := Evaluate(context.Background(), Request{
		Dataset: testDataset(t),
		Local:   []scorer.Local{lenScorer()},
		Remote:  []*scorer.Remote{remoteScorer()},
		Client:  completedClient(),
		Options: Options{
			PollInterval: time.Millisecond,
			OnRow: func(rr result.RowResult) {
				mu.Lock()
				rows++
				mu.Unlock()
			},
			OnPhase: func(p remote.Phase) {
				mu.Lock()
				phases = append(phases, p)
				mu.Unlock()
			},
		},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if rows != 2 {
		t.Fatalf("OnRow saw %d rows, want 2", rows)
	}
	if len(phases) == 0 || phases[len(phases)-1] != remote.PhaseCompleted {
		t.Fatalf("phases = %v", phases)
	}
}
