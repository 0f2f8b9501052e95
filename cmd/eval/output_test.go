package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/result"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

func sampleReport() *result.Report {
	started := time.Unix(1_700_000_000, 0).UTC()
	return &result.Report{
		Columns: []string{"exact_match.exact_match", "judge.score"},
		Rows: []result.TableRow{
			{Index: 0, Values: map[string]any{"exact_match.exact_match": 1.0, "judge.score": 4.0}},
			{Index: 1, Values: map[string]any{"exact_match.exact_match": 0.0}, Errors: map[string]string{"judge": "timeout: deadline exceeded"}},
		},
		Metrics:    map[string]float64{"exact_match.exact_match": 0.5, "judge.score": 4.0},
		Usage:      scorer.Usage{InputTokens: 200, OutputTokens: 40},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestResolveOutputFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		flag    string
		config  string
		want    OutputFormat
		wantErr bool
	}{
		{"flag wins", "json", "table", FormatJSON, false},
		{"config fallback", "", "json", FormatJSON, false},
		{"default table", "", "", FormatTable, false},
		{"jsonl alias", "jsonl", "", FormatJSON, false},
		{"invalid flag", "xml", "", "", true},
		{"invalid config ignored", "", "xml", FormatTable, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveOutputFormat(tc.flag, tc.config)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveOutputFormat: %v", err)
			}
			if got != tc.want {
				t.Fatalf("format = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatReport_Table(t *testing.T) {
	t.Parallel()

	out := FormatReport(sampleReport(), FormatTable)

	for _, want := range []string{
		"exact_match.exact_match",
		"judge.score",
		"timeout: deadline exceeded",
		"Metric: exact_match.exact_match = 0.5000",
		"Summary: rows=2 failed=1 tokens_in=200 tokens_out=40",
		"FAIL",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatReport_TablePass(t *testing.T) {
	t.Parallel()

	rep := sampleReport()
	rep.Rows[1].Errors = nil

	out := FormatReport(rep, FormatTable)
	if !strings.Contains(out, "PASS") {
		t.Fatalf("output missing PASS:\n%s", out)
	}
}

func TestFormatReport_JSON(t *testing.T) {
	t.Parallel()

	out := FormatReport(sampleReport(), FormatJSON)

	var rep result.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out)
	}
	if len(rep.Rows) != 2 || rep.Metrics["judge.score"] != 4.0 {
		t.Fatalf("decoded report = %+v", rep)
	}
}

func TestFormatReport_NilReport(t *testing.T) {
	t.Parallel()

	out := FormatReport(nil, FormatTable)
	if !strings.Contains(out, "FAIL") {
		t.Fatalf("output = %q", out)
	}
}

func TestFormatCell(t *testing.T) {
	t.Parallel()

	if got := formatCell(nil); got != "-" {
		t.Fatalf("nil = %q", got)
	}
	if got := formatCell(0.25); got != "0.25" {
		t.Fatalf("float = %q", got)
	}
	long := strings.Repeat("x", 60)
	if got := formatCell(long); len(got) != 40 || !strings.HasSuffix(got, "...") {
		t.Fatalf("long string = %q", got)
	}
}
