package result

import (
	"fmt"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// Reducer folds the successful numeric values of one metric column into
// a single aggregate. Failed rows are excluded before the call.
type Reducer func(values []float64) float64

// Mean is the default reduction: arithmetic mean over successful rows.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PathFailure is a manifest entry describing a path-level failure that
// did not abort the whole evaluation.
type PathFailure struct {
	Path    string `json:"path"` // "local" or "remote"
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TableRow is one row of the final result table: values keyed by
// "<scorer>.<metric>" column, plus failure markers keyed by scorer name.
type TableRow struct {
	Index  int               `json:"index"`
	Values map[string]any    `json:"values"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Report is the final merged output: a per-row table, aggregate metrics
// reduced over successful rows, and a manifest of failures.
type Report struct {
	Columns  []string           `json:"columns"` // scorer declaration order
	Rows     []TableRow         `json:"rows"`    // one per dataset row
	Metrics  map[string]float64 `json:"metrics"` // column -> reduced value
	Failures []PathFailure      `json:"failures,omitempty"`
	Usage    scorer.Usage       `json:"usage"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BuildReport assembles a report from per-scorer batches, in batch
// (scorer declaration) order. rowCount is the dataset length; every
// batch must carry exactly that many row slots.
func BuildReport(batches []*BatchResult, rowCount int, reduce Reducer) (*Report, error) {
	if reduce == nil {
		reduce = Mean
	}

	rep := &Report{
		Rows:    make([]TableRow, rowCount),
		Metrics: make(map[string]float64),
	}
	for i := range rep.Rows {
		rep.Rows[i] = TableRow{Index: i, Values: make(map[string]any)}
	}

	seenColumns := make(map[string]struct{})
	for _, b := range batches {
		if b == nil {
			return nil, fmt.Errorf("result: nil batch")
		}
		if len(b.Rows) != rowCount {
			return nil, fmt.Errorf("result: scorer %s: %d row results for %d dataset rows", b.ScorerName, len(b.Rows), rowCount)
		}

		metrics := b.MetricColumns()
		columns := make([]string, 0, len(metrics))
		for _, m := range metrics {
			col := b.ScorerName + "." + m
			if _, dup := seenColumns[col]; dup {
				return nil, fmt.Errorf("result: duplicate output column %q", col)
			}
			seenColumns[col] = struct{}{}
			columns = append(columns, col)
		}
		rep.Columns = append(rep.Columns, columns...)

		numeric := make(map[string][]float64, len(metrics))
		for i, r := range b.Rows {
			switch r.Status {
			case RowSuccess:
				for name, v := range r.Outputs {
					rep.Rows[i].Values[b.ScorerName+"."+name] = v
					if f, ok := asFloat(v); ok {
						numeric[name] = append(numeric[name], f)
					}
				}
			case RowFailure:
				if rep.Rows[i].Errors == nil {
					rep.Rows[i].Errors = make(map[string]string)
				}
				rep.Rows[i].Errors[b.ScorerName] = r.ErrKind + ": " + r.ErrMessage
			}
			rep.Usage.Add(r.Usage)
		}

		for _, m := range metrics {
			values, ok := numeric[m]
			if !ok {
				continue
			}
			rep.Metrics[b.ScorerName+"."+m] = reduce(values)
		}
	}

	return rep, nil
}

func asFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	default:
		return 0, false
	}
}
