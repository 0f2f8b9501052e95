// Package result holds the immutable outcome structures produced by the
// execution paths and consumed by the merger.
package result

import (
	"sort"

	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// Failure kinds recorded on row results.
const (
	KindMissingInput = "missing_input"
	KindBadInput     = "bad_input"
	KindScorerError  = "scorer_error"
	KindTimeout      = "timeout"
	KindCanceled     = "canceled"
	KindIncomplete   = "incomplete"
)

// RowStatus is the outcome class for one (scorer, row) pair.
type RowStatus string

const (
	RowSuccess RowStatus = "success"
	RowFailure RowStatus = "failure"
	RowSkipped RowStatus = "skipped"
)

// RowResult is the outcome for one (scorer, row) pair, keyed by scorer
// name and row index. It is never written twice for the same key.
type RowResult struct {
	ScorerName string         `json:"scorer"`
	RowIndex   int            `json:"row_index"`
	Status     RowStatus      `json:"status"`
	Outputs    scorer.Outputs `json:"outputs,omitempty"`
	Usage      scorer.Usage   `json:"usage"`
	ErrKind    string         `json:"error_kind,omitempty"`
	ErrMessage string         `json:"error_message,omitempty"`
}

// BatchStatus is the outcome class for one scorer across all rows.
type BatchStatus string

const (
	BatchCompleted           BatchStatus = "completed"
	BatchCompletedWithErrors BatchStatus = "completed_with_errors"
	BatchCanceled            BatchStatus = "canceled"
	BatchTimedOut            BatchStatus = "timed_out"
)

// BatchResult aggregates one scorer over all rows. Rows is index-aligned
// with the dataset; a slot a task never filled stays an "incomplete"
// failure.
type BatchResult struct {
	ScorerName string       `json:"scorer"`
	Rows       []RowResult  `json:"rows"`
	Status     BatchStatus  `json:"status"`
	Usage      scorer.Usage `json:"usage"`

	// DeclaredOutputs fixes the metric columns for scorers that declare
	// them up front (remote scorers). When empty, columns are derived
	// from observed outputs.
	DeclaredOutputs []string `json:"declared_outputs,omitempty"`
}

// NewBatch builds a batch of n incomplete rows for one scorer.
func NewBatch(scorerName string, n int) *BatchResult {
	rows := make([]RowResult, n)
	for i := range rows {
		rows[i] = RowResult{
			ScorerName: scorerName,
			RowIndex:   i,
			Status:     RowFailure,
			ErrKind:    KindIncomplete,
			ErrMessage: "row never finished",
		}
	}
	return &BatchResult{ScorerName: scorerName, Rows: rows}
}

// MetricColumns returns this batch's metric names: the declared outputs
// when present, otherwise the sorted union of observed output names.
func (b *BatchResult) MetricColumns() []string {
	if b == nil {
		return nil
	}
	if len(b.DeclaredOutputs) > 0 {
		out := make([]string, len(b.DeclaredOutputs))
		copy(out, b.DeclaredOutputs)
		return out
	}

	seen := make(map[string]struct{})
	for _, r := range b.Rows {
		if r.Status != RowSuccess {
			continue
		}
		for name := range r.Outputs {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
