package result

import (
	"errors"
	"fmt"
)

// MergeError means the merge request itself is invalid: mismatched row
// counts or two paths declaring the same output column. Always fatal.
type MergeError struct {
	Message string
}

func (e *MergeError) Error() string {
	return "result: merge: " + e.Message
}

// Merge joins the local and remote reports column-wise by row index.
// Either side may be nil (that path had no scorers); a single non-nil
// report passes through unchanged. The result is a new report; inputs
// are not mutated.
func Merge(local, remote *Report) (*Report, error) {
	switch {
	case local == nil && remote == nil:
		return nil, errors.New("result: merge: no reports")
	case remote == nil:
		return local, nil
	case local == nil:
		return remote, nil
	}

	if len(local.Rows) != len(remote.Rows) {
		return nil, &MergeError{Message: fmt.Sprintf("row count mismatch: local %d, remote %d", len(local.Rows), len(remote.Rows))}
	}

	merged := &Report{
		Columns:    make([]string, 0, len(local.Columns)+len(remote.Columns)),
		Rows:       make([]TableRow, len(local.Rows)),
		Metrics:    make(map[string]float64, len(local.Metrics)+len(remote.Metrics)),
		StartedAt:  local.StartedAt,
		FinishedAt: local.FinishedAt,
	}

	seen := make(map[string]struct{}, len(local.Columns))
	for _, c := range local.Columns {
		seen[c] = struct{}{}
		merged.Columns = append(merged.Columns, c)
	}
	for _, c := range remote.Columns {
		if _, dup := seen[c]; dup {
			return nil, &MergeError{Message: fmt.Sprintf("output column %q produced by both paths", c)}
		}
		merged.Columns = append(merged.Columns, c)
	}

	for i := range merged.Rows {
		merged.Rows[i] = mergeRow(i, local.Rows[i], remote.Rows[i])
	}

	for k, v := range local.Metrics {
		merged.Metrics[k] = v
	}
	for k, v := range remote.Metrics {
		if _, dup := merged.Metrics[k]; dup {
			return nil, &MergeError{Message: fmt.Sprintf("aggregate metric %q produced by both paths", k)}
		}
		merged.Metrics[k] = v
	}

	merged.Failures = append(merged.Failures, local.Failures...)
	merged.Failures = append(merged.Failures, remote.Failures...)

	merged.Usage = local.Usage
	merged.Usage.Add(remote.Usage)

	if remote.StartedAt.Before(merged.StartedAt) && !remote.StartedAt.IsZero() {
		merged.StartedAt = remote.StartedAt
	}
	if remote.FinishedAt.After(merged.FinishedAt) {
		merged.FinishedAt = remote.FinishedAt
	}

	return merged, nil
}

func mergeRow(index int, a, b TableRow) TableRow {
	out := TableRow{Index: index, Values: make(map[string]any, len(a.Values)+len(b.Values))}
	for k, v := range a.Values {
		out.Values[k] = v
	}
	for k, v := range b.Values {
		out.Values[k] = v
	}
	if len(a.Errors)+len(b.Errors) > 0 {
		out.Errors = make(map[string]string, len(a.Errors)+len(b.Errors))
		for k, v := range a.Errors {
			out.Errors[k] = v
		}
		for k, v := range b.Errors {
			out.Errors[k] = v
		}
	}
	return out
}
