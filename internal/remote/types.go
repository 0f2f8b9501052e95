// Package remote drives scorers executed out of process by an
// evaluation service: one definition and one payload per batch, then a
// polling loop until the run reaches a terminal state.
package remote

import (
	"context"
	"fmt"
)

// Client is the consumed surface of the remote evaluation service.
type Client interface {
	// CreateDefinition registers an evaluation definition (schema plus
	// criteria set) and returns its id.
	CreateDefinition(ctx context.Context, def Definition) (string, error)

	// CreateRun starts a run of a definition over a payload and returns
	// an opaque run id without blocking on completion.
	CreateRun(ctx context.Context, definitionID string, run RunRequest) (string, error)

	// GetRunStatus reports the current state of a run, with results
	// attached once the run completed.
	GetRunStatus(ctx context.Context, definitionID, runID string) (*RunStatus, error)
}

// Definition groups every remote scorer of one batch into a single
// evaluation definition.
type Definition struct {
	Schema   []string    `json:"schema"` // payload column names
	Criteria []Criterion `json:"criteria"`
}

// Criterion is the service-side configuration for one remote scorer.
type Criterion struct {
	Name    string         `json:"name"`
	Config  map[string]any `json:"config,omitempty"`
	Outputs []string       `json:"outputs"`
}

// RunRequest carries the formatted data payload for one run.
type RunRequest struct {
	Rows     []PayloadRow      `json:"rows"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PayloadRow is one dataset row shaped for the service: per-scorer
// arguments produced by the same column-mapping semantics the local
// path uses.
type PayloadRow struct {
	Index  int                       `json:"index"`
	Inputs map[string]map[string]any `json:"inputs"` // scorer -> param -> value
}

// Run states reported by the service. Anything outside the terminal set
// keeps the poller going.
const (
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCanceled  = "canceled"
)

// RunStatus is one GetRunStatus response.
type RunStatus struct {
	State   string         `json:"state"`
	Message string         `json:"message,omitempty"`
	Rows    []RunRowResult `json:"rows,omitempty"`
}

// RunRowResult is the service's outcome for one payload row.
type RunRowResult struct {
	Index   int                       `json:"index"`
	Outputs map[string]map[string]any `json:"outputs,omitempty"` // scorer -> metric -> value
	Errors  map[string]string         `json:"errors,omitempty"`  // scorer -> message
}

// SubmissionError means the job could not be created. It aborts the
// remote path only.
type SubmissionError struct {
	Op  string // "create_definition" or "create_run"
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError means a status check failed or the run reported a failed or
// canceled state. It aborts the remote path only.
type PollError struct {
	State   string
	Message string
	Err     error
}

func (e *PollError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("remote: poll: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("remote: run %s: %s", e.State, e.Message)
	default:
		return fmt.Sprintf("remote: run %s", e.State)
	}
}

func (e *PollError) Unwrap() error { return e.Err }
