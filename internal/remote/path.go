package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stellarlinkco/batch-eval/internal/dataset"
	"github.com/stellarlinkco/batch-eval/internal/mapping"
	"github.com/stellarlinkco/batch-eval/internal/result"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// Phase is the batch lifecycle state.
type Phase string

const (
	PhaseCreated   Phase = "created"
	PhaseSubmitted Phase = "submitted"
	PhasePolling   Phase = "polling"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCanceled  Phase = "canceled"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollFailures = 5
)

// Options tunes one remote path run.
type Options struct {
	// PollInterval is the delay between status checks. Default 5s.
	PollInterval time.Duration

	// MaxPollFailures bounds consecutive failed status checks before the
	// path gives up. Default 5.
	MaxPollFailures int

	// Metadata is attached to the created run.
	Metadata map[string]string

	// Reduce folds successful metric values into aggregates; nil means
	// result.Mean.
	Reduce result.Reducer

	// OnPhase, if set, observes lifecycle transitions.
	OnPhase func(Phase)
}

// job tracks one submitted batch through its lifecycle.
type job struct {
	client       Client
	phase        Phase
	definitionID string
	runID        string
	onPhase      func(Phase)
}

func (j *job) transition(p Phase) {
	j.phase = p
	if j.onPhase != nil {
		j.onPhase(p)
	}
}

// Run groups all remote scorers into one definition, submits a run over
// the mapped dataset payload, polls to a terminal state, and reshapes
// the service results into the same report structure the local path
// produces. It shares no mutable state with the local path.
func Run(ctx context.Context, client Client, ds *dataset.Dataset, scorers []*scorer.Remote, specs map[string]mapping.Spec, opts Options) (*result.Report, error) {
	if ctx == nil {
		return nil, errors.New("remote: nil context")
	}
	if client == nil {
		return nil, errors.New("remote: nil client")
	}
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("remote: empty dataset")
	}
	if len(scorers) == 0 {
		return nil, errors.New("remote: no scorers")
	}

	startedAt := time.Now()

	def, run, err := buildRequest(ds, scorers, specs, opts.Metadata)
	if err != nil {
		return nil, err
	}

	j := &job{client: client, phase: PhaseCreated, onPhase: opts.OnPhase}
	if err := j.submit(ctx, def, run); err != nil {
		return nil, err
	}

	status, err := j.poll(ctx, opts)
	if err != nil {
		return nil, err
	}

	rep, err := reshape(status, scorers, ds.Len(), opts.Reduce)
	if err != nil {
		return nil, err
	}
	rep.StartedAt = startedAt
	rep.FinishedAt = time.Now()
	return rep, nil
}

// buildRequest applies each scorer's column mapping once across the
// dataset to produce the uniform nested-row payload.
func buildRequest(ds *dataset.Dataset, scorers []*scorer.Remote, specs map[string]mapping.Spec, metadata map[string]string) (Definition, RunRequest, error) {
	var def Definition

	schemaSet := make(map[string]struct{})
	for _, s := range scorers {
		if s == nil || s.Name == "" {
			return def, RunRequest{}, errors.New("remote: scorer with empty name")
		}
		if len(s.Outputs) == 0 {
			return def, RunRequest{}, fmt.Errorf("remote: scorer %s declares no outputs", s.Name)
		}
		def.Criteria = append(def.Criteria, Criterion{
			Name:    s.Name,
			Config:  s.Criteria,
			Outputs: s.Outputs,
		})
		for _, p := range s.Params {
			schemaSet[p.Name] = struct{}{}
		}
	}
	for name := range schemaSet {
		def.Schema = append(def.Schema, name)
	}
	sort.Strings(def.Schema)

	rows := make([]PayloadRow, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		row, err := ds.Row(i)
		if err != nil {
			return def, RunRequest{}, fmt.Errorf("remote: %w", err)
		}

		inputs := make(map[string]map[string]any, len(scorers))
		for _, s := range scorers {
			// Mapping errors are left to the service: absent params make
			// that row fail for that criterion on the service side.
			args, _ := mapping.Apply(s.Params, specs[s.Name], row)
			inputs[s.Name] = args
		}
		rows[i] = PayloadRow{Index: i, Inputs: inputs}
	}

	return def, RunRequest{Rows: rows, Metadata: metadata}, nil
}

func (j *job) submit(ctx context.Context, def Definition, run RunRequest) error {
	definitionID, err := j.client.CreateDefinition(ctx, def)
	if err != nil {
		j.transition(PhaseFailed)
		return &SubmissionError{Op: "create_definition", Err: err}
	}
	j.definitionID = definitionID

	runID, err := j.client.CreateRun(ctx, definitionID, run)
	if err != nil {
		j.transition(PhaseFailed)
		return &SubmissionError{Op: "create_run", Err: err}
	}
	j.runID = runID
	j.transition(PhaseSubmitted)
	return nil
}

var errStillRunning = errors.New("remote: run still in progress")

// poll checks run status at a fixed interval until a terminal state.
// There is no inherent timeout; cancellation comes from ctx.
func (j *job) poll(ctx context.Context, opts Options) (*RunStatus, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxFailures := opts.MaxPollFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxPollFailures
	}

	j.transition(PhasePolling)

	var status *RunStatus
	consecutive := 0

	check := func() error {
		st, err := j.client.GetRunStatus(ctx, j.definitionID, j.runID)
		if err != nil {
			consecutive++
			if consecutive >= maxFailures {
				return backoff.Permanent(&PollError{Err: err})
			}
			return err
		}
		consecutive = 0
		if st == nil {
			return errStillRunning
		}

		switch st.State {
		case StateCompleted:
			status = st
			return nil
		case StateFailed, StateCanceled:
			return backoff.Permanent(&PollError{State: st.State, Message: st.Message})
		default:
			return errStillRunning
		}
	}

	err := backoff.Retry(check, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err != nil {
		var pollErr *PollError
		if errors.As(err, &pollErr) {
			if pollErr.State == StateCanceled {
				j.transition(PhaseCanceled)
			} else {
				j.transition(PhaseFailed)
			}
			return nil, pollErr
		}
		if ctx.Err() != nil {
			j.transition(PhaseCanceled)
			return nil, ctx.Err()
		}
		j.transition(PhaseFailed)
		return nil, &PollError{Err: err}
	}

	j.transition(PhaseCompleted)
	return status, nil
}

// reshape converts service row results into index-aligned batches.
func reshape(status *RunStatus, scorers []*scorer.Remote, rowCount int, reduce result.Reducer) (*result.Report, error) {
	if status == nil {
		return nil, errors.New("remote: completed run with no status")
	}

	batchByName := make(map[string]*result.BatchResult, len(scorers))
	batches := make([]*result.BatchResult, 0, len(scorers))
	for _, s := range scorers {
		b := result.NewBatch(s.Name, rowCount)
		b.DeclaredOutputs = append([]string(nil), s.Outputs...)
		batchByName[s.Name] = b
		batches = append(batches, b)
	}

	for _, rr := range status.Rows {
		if rr.Index < 0 || rr.Index >= rowCount {
			return nil, fmt.Errorf("remote: result row index %d outside dataset [0,%d)", rr.Index, rowCount)
		}
		for name, outputs := range rr.Outputs {
			b, ok := batchByName[name]
			if !ok {
				continue
			}
			b.Rows[rr.Index] = result.RowResult{
				ScorerName: name,
				RowIndex:   rr.Index,
				Status:     result.RowSuccess,
				Outputs:    scorer.Outputs(outputs),
			}
		}
		for name, msg := range rr.Errors {
			b, ok := batchByName[name]
			if !ok {
				continue
			}
			b.Rows[rr.Index] = result.RowResult{
				ScorerName: name,
				RowIndex:   rr.Index,
				Status:     result.RowFailure,
				ErrKind:    result.KindScorerError,
				ErrMessage: msg,
			}
		}
	}

	for _, b := range batches {
		failed := false
		for _, r := range b.Rows {
			if r.Status != result.RowSuccess {
				failed = true
				break
			}
		}
		if failed {
			b.Status = result.BatchCompletedWithErrors
		} else {
			b.Status = result.BatchCompleted
		}
	}

	rep, err := result.BuildReport(batches, rowCount, reduce)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	return rep, nil
}
