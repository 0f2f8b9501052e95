// Package local drives in-process scorers over a dataset: column
// mapping, dispatch, and bounded concurrency per scorer.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/dataset"
	"github.com/stellarlinkco/batch-eval/internal/mapping"
	"github.com/stellarlinkco/batch-eval/internal/pool"
	"github.com/stellarlinkco/batch-eval/internal/result"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// Options tunes one local path run.
type Options struct {
	// Limit caps in-flight row tasks; shared across scorers, which run
	// sequentially relative to each other.
	Limit int

	// TaskTimeout bounds one scorer invocation; zero means unbounded.
	TaskTimeout time.Duration

	// BatchTimeout bounds one scorer's whole row set; zero means
	// unbounded.
	BatchTimeout time.Duration

	// FailOnError aborts the path on the first row failure, with
	// best-effort cancellation of in-flight rows. When false (the
	// default) failures are recorded per row and execution continues.
	FailOnError bool

	// Reduce folds successful metric values into aggregates; nil means
	// result.Mean.
	Reduce result.Reducer

	// OnRow, if set, observes row results as they are produced.
	OnRow func(result.RowResult)
}

// rowOutcome carries a scorer invocation result through the pool so
// usage survives scorer failures.
type rowOutcome struct {
	outputs scorer.Outputs
	usage   scorer.Usage
	err     error
}

// Run evaluates every scorer against every row and returns the path
// report. Scorer order is preserved in the report's columns.
func Run(ctx context.Context, ds *dataset.Dataset, scorers []scorer.Local, specs map[string]mapping.Spec, opts Options) (*result.Report, error) {
	if ctx == nil {
		return nil, errors.New("local: nil context")
	}
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("local: empty dataset")
	}
	if len(scorers) == 0 {
		return nil, errors.New("local: no scorers")
	}

	startedAt := time.Now()
	n := ds.Len()

	batches := make([]*result.BatchResult, 0, len(scorers))
	for _, s := range scorers {
		if s == nil || strings.TrimSpace(s.Name()) == "" {
			return nil, errors.New("local: scorer with empty name")
		}

		batch, err := runScorer(ctx, ds, s, specs[s.Name()], opts)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}

	rep, err := result.BuildReport(batches, n, opts.Reduce)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	rep.StartedAt = startedAt
	rep.FinishedAt = time.Now()
	return rep, nil
}

func runScorer(ctx context.Context, ds *dataset.Dataset, s scorer.Local, spec mapping.Spec, opts Options) (*result.BatchResult, error) {
	n := ds.Len()
	batch := result.NewBatch(s.Name(), n)

	// Column mapping happens up front: rows that cannot be mapped never
	// reach the pool.
	type mapped struct {
		rowIdx int
		args   scorer.Args
	}
	var runnable []mapped
	for i := 0; i < n; i++ {
		row, err := ds.Row(i)
		if err != nil {
			return nil, fmt.Errorf("local: scorer %s: %w", s.Name(), err)
		}

		args, mapErrs := mapping.Apply(s.Params(), spec, row)
		if len(mapErrs) > 0 {
			first := mapErrs[0]
			rr := result.RowResult{
				ScorerName: s.Name(),
				RowIndex:   i,
				Status:     result.RowFailure,
				ErrKind:    string(first.Kind),
				ErrMessage: first.Message,
			}
			setRow(batch, rr, opts.OnRow)
			if opts.FailOnError {
				return nil, fmt.Errorf("local: scorer %s row %d: %s", s.Name(), i, first.Error())
			}
			continue
		}
		runnable = append(runnable, mapped{rowIdx: i, args: args})
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.FailOnError {
		runCtx, cancel = context.WithCancel(ctx)
		defer cancel()
	}

	tasks := make([]pool.Task, len(runnable))
	for ti := range runnable {
		m := runnable[ti]
		tasks[ti] = func(taskCtx context.Context) (any, error) {
			outputs, usage, err := scorer.Invoke(taskCtx, s, m.args)
			if err != nil && taskCtx.Err() != nil {
				// Let the pool classify timeouts and cancellation.
				return nil, taskCtx.Err()
			}
			return rowOutcome{outputs: outputs, usage: usage, err: err}, nil
		}
	}

	outcomes := pool.Run(runCtx, tasks, pool.Options{
		Limit:        opts.Limit,
		TaskTimeout:  opts.TaskTimeout,
		BatchTimeout: opts.BatchTimeout,
		OnDone: func(ti int, out pool.Outcome) {
			if opts.FailOnError && isFailure(out) {
				cancel()
			}
		},
	})

	var firstFailure *result.RowResult
	for ti, out := range outcomes {
		rr := toRowResult(s.Name(), runnable[ti].rowIdx, out)
		setRow(batch, rr, opts.OnRow)
		if rr.Status == result.RowFailure && rr.ErrKind != result.KindCanceled && firstFailure == nil {
			f := rr
			firstFailure = &f
		}
	}

	if opts.FailOnError && firstFailure != nil {
		return nil, fmt.Errorf("local: scorer %s row %d: %s: %s", s.Name(), firstFailure.RowIndex, firstFailure.ErrKind, firstFailure.ErrMessage)
	}

	batch.Status = batchStatus(ctx, batch)
	for _, r := range batch.Rows {
		batch.Usage.Add(r.Usage)
	}
	return batch, nil
}

func isFailure(out pool.Outcome) bool {
	if out.Status == pool.StatusFailure || out.Status == pool.StatusTimedOut {
		return true
	}
	if out.Status != pool.StatusSuccess {
		return false
	}
	payload, ok := out.Value.(rowOutcome)
	return ok && payload.err != nil
}

func toRowResult(scorerName string, rowIdx int, out pool.Outcome) result.RowResult {
	rr := result.RowResult{ScorerName: scorerName, RowIndex: rowIdx}

	switch out.Status {
	case pool.StatusSuccess:
		payload, ok := out.Value.(rowOutcome)
		if !ok {
			rr.Status = result.RowFailure
			rr.ErrKind = result.KindScorerError
			rr.ErrMessage = fmt.Sprintf("unexpected task payload %T", out.Value)
			return rr
		}
		rr.Usage = payload.usage
		if payload.err != nil {
			rr.Status = result.RowFailure
			rr.ErrKind = result.KindScorerError
			rr.ErrMessage = payload.err.Error()
			return rr
		}
		rr.Status = result.RowSuccess
		rr.Outputs = payload.outputs
		return rr

	case pool.StatusTimedOut:
		rr.Status = result.RowFailure
		rr.ErrKind = result.KindTimeout
		rr.ErrMessage = errMessage(out.Err)
		return rr

	case pool.StatusCanceled:
		rr.Status = result.RowFailure
		rr.ErrKind = result.KindCanceled
		rr.ErrMessage = errMessage(out.Err)
		return rr

	default:
		rr.Status = result.RowFailure
		rr.ErrKind = result.KindScorerError
		rr.ErrMessage = errMessage(out.Err)
		return rr
	}
}

func setRow(batch *result.BatchResult, rr result.RowResult, onRow func(result.RowResult)) {
	batch.Rows[rr.RowIndex] = rr
	if onRow != nil {
		onRow(rr)
	}
}

func batchStatus(ctx context.Context, batch *result.BatchResult) result.BatchStatus {
	canceled := false
	failed := false
	for _, r := range batch.Rows {
		switch {
		case r.Status == result.RowFailure && r.ErrKind == result.KindCanceled:
			canceled = true
		case r.Status == result.RowFailure:
			failed = true
		}
	}

	switch {
	case canceled && ctx.Err() != nil:
		return result.BatchCanceled
	case canceled:
		// Cancellation originated from the scorer's batch timeout.
		return result.BatchTimedOut
	case failed:
		return result.BatchCompletedWithErrors
	default:
		return result.BatchCompleted
	}
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
