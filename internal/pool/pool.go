// Package pool runs row tasks under a bounded concurrency limit.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultLimit is the process-wide default concurrency limit. Callers
// override it through Options; nothing reads it implicitly.
const DefaultLimit = 4

// Status classifies one task outcome.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusTimedOut Status = "timed_out"
	StatusCanceled Status = "canceled"
)

// Task is one unit of work. It must honor ctx cancellation.
type Task func(ctx context.Context) (any, error)

// Outcome is the result of one task, index-aligned to the input slice.
type Outcome struct {
	Status Status
	Value  any
	Err    error
}

// Options bounds a Run call.
type Options struct {
	// Limit caps in-flight tasks. Values < 1 fall back to DefaultLimit.
	Limit int

	// TaskTimeout bounds a single task; zero means unbounded. An expired
	// task is TimedOut and does not block the rest of the batch.
	TaskTimeout time.Duration

	// BatchTimeout bounds the whole run; zero means unbounded. On expiry
	// in-flight tasks are canceled; completed outcomes are preserved.
	BatchTimeout time.Duration

	// OnDone, if set, observes completions as they happen, not in task
	// order. Calls are serialized.
	OnDone func(index int, out Outcome)
}

// Run executes tasks with at most opts.Limit in flight and returns one
// outcome per task, index-aligned. Tasks are admitted in submission
// order but complete in any order. A panic inside a task is converted
// to a Failure, never a crash of the run. External cancellation of ctx
// behaves exactly like batch timeout expiry.
func Run(ctx context.Context, tasks []Task, opts Options) []Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	limit := opts.Limit
	if limit < 1 {
		limit = DefaultLimit
	}

	batchCtx := ctx
	if opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, opts.BatchTimeout)
		defer cancel()
	}

	outcomes := make([]Outcome, len(tasks))
	sem := make(chan struct{}, limit)

	var doneMu sync.Mutex
	report := func(i int, out Outcome) {
		outcomes[i] = out
		if opts.OnDone != nil {
			doneMu.Lock()
			opts.OnDone(i, out)
			doneMu.Unlock()
		}
	}

	var wg sync.WaitGroup
admitLoop:
	for i := range tasks {
		select {
		case sem <- struct{}{}:
		case <-batchCtx.Done():
			// Everything not yet admitted is canceled in place.
			for j := i; j < len(tasks); j++ {
				report(j, Outcome{Status: StatusCanceled, Err: batchCtx.Err()})
			}
			break admitLoop
		}

		idx := i
		task := tasks[i]

		wg.Add(1)
		go func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			report(idx, runOne(batchCtx, task, opts.TaskTimeout))
		}()
	}
	wg.Wait()

	return outcomes
}

func runOne(batchCtx context.Context, task Task, taskTimeout time.Duration) Outcome {
	if task == nil {
		return Outcome{Status: StatusFailure, Err: errors.New("pool: nil task")}
	}

	taskCtx := batchCtx
	if taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(batchCtx, taskTimeout)
		defer cancel()
	}

	value, err := invoke(taskCtx, task)
	if err == nil {
		return Outcome{Status: StatusSuccess, Value: value}
	}

	switch {
	case batchCtx.Err() != nil:
		return Outcome{Status: StatusCanceled, Err: batchCtx.Err()}
	case taskCtx.Err() != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded):
		return Outcome{Status: StatusTimedOut, Err: taskCtx.Err()}
	default:
		return Outcome{Status: StatusFailure, Err: err}
	}
}

func invoke(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("pool: task panic: %v", r)
		}
	}()
	return task(ctx)
}
