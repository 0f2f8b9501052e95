// Package evaluate is the engine entry point: it splits scorers across
// the local and remote execution paths, runs both concurrently, and
// merges their reports under the cross-path resilience policy.
package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/batch-eval/internal/dataset"
	"github.com/stellarlinkco/batch-eval/internal/local"
	"github.com/stellarlinkco/batch-eval/internal/mapping"
	"github.com/stellarlinkco/batch-eval/internal/remote"
	"github.com/stellarlinkco/batch-eval/internal/result"
	"github.com/stellarlinkco/batch-eval/internal/scorer"
)

// ConfigError means the evaluation request itself is invalid. Always
// fatal: no report is produced.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "evaluate: invalid request: " + e.Message
}

// Options tunes one Evaluate call. Defaults are filled centrally here;
// nothing is read from process-global state.
type Options struct {
	// Concurrency caps in-flight local row tasks. Values < 1 fall back
	// to the pool default.
	Concurrency int

	// TaskTimeout bounds one local scorer invocation.
	TaskTimeout time.Duration

	// BatchTimeout bounds one local scorer's whole row set.
	BatchTimeout time.Duration

	// FailOnError aborts the local path on the first row failure.
	FailOnError bool

	// PollInterval is the remote status-check interval.
	PollInterval time.Duration

	// Metadata is attached to the remote run.
	Metadata map[string]string

	// Reduce folds successful metric values into aggregates; nil means
	// result.Mean.
	Reduce result.Reducer

	// OnRow observes local row results as they complete.
	OnRow func(result.RowResult)

	// OnPhase observes remote lifecycle transitions.
	OnPhase func(remote.Phase)
}

// Request is one evaluation invocation.
type Request struct {
	Dataset *dataset.Dataset

	// Local scorers run in process; Remote scorers run on the service.
	Local  []scorer.Local
	Remote []*scorer.Remote

	// Mappings binds scorer parameters to row data, keyed by scorer
	// name. Scorers without an entry use identity mapping.
	Mappings map[string]mapping.Spec

	// Client talks to the evaluation service. Required when Remote is
	// non-empty.
	Client remote.Client

	Options Options
}

// Evaluate runs the request to completion and returns the merged
// report. It blocks until the report (success or resilient partial
// failure) is ready, or until ctx is canceled.
func Evaluate(ctx context.Context, req Request) (*result.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	type pathResult struct {
		report *result.Report
		err    error
	}
	var localRes, remoteRes pathResult

	// The two paths share only the read-only dataset.
	var wg sync.WaitGroup
	if len(req.Local) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := local.Run(ctx, req.Dataset, req.Local, req.Mappings, local.Options{
				Limit:        req.Options.Concurrency,
				TaskTimeout:  req.Options.TaskTimeout,
				BatchTimeout: req.Options.BatchTimeout,
				FailOnError:  req.Options.FailOnError,
				Reduce:       req.Options.Reduce,
				OnRow:        req.Options.OnRow,
			})
			localRes = pathResult{report: rep, err: err}
		}()
	}
	if len(req.Remote) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := remote.Run(ctx, req.Client, req.Dataset, req.Remote, req.Mappings, remote.Options{
				PollInterval: req.Options.PollInterval,
				Metadata:     req.Options.Metadata,
				Reduce:       req.Options.Reduce,
				OnPhase:      req.Options.OnPhase,
			})
			remoteRes = pathResult{report: rep, err: err}
		}()
	}
	wg.Wait()

	ranLocal := len(req.Local) > 0
	ranRemote := len(req.Remote) > 0

	switch {
	case ranLocal && ranRemote && localRes.err != nil && remoteRes.err != nil:
		return nil, fmt.Errorf("evaluate: both paths failed: %w", errors.Join(localRes.err, remoteRes.err))

	case ranLocal && localRes.err != nil && !ranRemote:
		return nil, fmt.Errorf("evaluate: %w", localRes.err)

	case ranRemote && remoteRes.err != nil && !ranLocal:
		return nil, fmt.Errorf("evaluate: %w", remoteRes.err)

	case ranLocal && ranRemote && localRes.err != nil:
		// Resilience: the surviving remote report is returned, annotated.
		rep := remoteRes.report
		rep.Failures = append(rep.Failures, pathFailure("local", localRes.err))
		return rep, nil

	case ranLocal && ranRemote && remoteRes.err != nil:
		rep := localRes.report
		rep.Failures = append(rep.Failures, pathFailure("remote", remoteRes.err))
		return rep, nil
	}

	merged, err := result.Merge(localRes.report, remoteRes.report)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func validate(req Request) error {
	if req.Dataset == nil || req.Dataset.Len() == 0 {
		return &ConfigError{Message: "empty dataset"}
	}
	if len(req.Local)+len(req.Remote) == 0 {
		return &ConfigError{Message: "no scorers"}
	}
	if len(req.Remote) > 0 && req.Client == nil {
		return &ConfigError{Message: "remote scorers configured without a service client"}
	}

	names := make(map[string]struct{}, len(req.Local)+len(req.Remote))
	addName := func(name string) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return &ConfigError{Message: "scorer with empty name"}
		}
		if _, dup := names[name]; dup {
			return &ConfigError{Message: fmt.Sprintf("duplicate scorer name %q", name)}
		}
		names[name] = struct{}{}
		return nil
	}

	for _, s := range req.Local {
		if s == nil {
			return &ConfigError{Message: "nil local scorer"}
		}
		if err := addName(s.Name()); err != nil {
			return err
		}
	}
	for _, s := range req.Remote {
		if s == nil {
			return &ConfigError{Message: "nil remote scorer"}
		}
		if err := addName(s.Name); err != nil {
			return err
		}
	}

	for name := range req.Mappings {
		if _, ok := names[name]; !ok {
			return &ConfigError{Message: fmt.Sprintf("mapping spec for unknown scorer %q", name)}
		}
	}
	return nil
}

func pathFailure(path string, err error) result.PathFailure {
	kind := "path_error"
	var subErr *remote.SubmissionError
	var pollErr *remote.PollError
	switch {
	case errors.As(err, &subErr):
		kind = "remote_submission"
	case errors.As(err, &pollErr):
		kind = "remote_poll"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "canceled"
	}
	return result.PathFailure{Path: path, Kind: kind, Message: err.Error()}
}
