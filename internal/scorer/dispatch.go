package scorer

import (
	"context"
	"errors"
	"fmt"
)

// Invoke runs a local scorer with the given args. The surface is uniform
// across sync and async variants: args are pre-filtered to the declared
// signature, a panic inside the scorer becomes an error, and usage is
// reported even on failure.
func Invoke(ctx context.Context, s Local, args Args) (Outputs, Usage, error) {
	if s == nil {
		return nil, Usage{}, errors.New("scorer: nil scorer")
	}
	if ctx == nil {
		return nil, Usage{}, errors.New("scorer: nil context")
	}
	if err := ctx.Err(); err != nil {
		return nil, Usage{}, err
	}

	filtered := filterArgs(s.Params(), args)

	switch v := s.(type) {
	case *Async:
		if v == nil || v.fn == nil {
			return nil, Usage{}, fmt.Errorf("scorer: %s: nil callable", s.Name())
		}
		return invokeAsync(ctx, v, filtered)
	case *Sync:
		if v == nil || v.fn == nil {
			return nil, Usage{}, fmt.Errorf("scorer: %s: nil callable", s.Name())
		}
		return invokeSync(ctx, v, filtered)
	default:
		return nil, Usage{}, fmt.Errorf("scorer: %s: unsupported variant %T", s.Name(), s)
	}
}

func invokeAsync(ctx context.Context, s *Async, args Args) (out Outputs, usage Usage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("scorer: %s: panic: %v", s.name, r)
		}
	}()
	return s.fn(ctx, args)
}

type syncResult struct {
	out Outputs
	err error
}

// invokeSync runs the blocking callable on its own goroutine so the
// caller can still observe cancellation. An abandoned call keeps running
// until it returns, but its result is discarded.
func invokeSync(ctx context.Context, s *Sync, args Args) (Outputs, Usage, error) {
	done := make(chan syncResult, 1)

	go func() {
		var res syncResult
		defer func() {
			if r := recover(); r != nil {
				res = syncResult{err: fmt.Errorf("scorer: %s: panic: %v", s.name, r)}
			}
			done <- res
		}()
		out, err := s.fn(args)
		res = syncResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, Usage{}, res.err
	case <-ctx.Done():
		return nil, Usage{}, ctx.Err()
	}
}

// filterArgs drops args the scorer does not declare. Extra mapped fields
// are not errors.
func filterArgs(params []Param, args Args) Args {
	if len(args) == 0 {
		return Args{}
	}
	declared := make(map[string]struct{}, len(params))
	for _, p := range params {
		declared[p.Name] = struct{}{}
	}

	out := make(Args, len(args))
	for k, v := range args {
		if _, ok := declared[k]; ok {
			out[k] = v
		}
	}
	return out
}
