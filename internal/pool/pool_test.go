package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	tasks := make([]Task, 5)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			return i * 10, nil
		}
	}

	outcomes := Run(context.Background(), tasks, Options{Limit: 2})
	if len(outcomes) != 5 {
		t.Fatalf("outcomes = %d, want 5", len(outcomes))
	}
	for i, out := range outcomes {
		if out.Status != StatusSuccess {
			t.Fatalf("outcome %d status = %s", i, out.Status)
		}
		if out.Value != i*10 {
			t.Fatalf("outcome %d value = %v, want %d", i, out.Value, i*10)
		}
	}
}

func TestRun_RespectsLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak int64
	var mu sync.Mutex

	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (any, error) {
			cur := atomic.AddInt64(&inFlight, 1)
			mu.Lock()
			if cur > peak {
				peak = cur
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return nil, nil
		}
	}

	Run(context.Background(), tasks, Options{Limit: 3})

	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Fatalf("peak in-flight = %d, want <= 3", peak)
	}
	if peak < 1 {
		t.Fatalf("peak in-flight = %d, nothing ran", peak)
	}
}

func TestRun_FailureIsIsolated(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) (any, error) { return "ok", nil },
		func(ctx context.Context) (any, error) { return nil, boom },
		func(ctx context.Context) (any, error) { return "ok", nil },
	}

	outcomes := Run(context.Background(), tasks, Options{Limit: 1})
	if outcomes[0].Status != StatusSuccess || outcomes[2].Status != StatusSuccess {
		t.Fatalf("neighbors affected: %+v", outcomes)
	}
	if outcomes[1].Status != StatusFailure || !errors.Is(outcomes[1].Err, boom) {
		t.Fatalf("outcome 1 = %+v", outcomes[1])
	}
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	t.Parallel()

	tasks := []Task{
		func(ctx context.Context) (any, error) { panic("kaboom") },
		func(ctx context.Context) (any, error) { return 1, nil },
	}

	outcomes := Run(context.Background(), tasks, Options{Limit: 2})
	if outcomes[0].Status != StatusFailure {
		t.Fatalf("panic status = %s", outcomes[0].Status)
	}
	if !strings.Contains(outcomes[0].Err.Error(), "kaboom") {
		t.Fatalf("panic err = %v", outcomes[0].Err)
	}
	if outcomes[1].Status != StatusSuccess {
		t.Fatalf("outcome 1 status = %s", outcomes[1].Status)
	}
}

func TestRun_TaskTimeout(t *testing.T) {
	t.Parallel()

	tasks := []Task{
		func(ctx context.Context) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		func(ctx context.Context) (any, error) { return "fast", nil },
	}

	outcomes := Run(context.Background(), tasks, Options{
		Limit:       2,
		TaskTimeout: 20 * time.Millisecond,
	})
	if outcomes[0].Status != StatusTimedOut {
		t.Fatalf("slow task status = %s, err %v", outcomes[0].Status, outcomes[0].Err)
	}
	if outcomes[1].Status != StatusSuccess {
		t.Fatalf("fast task status = %s", outcomes[1].Status)
	}
}

func TestRun_BatchTimeoutPreservesCompleted(t *testing.T) {
	t.Parallel()

	tasks := []Task{
		func(ctx context.Context) (any, error) { return "done", nil },
		func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(ctx context.Context) (any, error) {
			// Admitted, if at all, only after batch expiry: limit 1 and
			// the task before it blocks until the deadline.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return "late", nil
		},
	}

	outcomes := Run(context.Background(), tasks, Options{
		Limit:        1,
		BatchTimeout: 50 * time.Millisecond,
	})
	if outcomes[0].Status != StatusSuccess || outcomes[0].Value != "done" {
		t.Fatalf("completed outcome lost: %+v", outcomes[0])
	}
	if outcomes[1].Status != StatusCanceled {
		t.Fatalf("in-flight task status = %s", outcomes[1].Status)
	}
	if outcomes[2].Status != StatusCanceled {
		t.Fatalf("unadmitted task status = %s", outcomes[2].Status)
	}
}

func TestRun_ExternalCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	tasks := []Task{
		func(ctx context.Context) (any, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	outcomes := Run(ctx, tasks, Options{Limit: 1})
	if outcomes[0].Status != StatusCanceled {
		t.Fatalf("status = %s, want canceled", outcomes[0].Status)
	}
}

func TestRun_OnDoneObservesEveryCompletion(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[int]Status)

	tasks := make([]Task, 6)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			if i%2 == 1 {
				return nil, fmt.Errorf("odd %d", i)
			}
			return i, nil
		}
	}

	Run(context.Background(), tasks, Options{
		Limit: 3,
		OnDone: func(index int, out Outcome) {
			mu.Lock()
			seen[index] = out.Status
			mu.Unlock()
		},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 6 {
		t.Fatalf("OnDone saw %d completions, want 6", len(seen))
	}
	for i, st := range seen {
		want := StatusSuccess
		if i%2 == 1 {
			want = StatusFailure
		}
		if st != want {
			t.Fatalf("index %d status = %s, want %s", i, st, want)
		}
	}
}

func TestRun_EmptyTasks(t *testing.T) {
	t.Parallel()

	outcomes := Run(context.Background(), nil, Options{})
	if len(outcomes) != 0 {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestRun_NilTask(t *testing.T) {
	t.Parallel()

	outcomes := Run(context.Background(), []Task{nil}, Options{})
	if outcomes[0].Status != StatusFailure {
		t.Fatalf("nil task status = %s", outcomes[0].Status)
	}
}
