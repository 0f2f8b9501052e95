package scorer

import "context"

// Kind classifies a scorer parameter for input coercion.
type Kind string

const (
	KindAny    Kind = "any"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindList   Kind = "list"
)

// Param is one declared scorer parameter. Scorers expose an explicit
// signature so the column mapper can bind row data without reflection.
type Param struct {
	Name     string
	Kind     Kind
	Required bool
}

// Args holds the keyword arguments for one scorer invocation.
type Args map[string]any

// Outputs maps metric name to value. Numeric outputs feed aggregate
// reduction; text outputs (reasoning, labels) are carried through to the
// row table untouched.
type Outputs map[string]any

// Usage tracks resource consumption attributable to one invocation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(o Usage) {
	if u == nil {
		return
	}
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// Local is an in-process scorer. Concrete variants are Async (a
// context-aware callable) and Sync (a plain blocking callable).
type Local interface {
	Name() string
	Params() []Param
}

// AsyncFunc is a context-aware scorer callable. Usage is reported even
// when the call fails.
type AsyncFunc func(ctx context.Context, args Args) (Outputs, Usage, error)

// Async wraps a context-aware callable as a scorer.
type Async struct {
	name   string
	params []Param
	fn     AsyncFunc
}

// NewAsync builds an async scorer from a declared signature and callable.
func NewAsync(name string, params []Param, fn AsyncFunc) *Async {
	return &Async{name: name, params: params, fn: fn}
}

// Name returns the scorer identifier.
func (s *Async) Name() string { return s.name }

// Params returns the declared signature.
func (s *Async) Params() []Param { return s.params }

// SyncFunc is a plain blocking scorer callable.
type SyncFunc func(args Args) (Outputs, error)

// Sync wraps a blocking callable as a scorer. The dispatcher isolates it
// on its own goroutine so a stuck call cannot hold up cancellation.
type Sync struct {
	name   string
	params []Param
	fn     SyncFunc
}

// NewSync builds a sync scorer from a declared signature and callable.
func NewSync(name string, params []Param, fn SyncFunc) *Sync {
	return &Sync{name: name, params: params, fn: fn}
}

// Name returns the scorer identifier.
func (s *Sync) Name() string { return s.name }

// Params returns the declared signature.
func (s *Sync) Params() []Param { return s.params }

// Remote describes a scorer executed out of process by the evaluation
// service. Criteria is the service-side evaluator config; Outputs lists
// the metric names the service reports back for this scorer.
type Remote struct {
	Name     string
	Criteria map[string]any
	Params   []Param
	Outputs  []string
}
