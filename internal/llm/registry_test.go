package llm

import (
	"context"
	"sort"
	"testing"
)

type stubProvider struct {
	name string
}

func (p stubProvider) Name() string { return p.name }

func (p stubProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Content: "stub"}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubProvider{name: "Claude"})
	reg.Register(stubProvider{name: "openai"})
	reg.Register(stubProvider{name: "  "})
	reg.Register(nil)

	if _, ok := reg.Get("claude"); !ok {
		t.Fatal("lookup is not case-insensitive")
	}
	if _, ok := reg.Get("CLAUDE"); !ok {
		t.Fatal("uppercase lookup failed")
	}
	if _, ok := reg.Get("gemini"); ok {
		t.Fatal("unknown provider found")
	}

	names := reg.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "claude" || names[1] != "openai" {
		t.Fatalf("names = %v", names)
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	t.Parallel()

	var reg *Registry
	reg.Register(stubProvider{name: "x"})
	if _, ok := reg.Get("x"); ok {
		t.Fatal("nil registry returned a provider")
	}
	if reg.Names() != nil {
		t.Fatal("nil registry returned names")
	}
}
