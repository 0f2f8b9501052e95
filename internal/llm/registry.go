package llm

import "strings"

// Registry stores providers by lowercase name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider; empty or nil entries are ignored.
func (r *Registry) Register(p Provider) {
	if r == nil || p == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(p.Name()))
	if name == "" {
		return
	}
	if r.providers == nil {
		r.providers = make(map[string]Provider)
	}
	r.providers[name] = p
}

// Get returns a named provider if present.
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil || r.providers == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}
