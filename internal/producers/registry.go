package producers

import (
	"fmt"
	"sort"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

// Registry holds evidence producers keyed by name.
type Registry struct {
	producers map[string]evidence.Producer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{producers: make(map[string]evidence.Producer)}
}

// Register adds a producer. Names must be unique because the name is the
// component key the producer writes.
func (r *Registry) Register(p evidence.Producer) error {
	if _, ok := r.producers[p.Name()]; ok {
		return fmt.Errorf("producer %q already registered", p.Name())
	}
	r.producers[p.Name()] = p
	return nil
}

// Get retrieves a producer by name.
func (r *Registry) Get(name string) (evidence.Producer, bool) {
	p, ok := r.producers[name]
	return p, ok
}

// Len returns the number of registered producers.
func (r *Registry) Len() int { return len(r.producers) }

// All returns every producer ordered by name.
func (r *Registry) All() []evidence.Producer {
	out := make([]evidence.Producer, 0, len(r.producers))
	for _, p := range r.producers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Select returns the named producers, or all of them when names is empty.
func (r *Registry) Select(names ...string) ([]evidence.Producer, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]evidence.Producer, 0, len(names))
	for _, n := range names {
		p, ok := r.producers[n]
		if !ok {
			return nil, fmt.Errorf("unknown producer %q", n)
		}
		out = append(out, p)
	}
	return out, nil
}
