package algo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evoquant/evobot/internal/domain"
)

// Registry manages the closed set of algorithm families. It is safe for
// concurrent use. This is the safety boundary for evolution: candidate
// descriptors naming a family outside the registry are rejected, never
// executed.
type Registry struct {
	mu       sync.RWMutex
	families map[string]Family
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// Register adds a family under its name. An existing family with the same
// name is replaced.
func (r *Registry) Register(f Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[f.Name] = f
}

// Get retrieves a family by name.
func (r *Registry) Get(name string) (Family, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.families[name]
	if !ok {
		return Family{}, fmt.Errorf("family %q: not registered: %w", name, domain.ErrProposalValidation)
	}
	return f, nil
}

// List returns all registered family names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.families))
	for n := range r.families {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateCandidate checks a proposed descriptor against the registry:
// the family must exist, the parameter set must satisfy its schema, and a
// throwaway instance must construct cleanly. Constructors hold the
// cross-parameter constraints the per-key schema cannot express, such as a
// short window staying below a long one.
func (r *Registry) ValidateCandidate(c domain.CandidateDescriptor) error {
	f, err := r.Get(c.Family)
	if err != nil {
		return err
	}
	if err := f.ValidateParams(c.Params); err != nil {
		return err
	}
	if _, err := f.New("", c.Params); err != nil {
		return fmt.Errorf("family %s: %v: %w", c.Family, err, domain.ErrProposalValidation)
	}
	return nil
}

// Build instantiates a runnable Algorithm from a descriptor. The descriptor
// is validated first, so a corrupt pool entry cannot slip through.
func (r *Registry) Build(d domain.AlgorithmDescriptor) (Algorithm, error) {
	f, err := r.Get(d.Family)
	if err != nil {
		return nil, err
	}
	if err := f.ValidateParams(d.Params); err != nil {
		return nil, err
	}
	a, err := f.New(d.ID, d.Params)
	if err != nil {
		return nil, fmt.Errorf("family %s: build %s: %w", d.Family, d.ID, err)
	}
	return a, nil
}
