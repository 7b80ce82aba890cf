package search

import (
	"fmt"
	"sort"
	"sync"

	"github.com/scholarwatch/paper-pipeline-service/internal/domain"
)

// Registry holds the configured search sources keyed by name. Task pipeline
// configurations reference sources by name; resolving an unknown or disabled
// source is a fatal configuration error for the run.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds a source to the registry, replacing any source with the
// same name.
func (r *Registry) Register(source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[source.Name()] = source
}

// Resolve returns the enabled source with the given name.
func (r *Registry) Resolve(name string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	source, ok := r.sources[name]
	if !ok {
		return nil, domain.NewValidationError("source", fmt.Sprintf("unknown search source %q", name))
	}
	if !source.Enabled() {
		return nil, domain.NewValidationError("source", fmt.Sprintf("search source %q is disabled", name))
	}
	return source, nil
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
