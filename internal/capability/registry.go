package capability

import (
	"fmt"
	"sort"
	"sync"

	apperrors "maquette/internal/errors"
)

// Registry is a thread-safe lookup of capabilities by name. The pipeline
// never holds capability-specific logic; it resolves the capability mapped
// to a stage here and dispatches through the uniform interface.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register adds a capability. Registering a name twice is an error: routing
// must stay unambiguous.
func (r *Registry) Register(c Capability) error {
	if c == nil || c.Name() == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "capability must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[c.Name()]; exists {
		return fmt.Errorf("capability %q already registered", c.Name())
	}
	r.capabilities[c.Name()] = c
	return nil
}

// Replace adds or overwrites a capability. Used to swap in tool-backed
// implementations over defaults.
func (r *Registry) Replace(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Name()] = c
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrCapabilityUnknown, name)
	}
	return c, nil
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
