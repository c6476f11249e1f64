package distro

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages registered distribution strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// NewDefaultRegistry registers every built-in distribution with its default
// configuration.
func NewDefaultRegistry(env Env, ha VersionSource) *Registry {
	r := NewRegistry()
	for _, s := range []Strategy{
		NewDebian(DefaultDebianConfig(), env),
		NewFedora(DefaultFedoraConfig(), env),
		NewUbuntu(DefaultUbuntuConfig(), env),
		NewHomeAssistant(DefaultHomeAssistantConfig(), env, ha),
		NewProxmox(DefaultProxmoxConfig(), env),
	} {
		// names are distinct constants
		_ = r.Register(s)
	}
	return r
}

// Register adds a strategy under its Name.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy cannot be nil")
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("distribution name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("distribution %s is already registered", name)
	}

	r.strategies[name] = s
	return nil
}

// Get retrieves a strategy by distribution name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.strategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDistribution, name)
	}

	return s, nil
}

// List returns all registered distribution names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
