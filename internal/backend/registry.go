package backend

import (
	"fmt"
	"sort"
	"sync"
)

// BackendInfo pairs a module name with the capabilities of its backend.
type BackendInfo struct {
	Module       string              `json:"module"`
	Capabilities BackendCapabilities `json:"capabilities"`
}

// Registry maps module names to the backends that run them.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend for the given module, replacing any previous one.
func (r *Registry) Register(module string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[module] = b
}

// Resolve returns the backend registered for module.
func (r *Registry) Resolve(module string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[module]
	if !ok {
		return nil, fmt.Errorf("no backend registered for module %q", module)
	}
	return b, nil
}

// List returns information about all registered backends, sorted by module
// name for a stable API response.
func (r *Registry) List() []BackendInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]BackendInfo, 0, len(r.backends))
	for module, b := range r.backends {
		infos = append(infos, BackendInfo{
			Module:       module,
			Capabilities: b.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Module < infos[j].Module
	})
	return infos
}
