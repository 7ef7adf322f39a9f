// Package registry aggregates the operations advertised by live backends
// into one flat catalog.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/fsassist/domain/capability"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
)

type entry struct {
	descriptor capability.Descriptor
	owner      capability.Backend
}

// Registry is the capability registry. Operation names are unique across
// the catalog; on a collision the first registered backend keeps the name.
type Registry struct {
	mu       sync.RWMutex
	backends []capability.Backend
	entries  []entry
	index    map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register lists the backend's operations and adds them to the catalog.
// It returns the number of operations that became visible.
func (r *Registry) Register(ctx context.Context, b capability.Backend) (int, error) {
	if b == nil || b.Tag() == "" {
		return 0, capability.ErrInvalidBackend
	}

	descriptors, err := b.Capabilities(ctx)
	if err != nil {
		return 0, fmt.Errorf("list capabilities of %s: %w", b.Tag(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.backends {
		if existing.Tag() == b.Tag() {
			return 0, fmt.Errorf("%w: %s", capability.ErrBackendExists, b.Tag())
		}
	}
	r.backends = append(r.backends, b)

	added := 0
	for _, d := range descriptors {
		readOnly := d.ReadOnly
		d = capability.NewDescriptor(d.Name, d.Description, d.Parameters)
		d.ReadOnly = readOnly
		if i, exists := r.index[d.Name]; exists {
			logging.Warn().
				Add(logging.Component("registry")).
				Add(logging.ToolName(d.Name)).
				Add(logging.Str("owner", r.entries[i].owner.Tag())).
				Add(logging.Str("shadowed", b.Tag())).
				Msg("operation name collision, keeping first registration")
			continue
		}
		r.index[d.Name] = len(r.entries)
		r.entries = append(r.entries, entry{descriptor: d, owner: b})
		added++
	}

	logging.Info().
		Add(logging.Component("registry")).
		Add(logging.Backend(b.Tag())).
		Add(logging.Count("operations", added)).
		Msg("backend registered")

	return added, nil
}

// Unregister removes a backend and every operation it owns. Operations it
// shadowed are not restored.
func (r *Registry) Unregister(tag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	backends := r.backends[:0]
	for _, b := range r.backends {
		if b.Tag() == tag {
			found = true
			continue
		}
		backends = append(backends, b)
	}
	r.backends = backends
	if !found {
		return false
	}

	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.owner.Tag() != tag {
			entries = append(entries, e)
		}
	}
	r.entries = entries
	r.reindex()
	return true
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.entries))
	for i, e := range r.entries {
		r.index[e.descriptor.Name] = i
	}
}

// Catalog returns every visible descriptor in provider registration order,
// then declaration order within a provider.
func (r *Registry) Catalog() []capability.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]capability.Descriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.descriptor
	}
	return out
}

// Describe returns the descriptor for an operation name.
func (r *Registry) Describe(name string) (capability.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return capability.Descriptor{}, false
	}
	return r.entries[i].descriptor, true
}

// OwnerOf returns the live backend owning an operation. A backend that is
// no longer alive is reported as not found.
func (r *Registry) OwnerOf(name string) (capability.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	owner := r.entries[i].owner
	if !owner.Alive() {
		return nil, false
	}
	return owner, true
}

// Backends returns the registered backend tags in registration order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, len(r.backends))
	for i, b := range r.backends {
		tags[i] = b.Tag()
	}
	return tags
}

// Count returns the number of visible operations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
