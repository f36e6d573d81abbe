package container

import (
	"fmt"
	"sync"

	"github.com/nao1215/unseen/internal/model"
)

// Registry maps container names to containers. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*model.Container
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*model.Container)}
}

// Ensure returns the container called name, creating it with the given
// persistence when it does not exist yet. The returned bool reports whether
// the container was created by this call.
func (r *Registry) Ensure(name string, persistent bool) (model.Container, bool, error) {
	if name == "" {
		return model.Container{}, false, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.byName[name]; ok {
		return *c, false, nil
	}
	c := model.NewContainer(name, persistent)
	r.byName[name] = &c
	r.order = append(r.order, name)
	return c, true, nil
}

// SetAnonymity sets the anonymity flag of an existing container. Nothing
// else about the container changes.
func (r *Registry) SetAnonymity(name string, enabled bool) (model.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byName[name]
	if !ok {
		return model.Container{}, fmt.Errorf("%w: %q", ErrUnknownContainer, name)
	}
	c.AnonymityEnabled = enabled
	return *c, nil
}

// Get returns the container called name.
func (r *Registry) Get(name string) (model.Container, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byName[name]
	if !ok {
		return model.Container{}, false
	}
	return *c, true
}

// List returns all containers in creation order.
func (r *Registry) List() []model.Container {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Container, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.byName[name])
	}
	return out
}

// Len returns the number of containers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
