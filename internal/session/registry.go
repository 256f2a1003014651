package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// DefaultID is the session a server opens at start.
const DefaultID = "default"

// Factory builds the session for id, with its own canvas.
type Factory func(id string) (*Session, error)

// Registry holds the running sessions of a process.
type Registry struct {
	mu      sync.RWMutex
	actors  map[string]*Actor
	order   []string
	factory Factory
}

// NewRegistry creates an empty registry.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		actors:  make(map[string]*Actor),
		factory: factory,
	}
}

// Create starts a session under a fresh id.
func (r *Registry) Create() (*Actor, error) {
	return r.Open(uuid.NewString())
}

// Open returns the session id, starting it when needed.
func (r *Registry) Open(id string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[id]; ok {
		return a, nil
	}
	s, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	a := NewActor(s, 0)
	r.actors[id] = a
	r.order = append(r.order, id)
	return a, nil
}

// Get returns a running session.
func (r *Registry) Get(id string) (*Actor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[id]
	if !ok {
		return nil, maperr.NotFound("session %q not found", id)
	}
	return a, nil
}

// IDs lists sessions in creation order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// Remove stops and forgets a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	a, ok := r.actors[id]
	if ok {
		delete(r.actors, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return maperr.NotFound("session %q not found", id)
	}
	a.Close()
	return nil
}

// Close stops every session.
func (r *Registry) Close() {
	r.mu.Lock()
	actors := r.actors
	r.actors = make(map[string]*Actor)
	r.order = nil
	r.mu.Unlock()
	for _, a := range actors {
		a.Close()
	}
}
