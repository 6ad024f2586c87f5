package session

import "sync"

// Registry hands out the one engine per user, enforcing the at-most-one
// active session invariant at the process level.
type Registry struct {
	mu      sync.Mutex
	deps    EngineDeps
	engines map[string]*Engine
}

func NewRegistry(deps EngineDeps) *Registry {
	return &Registry{
		deps:    deps,
		engines: make(map[string]*Engine),
	}
}

// ForUser returns the user's engine, creating an idle one on first use.
func (r *Registry) ForUser(userID string) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.engines[userID]
	if !ok {
		e = newEngine(userID, r.deps)
		r.engines[userID] = e
	}
	return e
}

// Each visits every known engine; used by the autosave worker.
func (r *Registry) Each(fn func(userID string, e *Engine)) {
	r.mu.Lock()
	snapshot := make(map[string]*Engine, len(r.engines))
	for id, e := range r.engines {
		snapshot[id] = e
	}
	r.mu.Unlock()

	for id, e := range snapshot {
		fn(id, e)
	}
}
