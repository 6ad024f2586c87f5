// Package guard intercepts navigation attempts that would silently discard
// an unfinished session. It is a two-state machine (idle/blocked) that owns
// no timing state: it only observes the session's active flag and holds the
// single pending navigation intent.
package guard

import (
	"sync"
	"time"
)

type State string

const (
	StateIdle    State = "idle"
	StateBlocked State = "blocked"
)

// Intent is one deferred navigation attempt.
type Intent struct {
	Route string    `json:"route"`
	At    time.Time `json:"at"`
}

// ActiveFunc reports whether a session is currently active for the guarded
// user.
type ActiveFunc func() bool

// BlockedFunc is invoked instead of letting navigation complete.
type BlockedFunc func(Intent)

type Guard struct {
	mu        sync.Mutex
	state     State
	pending   *Intent
	active    ActiveFunc
	onBlocked BlockedFunc
}

func New(active ActiveFunc, onBlocked BlockedFunc) *Guard {
	return &Guard{
		state:     StateIdle,
		active:    active,
		onBlocked: onBlocked,
	}
}

// SetBlockedFunc registers the confirmation callback. May be nil.
func (g *Guard) SetBlockedFunc(fn BlockedFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onBlocked = fn
}

// Attempt asks to navigate to route. When no session is active the attempt
// passes through (allowed=true). While active the guard blocks and records
// the intent; attempts arriving while already blocked collapse onto the
// single pending intent, last one wins.
func (g *Guard) Attempt(route string, at time.Time) (allowed bool) {
	g.mu.Lock()

	if !g.active() {
		g.state = StateIdle
		g.pending = nil
		g.mu.Unlock()
		return true
	}

	intent := Intent{Route: route, At: at}
	g.state = StateBlocked
	g.pending = &intent
	cb := g.onBlocked
	g.mu.Unlock()

	if cb != nil {
		cb(intent)
	}
	return false
}

// Proceed completes the previously deferred navigation, returning the intent
// to carry out. ok is false when nothing was pending.
func (g *Guard) Proceed() (Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != StateBlocked || g.pending == nil {
		return Intent{}, false
	}
	intent := *g.pending
	g.state = StateIdle
	g.pending = nil
	return intent, true
}

// Reset cancels the deferred navigation; the user stays where they are.
func (g *Guard) Reset() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	had := g.state == StateBlocked
	g.state = StateIdle
	g.pending = nil
	return had
}

// State returns the current guard state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns the deferred intent, if any.
func (g *Guard) Pending() (Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == nil {
		return Intent{}, false
	}
	return *g.pending, true
}

// Registry keys one guard per user.
type Registry struct {
	mu     sync.Mutex
	guards map[string]*Guard
	active func(userID string) bool
}

func NewRegistry(active func(userID string) bool) *Registry {
	return &Registry{
		guards: make(map[string]*Guard),
		active: active,
	}
}

func (r *Registry) ForUser(userID string) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.guards[userID]
	if !ok {
		id := userID
		g = New(func() bool { return r.active(id) }, nil)
		r.guards[userID] = g
	}
	return g
}
