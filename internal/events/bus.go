// Package events is the typed publish/subscribe channel for session
// lifecycle notifications. It replaces ambient global event dispatch: every
// producer publishes a typed payload on the bus, and the celebration UI,
// portal supervisor, and WebSocket mirrors subscribe explicitly.
package events

import (
	"sync"
	"time"

	"github.com/planloop/planloop/internal/models"
)

type Type string

const (
	TypeSessionState      Type = "session-state"
	TypeSessionEnded      Type = "session-ended"
	TypeStreakUpdated     Type = "streak-updated"
	TypeFreezeAutoApplied Type = "freeze-auto-applied"
	TypePortalDirective   Type = "portal-directive"
	TypeAutosaveWarning   Type = "autosave-warning"
)

type SessionEnded struct {
	Duration int64        `json:"duration"`
	XPGained int64        `json:"xp_gained"`
	Stage    models.Stage `json:"stage"`
}

type StreakUpdated struct {
	StreakCount  int  `json:"streak_count"`
	DidCelebrate bool `json:"did_celebrate"`
}

type FreezeAutoApplied struct {
	FreezesUsed   int `json:"freezes_used"`
	CurrentStreak int `json:"current_streak"`
}

const (
	PortalOpen  = "open"
	PortalClose = "close"
)

type PortalDirective struct {
	Action string `json:"action"` // open|close
}

type AutosaveWarning struct {
	ConsecutiveFailures int `json:"consecutive_failures"`
}

type Event struct {
	Type    Type      `json:"type"`
	UserID  string    `json:"user_id"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

type Handler func(Event)

type Bus struct {
	mu   sync.RWMutex
	subs map[Type][]Handler
	all  []Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]Handler)}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll receives every event regardless of type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers synchronously on the caller's goroutine. Handlers must not
// block; anything slow belongs behind its own channel.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Type])+len(b.all))
	handlers = append(handlers, b.subs[ev.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
