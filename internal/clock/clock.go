// Package clock is the single time source for the session engine. Elapsed
// time is always recomputed from Clock readings rather than accumulated by
// counting ticks, so throttled or skipped ticks catch up instead of drifting.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Go's time.Now carries a monotonic reading, so subtracting two readings is
// immune to wall-clock adjustments.
func (systemClock) Now() time.Time { return time.Now() }

func System() Clock { return systemClock{} }

// Manual is a hand-advanced clock for tests.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
