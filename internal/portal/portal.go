// Package portal decides when the detached timer window should open or
// close. The popup is only ever a mirror: it renders the one session engine
// over the same event stream as the host tab and issues ordinary engine
// commands, so there is nothing to reconcile between windows.
package portal

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/scheduler"
	"github.com/planloop/planloop/internal/session"
)

// DefaultOpenDelay debounces rapid tab switching: the open directive is held
// back briefly and the session state re-checked when the delay fires.
const DefaultOpenDelay = 150 * time.Millisecond

// FlagsFunc reports (active, paused) for a user's session.
type FlagsFunc func(userID string) (active, paused bool)

// PrefsFunc reports whether the user wants the popup to open automatically.
type PrefsFunc func(userID string) bool

type Supervisor struct {
	clk       clock.Clock
	sched     *scheduler.Scheduler
	bus       *events.Bus
	flags     FlagsFunc
	autoPopup PrefsFunc
	log       *logrus.Logger
	delay     time.Duration

	mu     sync.Mutex
	open   map[string]bool
	hidden map[string]bool
}

func NewSupervisor(clk clock.Clock, sched *scheduler.Scheduler, bus *events.Bus, flags FlagsFunc, autoPopup PrefsFunc, log *logrus.Logger, delay time.Duration) *Supervisor {
	if delay <= 0 {
		delay = DefaultOpenDelay
	}
	s := &Supervisor{
		clk:       clk,
		sched:     sched,
		bus:       bus,
		flags:     flags,
		autoPopup: autoPopup,
		log:       log,
		delay:     delay,
		open:      make(map[string]bool),
		hidden:    make(map[string]bool),
	}
	// The portal closes whenever the session pauses or ends, regardless of
	// visibility.
	bus.Subscribe(events.TypeSessionState, s.onSessionState)
	return s
}

func openKey(userID string) string { return "portal-open:" + userID }

// SetVisibility feeds a tab visibility change for one user. Hiding an
// active, unpaused session schedules a delayed open; regaining visibility
// cancels any pending open and closes an open portal immediately.
func (s *Supervisor) SetVisibility(userID string, hidden bool) {
	s.mu.Lock()
	s.hidden[userID] = hidden
	s.mu.Unlock()

	if !hidden {
		s.sched.Cancel(openKey(userID))
		s.close(userID)
		return
	}

	active, paused := s.flags(userID)
	if !active || paused || !s.autoPopup(userID) {
		return
	}

	s.sched.Schedule(openKey(userID), s.delay, func() {
		// State may have moved during the delay, and Cancel can lose the
		// race against an already-fired timer; visibility and session state
		// are both re-read here before opening.
		if !s.isHidden(userID) {
			return
		}
		active, paused := s.flags(userID)
		if !active || paused {
			return
		}
		s.openPortal(userID)
	})
}

func (s *Supervisor) isHidden(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hidden[userID]
}

func (s *Supervisor) onSessionState(ev events.Event) {
	view, ok := ev.Payload.(session.View)
	if !ok {
		return
	}
	if view.Status != session.StatusActive {
		s.sched.Cancel(openKey(ev.UserID))
		s.close(ev.UserID)
	}
}

func (s *Supervisor) openPortal(userID string) {
	s.mu.Lock()
	already := s.open[userID]
	s.open[userID] = true
	s.mu.Unlock()

	if already {
		return
	}
	s.log.WithField("user_id", userID).Debug("opening timer portal")
	s.bus.Publish(events.Event{
		Type:    events.TypePortalDirective,
		UserID:  userID,
		At:      s.clk.Now(),
		Payload: events.PortalDirective{Action: events.PortalOpen},
	})
}

func (s *Supervisor) close(userID string) {
	s.mu.Lock()
	wasOpen := s.open[userID]
	delete(s.open, userID)
	s.mu.Unlock()

	if !wasOpen {
		return
	}
	s.log.WithField("user_id", userID).Debug("closing timer portal")
	s.bus.Publish(events.Event{
		Type:    events.TypePortalDirective,
		UserID:  userID,
		At:      s.clk.Now(),
		Payload: events.PortalDirective{Action: events.PortalClose},
	})
}

// IsOpen reports whether a portal directive to open is outstanding for the
// user.
func (s *Supervisor) IsOpen(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[userID]
}
