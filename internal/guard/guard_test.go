package guard

import (
	"testing"
	"time"
)

var at = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func TestAttemptPassesThroughWhenInactive(t *testing.T) {
	g := New(func() bool { return false }, nil)

	if !g.Attempt("/settings", at) {
		t.Fatal("inactive guard should allow navigation")
	}
	if g.State() != StateIdle {
		t.Errorf("state = %s, want idle", g.State())
	}
	if _, ok := g.Pending(); ok {
		t.Error("pass-through left a pending intent")
	}
}

func TestAttemptBlocksWhileActive(t *testing.T) {
	var notified []Intent
	g := New(func() bool { return true }, func(i Intent) { notified = append(notified, i) })

	if g.Attempt("/profile", at) {
		t.Fatal("active guard should block navigation")
	}
	if g.State() != StateBlocked {
		t.Errorf("state = %s, want blocked", g.State())
	}
	pending, ok := g.Pending()
	if !ok || pending.Route != "/profile" {
		t.Errorf("pending = %+v, ok=%v", pending, ok)
	}
	if len(notified) != 1 || notified[0].Route != "/profile" {
		t.Errorf("blocked callback calls = %v", notified)
	}
}

// Repeated attempts while blocked collapse onto one pending intent; the most
// recent route wins.
func TestBlockedAttemptsCollapseLastWins(t *testing.T) {
	g := New(func() bool { return true }, nil)

	g.Attempt("/a", at)
	g.Attempt("/b", at.Add(time.Second))
	g.Attempt("/c", at.Add(2*time.Second))

	pending, ok := g.Pending()
	if !ok || pending.Route != "/c" {
		t.Fatalf("pending = %+v, want /c", pending)
	}

	intent, ok := g.Proceed()
	if !ok || intent.Route != "/c" {
		t.Fatalf("proceed = %+v, want /c", intent)
	}
	// One pending intent total: nothing queued behind it.
	if _, ok := g.Proceed(); ok {
		t.Error("second proceed found another intent")
	}
}

func TestProceedClearsGuard(t *testing.T) {
	g := New(func() bool { return true }, nil)
	g.Attempt("/archive", at)

	intent, ok := g.Proceed()
	if !ok || intent.Route != "/archive" {
		t.Fatalf("proceed = %+v, ok=%v", intent, ok)
	}
	if g.State() != StateIdle {
		t.Errorf("state = %s after proceed", g.State())
	}
}

func TestProceedWithoutBlock(t *testing.T) {
	g := New(func() bool { return true }, nil)
	if _, ok := g.Proceed(); ok {
		t.Error("proceed succeeded with nothing pending")
	}
}

func TestResetCancelsNavigation(t *testing.T) {
	g := New(func() bool { return true }, nil)
	g.Attempt("/home", at)

	if !g.Reset() {
		t.Fatal("reset should report a cancelled intent")
	}
	if _, ok := g.Pending(); ok {
		t.Error("pending intent survived reset")
	}
	if g.Reset() {
		t.Error("second reset reported a cancelled intent")
	}
}

// The active flag is re-read on every attempt: once the session ends, a guard
// stuck in blocked clears itself on the next attempt.
func TestAttemptRechecksActiveFlag(t *testing.T) {
	active := true
	g := New(func() bool { return active }, nil)

	g.Attempt("/a", at)
	active = false

	if !g.Attempt("/a", at.Add(time.Second)) {
		t.Fatal("attempt should pass once the session ended")
	}
	if g.State() != StateIdle {
		t.Errorf("state = %s, want idle", g.State())
	}
}

func TestRegistryKeysPerUser(t *testing.T) {
	activeUsers := map[string]bool{"u-1": true}
	r := NewRegistry(func(id string) bool { return activeUsers[id] })

	g1 := r.ForUser("u-1")
	g2 := r.ForUser("u-2")
	if g1 == g2 {
		t.Fatal("distinct users share a guard")
	}
	if r.ForUser("u-1") != g1 {
		t.Error("same user got a new guard")
	}

	if g1.Attempt("/x", at) {
		t.Error("u-1 has an active session, attempt should block")
	}
	if !g2.Attempt("/x", at) {
		t.Error("u-2 is idle, attempt should pass")
	}
}
