package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/session"
)

type flakySnapshots struct {
	mu    sync.Mutex
	fail  bool
	saves int
}

func (s *flakySnapshots) Save(context.Context, *session.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("redis unreachable")
	}
	s.saves++
	return nil
}

func (s *flakySnapshots) Load(context.Context, string) (*session.Snapshot, bool, error) {
	return nil, false, nil
}

func (s *flakySnapshots) Clear(context.Context, string) error { return nil }

func (s *flakySnapshots) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *flakySnapshots) saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type nopLedger struct{}

func (nopLedger) Append(context.Context, *models.StageTimeLog) error { return nil }
func (nopLedger) SumForDay(context.Context, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}

type nopArchive struct{}

func (nopArchive) Append(context.Context, *models.SessionArchive) error { return nil }

type nopEvaluator struct{}

func (nopEvaluator) OnSessionEnded(context.Context, string, int64) error { return nil }

func newWorkerFixture(t *testing.T) (*SnapshotWorker, *session.Registry, *flakySnapshots, *events.Bus) {
	t.Helper()

	snaps := &flakySnapshots{}
	bus := events.NewBus()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	reg := session.NewRegistry(session.EngineDeps{
		Clock:     clock.NewManual(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)),
		Ledger:    nopLedger{},
		Snapshots: snaps,
		Archive:   nopArchive{},
		Streaks:   nopEvaluator{},
		Bus:       bus,
		Log:       log,
	})

	w := &SnapshotWorker{
		Registry:      reg,
		Bus:           bus,
		Logger:        log,
		FailThreshold: 3,
		failures:      make(map[string]int),
	}
	return w, reg, snaps, bus
}

func startSession(t *testing.T, reg *session.Registry, userID string) {
	t.Helper()
	if _, err := reg.ForUser(userID).Start(context.Background(), session.StartParams{Stage: models.StageIdea}); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func TestSweepSavesLiveSessions(t *testing.T) {
	w, reg, snaps, _ := newWorkerFixture(t)
	startSession(t, reg, "u-1")
	startSession(t, reg, "u-2")
	reg.ForUser("u-3") // idle, save is a no-op

	before := snaps.saved()
	w.sweep(context.Background())
	if got := snaps.saved() - before; got != 2 {
		t.Errorf("saved %d snapshots in sweep, want 2", got)
	}
}

// A warning is raised only after the failure threshold; transient failures
// retry silently, and a success resets the count.
func TestConsecutiveFailuresRaiseWarning(t *testing.T) {
	w, reg, snaps, bus := newWorkerFixture(t)
	startSession(t, reg, "u-1")

	var warnings []events.AutosaveWarning
	bus.Subscribe(events.TypeAutosaveWarning, func(ev events.Event) {
		warnings = append(warnings, ev.Payload.(events.AutosaveWarning))
	})

	snaps.setFail(true)
	w.sweep(context.Background())
	w.sweep(context.Background())
	if len(warnings) != 0 {
		t.Fatalf("warned after %d failures, below the threshold", 2)
	}

	w.sweep(context.Background())
	if len(warnings) != 1 || warnings[0].ConsecutiveFailures != 3 {
		t.Fatalf("warnings = %+v", warnings)
	}

	// Recovery clears the counter: the next failure run starts from zero.
	snaps.setFail(false)
	w.sweep(context.Background())
	snaps.setFail(true)
	w.sweep(context.Background())
	w.sweep(context.Background())
	if len(warnings) != 1 {
		t.Errorf("counter did not reset after a successful save")
	}
}

// Snapshot failures never disturb the in-memory session.
func TestFailedSaveLeavesSessionIntact(t *testing.T) {
	w, reg, snaps, _ := newWorkerFixture(t)
	startSession(t, reg, "u-1")

	snaps.setFail(true)
	w.sweep(context.Background())

	view, ok := reg.ForUser("u-1").View()
	if !ok || view.Status != session.StatusActive {
		t.Errorf("session state disturbed by failed autosave: ok=%v view=%+v", ok, view)
	}
}
