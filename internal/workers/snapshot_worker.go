package workers

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/session"
)

// SnapshotWorker periodically persists every live session's snapshot so a
// crashed or refreshed client can recover. Transient failures are retried on
// the next tick silently; only a run of consecutive failures raises a
// non-blocking warning. In-memory session state is never touched on failure.
type SnapshotWorker struct {
	Registry *session.Registry
	Bus      *events.Bus
	Logger   *logrus.Logger

	// Interval defaults to 15s, FailThreshold to 3.
	Interval      time.Duration
	FailThreshold int

	mu       sync.Mutex
	failures map[string]int
}

func (w *SnapshotWorker) Start(ctx context.Context) {
	if w.Interval <= 0 {
		w.Interval = 15 * time.Second
	}
	if w.FailThreshold <= 0 {
		w.FailThreshold = 3
	}
	if w.Logger == nil {
		w.Logger = logrus.New()
	}
	w.failures = make(map[string]int)

	go w.run(ctx)
}

func (w *SnapshotWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SnapshotWorker) sweep(ctx context.Context) {
	w.Registry.Each(func(userID string, e *session.Engine) {
		if err := e.SaveSnapshot(ctx); err != nil {
			w.recordFailure(ctx, userID, err)
			return
		}
		w.clearFailures(userID)
	})
}

func (w *SnapshotWorker) recordFailure(_ context.Context, userID string, err error) {
	w.mu.Lock()
	w.failures[userID]++
	n := w.failures[userID]
	w.mu.Unlock()

	if n < w.FailThreshold {
		w.Logger.WithError(err).WithField("user_id", userID).Debug("snapshot autosave failed, will retry")
		return
	}

	w.Logger.WithError(err).WithFields(logrus.Fields{
		"user_id":              userID,
		"consecutive_failures": n,
	}).Warn("snapshot autosave failing repeatedly")

	w.Bus.Publish(events.Event{
		Type:    events.TypeAutosaveWarning,
		UserID:  userID,
		At:      time.Now().UTC(),
		Payload: events.AutosaveWarning{ConsecutiveFailures: n},
	})
}

func (w *SnapshotWorker) clearFailures(userID string) {
	w.mu.Lock()
	delete(w.failures, userID)
	w.mu.Unlock()
}
