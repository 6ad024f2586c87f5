package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/utils"
)

// Ledger is the stage-time persistence boundary. The engine is its only
// caller and recomputes every duration from the SavedSeconds watermark, so a
// retried flush after a transient failure never double counts.
type Ledger interface {
	Append(ctx context.Context, entry *models.StageTimeLog) error
	SumForDay(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

// Archiver records ended-session summaries, append-only.
type Archiver interface {
	Append(ctx context.Context, arch *models.SessionArchive) error
}

// StreakEvaluator is invoked after End's final flush has committed, so the
// day-qualification read always sees the finished session's segments.
type StreakEvaluator interface {
	OnSessionEnded(ctx context.Context, userID string, xpGained int64) error
}

type Config struct {
	// PomodoroSeconds is the fixed target for non-streak sessions.
	PomodoroSeconds int64
	// SnapshotTTL bounds how old a recovered snapshot's StartedAt may be.
	SnapshotTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.PomodoroSeconds <= 0 {
		c.PomodoroSeconds = 25 * 60
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 6 * time.Hour
	}
	return c
}

// Engine owns one user's live session. It is the sole mutator of session
// fields; the portal, guard, and every attached window observe it and issue
// commands, never keeping a second copy of elapsed time.
type Engine struct {
	userID string

	clk       clock.Clock
	ledger    Ledger
	snapshots SnapshotStore
	archive   Archiver
	streaks   StreakEvaluator
	bus       *events.Bus
	log       *logrus.Logger
	cfg       Config

	mu    sync.Mutex // held across persistence calls; one command at a time
	state State
}

type EngineDeps struct {
	Clock     clock.Clock
	Ledger    Ledger
	Snapshots SnapshotStore
	Archive   Archiver
	Streaks   StreakEvaluator
	Bus       *events.Bus
	Log       *logrus.Logger
	Config    Config
}

func newEngine(userID string, d EngineDeps) *Engine {
	e := &Engine{
		userID:    userID,
		clk:       d.Clock,
		ledger:    d.Ledger,
		snapshots: d.Snapshots,
		archive:   d.Archive,
		streaks:   d.Streaks,
		bus:       d.Bus,
		log:       d.Log,
		cfg:       d.Config.withDefaults(),
		state:     State{UserID: userID},
	}
	return e
}

type StartParams struct {
	Stage            models.Stage
	StreakMode       bool
	DailyGoalMinutes int
	// DayStart/DayEnd bound "today" in the user's timezone; the baseline is
	// summed once here and never recomputed mid-session.
	DayStart time.Time
	DayEnd   time.Time
}

func (e *Engine) Start(ctx context.Context, p StartParams) (View, error) {
	const op = "Engine.Start"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != StatusIdle {
		return View{}, utils.E(utils.CodeConflict, op, "a session is already running", nil)
	}

	baseline, err := e.ledger.SumForDay(ctx, e.userID, p.DayStart, p.DayEnd)
	if err != nil {
		return View{}, utils.E(utils.CodeUnavailable, op, "failed to read today's logged time", err)
	}

	now := e.clk.Now()
	next, effects, err := reduce(e.state, Start{
		SessionID:        uuid.NewString(),
		UserID:           e.userID,
		Stage:            p.Stage,
		StreakMode:       p.StreakMode,
		DailyGoalMinutes: p.DailyGoalMinutes,
		BaselineSeconds:  baseline,
		PomodoroSeconds:  e.cfg.PomodoroSeconds,
		At:               now,
	})
	if err != nil {
		return View{}, err
	}

	e.commit(ctx, next, effects, nil)
	return e.state.View(now), nil
}

func (e *Engine) Pause(ctx context.Context) (View, error) {
	return e.transition(ctx, func(now time.Time) Command { return Pause{At: now} })
}

func (e *Engine) Resume(ctx context.Context) (View, error) {
	return e.transition(ctx, func(now time.Time) Command { return Resume{At: now} })
}

func (e *Engine) transition(ctx context.Context, mk func(now time.Time) Command) (View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clk.Now()
	next, effects, err := reduce(e.state, mk(now))
	if err != nil {
		return View{}, err
	}
	e.commit(ctx, next, effects, nil)
	return e.state.View(now), nil
}

// ChangeStage flushes the previous stage's segment before switching. Total
// elapsed time is continuous across the switch: the session is one creative
// run that moves between stages.
func (e *Engine) ChangeStage(ctx context.Context, stage models.Stage) (View, error) {
	const op = "Engine.ChangeStage"

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clk.Now()
	next, effects, err := reduce(e.state, ChangeStage{Stage: stage, At: now})
	if err != nil {
		return View{}, err
	}

	// Flush-before-switch: a failed write leaves the machine on the old
	// stage with an unchanged watermark, so the retry recomputes the delta.
	if err := e.runFlushes(ctx, next.SessionID, effects); err != nil {
		return View{}, utils.E(utils.CodeUnavailable, op, "failed to persist stage segment", err)
	}

	e.commit(ctx, next, effects, nil)
	return e.state.View(now), nil
}

// End flushes the final segment, archives the summary, credits XP, and hands
// the day to the streak evaluator. A failed final flush keeps the session
// active so the caller can retry instead of silently losing the segment.
func (e *Engine) End(ctx context.Context) (Summary, error) {
	const op = "Engine.End"

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.state
	now := e.clk.Now()
	next, effects, err := reduce(e.state, End{At: now})
	if err != nil {
		return Summary{}, err
	}

	if err := e.runFlushes(ctx, prev.SessionID, effects); err != nil {
		return Summary{}, utils.E(utils.CodeUnavailable, op, "failed to persist final segment, session kept active", err)
	}

	var summary Summary
	for _, ef := range effects {
		if ended, ok := ef.(Ended); ok {
			summary = Summary{
				Duration: ended.Duration,
				XPGained: xpForSession(ended.Duration, ended.Stage),
				Stage:    ended.Stage,
			}
		}
	}

	e.commit(ctx, next, effects, &prev)

	if err := e.archive.Append(ctx, &models.SessionArchive{
		SessionID:       prev.SessionID,
		UserID:          e.userID,
		FinalStage:      summary.Stage,
		StreakMode:      prev.StreakMode,
		StartedAt:       prev.StartedAt,
		EndedAt:         now,
		DurationSeconds: summary.Duration,
		XPGained:        summary.XPGained,
	}); err != nil {
		// The ledger is the source of truth; a lost archive row only costs
		// the history listing.
		e.log.WithError(err).WithField("session_id", prev.SessionID).Warn("session archive write failed")
	}

	e.bus.Publish(events.Event{
		Type:   events.TypeSessionEnded,
		UserID: e.userID,
		At:     now,
		Payload: events.SessionEnded{
			Duration: summary.Duration,
			XPGained: summary.XPGained,
			Stage:    summary.Stage,
		},
	})

	// Happens-after the final flush: the evaluator's read of today's total
	// includes this session.
	if err := e.streaks.OnSessionEnded(ctx, e.userID, summary.XPGained); err != nil {
		e.log.WithError(err).WithField("user_id", e.userID).Warn("streak evaluation failed, will repair on next validation")
	}

	return summary, nil
}

// Rebase resets the elapsed reference instant, issued on tab visibility
// changes.
func (e *Engine) Rebase() {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, _, err := reduce(e.state, Rebase{At: e.clk.Now()})
	if err == nil {
		e.state = next
	}
}

// View returns the live read model; ok is false when no session exists.
func (e *Engine) View() (View, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusIdle {
		return View{}, false
	}
	return e.state.View(e.clk.Now()), true
}

// Flags reports (active, paused) for the guard and portal observers.
func (e *Engine) Flags() (active, paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status != StatusIdle, e.state.Status == StatusPaused
}

func (e *Engine) runFlushes(ctx context.Context, sessionID string, effects []Effect) error {
	for _, ef := range effects {
		flush, ok := ef.(FlushSegment)
		if !ok {
			continue
		}
		seconds := flush.Seconds
		if seconds < 0 {
			seconds = 0
		}
		if err := e.ledger.Append(ctx, &models.StageTimeLog{
			UserID:          e.userID,
			SessionID:       sessionID,
			Stage:           flush.Stage,
			StartedAt:       flush.StartedAt,
			DurationSeconds: seconds,
			CreatedAt:       e.clk.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// commit installs the new state and applies snapshot effects. prev is
// non-nil on End, where the snapshot belongs to the session that just
// finished.
func (e *Engine) commit(ctx context.Context, next State, effects []Effect, prev *State) {
	e.state = next

	for _, ef := range effects {
		switch ef.(type) {
		case SaveSnapshot:
			if err := e.saveSnapshotLocked(ctx); err != nil {
				e.log.WithError(err).WithField("user_id", e.userID).Warn("session snapshot save failed")
			}
		case ClearSnapshot:
			if err := e.snapshots.Clear(ctx, e.userID); err != nil {
				e.log.WithError(err).WithField("user_id", e.userID).Warn("session snapshot clear failed")
			}
		}
	}

	e.publishState()
}

func (e *Engine) publishState() {
	now := e.clk.Now()
	e.bus.Publish(events.Event{
		Type:    events.TypeSessionState,
		UserID:  e.userID,
		At:      now,
		Payload: e.state.View(now),
	})
}

// SaveSnapshot persists the live state; used by the autosave worker. It is a
// no-op when idle.
func (e *Engine) SaveSnapshot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status == StatusIdle {
		return nil
	}
	return e.saveSnapshotLocked(ctx)
}

func (e *Engine) saveSnapshotLocked(ctx context.Context) error {
	now := e.clk.Now()
	return e.snapshots.Save(ctx, &Snapshot{
		SessionID:            e.state.SessionID,
		UserID:               e.userID,
		Stage:                e.state.Stage,
		Status:               e.state.Status,
		StartedAt:            e.state.StartedAt,
		ElapsedSeconds:       e.state.Elapsed(now),
		SavedSeconds:         e.state.SavedSeconds,
		SegmentStart:         e.state.SegmentStart,
		TargetSeconds:        e.state.TargetSeconds,
		StreakMode:           e.state.StreakMode,
		DailyGoalMinutes:     e.state.DailyGoalMinutes,
		DailyBaselineSeconds: e.state.DailyBaselineSeconds,
		SavedAt:              now,
	})
}

// Restore rehydrates an idle engine from a persisted snapshot, paused so the
// user resumes deliberately. A snapshot past the staleness TTL is discarded
// and the engine stays idle; that is a defined recovery path, not an error.
func (e *Engine) Restore(ctx context.Context) error {
	const op = "Engine.Restore"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status != StatusIdle {
		return nil
	}

	snap, hit, err := e.snapshots.Load(ctx, e.userID)
	if err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to load session snapshot", err)
	}
	if !hit {
		return nil
	}

	now := e.clk.Now()
	if now.Sub(snap.StartedAt) > e.cfg.SnapshotTTL {
		if err := e.snapshots.Clear(ctx, e.userID); err != nil {
			e.log.WithError(err).WithField("user_id", e.userID).Warn("stale snapshot clear failed")
		}
		e.log.WithFields(logrus.Fields{
			"user_id":    e.userID,
			"session_id": snap.SessionID,
			"started_at": snap.StartedAt,
		}).Info("discarded stale session snapshot")
		return nil
	}

	e.state = State{
		SessionID:            snap.SessionID,
		UserID:               e.userID,
		Stage:                snap.Stage,
		Status:               StatusPaused,
		StartedAt:            snap.StartedAt,
		Reference:            now,
		PriorElapsed:         snap.ElapsedSeconds,
		SavedSeconds:         snap.SavedSeconds,
		SegmentStart:         snap.SegmentStart,
		TargetSeconds:        snap.TargetSeconds,
		StreakMode:           snap.StreakMode,
		DailyGoalMinutes:     snap.DailyGoalMinutes,
		DailyBaselineSeconds: snap.DailyBaselineSeconds,
	}
	e.publishState()
	return nil
}
