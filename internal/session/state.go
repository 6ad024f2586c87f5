package session

import (
	"time"

	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/utils"
)

type Status string

const (
	StatusIdle   Status = ""
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// State is the session state machine's value. The zero State is Idle.
//
// Elapsed time is held as PriorElapsed plus the live span since Reference;
// Reference resets on every resume and rebase so paused intervals are exact
// even when ticks are skipped.
type State struct {
	SessionID string
	UserID    string
	Stage     models.Stage
	Status    Status

	StartedAt time.Time // session start, fixed for the session's lifetime
	Reference time.Time // start of the current uninterrupted active run

	PriorElapsed int64 // active seconds accumulated before Reference
	SavedSeconds int64 // watermark: seconds already flushed to the ledger

	SegmentStart time.Time // start of the current stage segment

	TargetSeconds        int64
	StreakMode           bool
	DailyGoalMinutes     int
	DailyBaselineSeconds int64 // today's pre-session total, fixed at start
}

// Elapsed recomputes total active seconds from the clock reading instead of
// accumulating tick counts, so a throttled caller catches up to real time.
func (s State) Elapsed(now time.Time) int64 {
	if s.Status != StatusActive {
		return s.PriorElapsed
	}
	live := int64(now.Sub(s.Reference).Seconds())
	if live < 0 {
		live = 0
	}
	return s.PriorElapsed + live
}

// Command is an input to reduce.
type Command interface{ isCommand() }

type Start struct {
	SessionID        string
	UserID           string
	Stage            models.Stage
	StreakMode       bool
	DailyGoalMinutes int
	BaselineSeconds  int64
	PomodoroSeconds  int64
	At               time.Time
}

type Pause struct{ At time.Time }

type Resume struct{ At time.Time }

type ChangeStage struct {
	Stage models.Stage
	At    time.Time
}

type End struct{ At time.Time }

// Rebase folds the live span into PriorElapsed and resets Reference. Issued
// on visibility changes so the next recomputation starts from a fresh
// reference instant.
type Rebase struct{ At time.Time }

func (Start) isCommand()       {}
func (Pause) isCommand()       {}
func (Resume) isCommand()      {}
func (ChangeStage) isCommand() {}
func (End) isCommand()         {}
func (Rebase) isCommand()      {}

// Effect is a side effect requested by a transition. The engine runs flush
// effects before committing the new state, so a failed persistence call
// leaves the machine where it was.
type Effect interface{ isEffect() }

// FlushSegment persists one stage segment to the ledger.
type FlushSegment struct {
	Stage     models.Stage
	StartedAt time.Time
	Seconds   int64
}

// Ended carries the end-of-session summary.
type Ended struct {
	Duration int64
	Stage    models.Stage
}

type SaveSnapshot struct{}

type ClearSnapshot struct{}

func (FlushSegment) isEffect()  {}
func (Ended) isEffect()         {}
func (SaveSnapshot) isEffect()  {}
func (ClearSnapshot) isEffect() {}

// reduce is the pure transition function. It never touches a clock or a
// store; commands carry their instant and effects name the persistence work.
func reduce(s State, c Command) (State, []Effect, error) {
	switch cmd := c.(type) {
	case Start:
		if s.Status != StatusIdle {
			return s, nil, utils.E(utils.CodeConflict, "session.reduce", "a session is already running", nil)
		}
		if !cmd.Stage.Valid() {
			return s, nil, utils.E(utils.CodeInvalidArgument, "session.reduce", "unknown stage", nil)
		}
		target := cmd.PomodoroSeconds
		if cmd.StreakMode {
			target = int64(cmd.DailyGoalMinutes)*60 - cmd.BaselineSeconds
			if target < 0 {
				target = 0
			}
		}
		next := State{
			SessionID:            cmd.SessionID,
			UserID:               cmd.UserID,
			Stage:                cmd.Stage,
			Status:               StatusActive,
			StartedAt:            cmd.At,
			Reference:            cmd.At,
			SegmentStart:         cmd.At,
			TargetSeconds:        target,
			StreakMode:           cmd.StreakMode,
			DailyGoalMinutes:     cmd.DailyGoalMinutes,
			DailyBaselineSeconds: cmd.BaselineSeconds,
		}
		return next, []Effect{SaveSnapshot{}}, nil

	case Pause:
		if s.Status != StatusActive {
			return s, nil, utils.E(utils.CodeConflict, "session.reduce", "can only pause an active session", nil)
		}
		s.PriorElapsed = s.Elapsed(cmd.At)
		s.Status = StatusPaused
		return s, []Effect{SaveSnapshot{}}, nil

	case Resume:
		if s.Status != StatusPaused {
			return s, nil, utils.E(utils.CodeConflict, "session.reduce", "can only resume a paused session", nil)
		}
		// Reference moves to the resume instant; the paused interval never
		// enters the elapsed computation.
		s.Reference = cmd.At
		s.Status = StatusActive
		return s, []Effect{SaveSnapshot{}}, nil

	case ChangeStage:
		if s.Status == StatusIdle {
			return s, nil, utils.E(utils.CodeConflict, "session.reduce", "no session to change stage on", nil)
		}
		if !cmd.Stage.Valid() {
			return s, nil, utils.E(utils.CodeInvalidArgument, "session.reduce", "unknown stage", nil)
		}
		elapsed := s.Elapsed(cmd.At)
		flush := FlushSegment{
			Stage:     s.Stage,
			StartedAt: s.SegmentStart,
			Seconds:   elapsed - s.SavedSeconds,
		}
		if s.Status == StatusActive {
			s.PriorElapsed = elapsed
			s.Reference = cmd.At
		}
		s.SavedSeconds = elapsed
		s.Stage = cmd.Stage
		s.SegmentStart = cmd.At
		return s, []Effect{flush, SaveSnapshot{}}, nil

	case End:
		if s.Status == StatusIdle {
			return s, nil, utils.E(utils.CodeConflict, "session.reduce", "no session to end", nil)
		}
		elapsed := s.Elapsed(cmd.At)
		flush := FlushSegment{
			Stage:     s.Stage,
			StartedAt: s.SegmentStart,
			Seconds:   elapsed - s.SavedSeconds,
		}
		ended := Ended{Duration: elapsed, Stage: s.Stage}
		return State{UserID: s.UserID}, []Effect{flush, ended, ClearSnapshot{}}, nil

	case Rebase:
		if s.Status != StatusActive {
			return s, nil, nil
		}
		s.PriorElapsed = s.Elapsed(cmd.At)
		s.Reference = cmd.At
		return s, nil, nil
	}

	return s, nil, utils.E(utils.CodeInternal, "session.reduce", "unknown command", nil)
}
