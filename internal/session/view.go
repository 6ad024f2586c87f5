package session

import (
	"time"

	"github.com/planloop/planloop/internal/models"
)

// View is the read model served to clients. Every attached window renders
// from the same View; none of them keeps its own elapsed counter.
type View struct {
	SessionID string       `json:"session_id"`
	Stage     models.Stage `json:"stage"`
	Status    Status       `json:"status"`

	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`

	TargetSeconds    int64 `json:"target_seconds"`
	RemainingSeconds int64 `json:"remaining_seconds"`

	StreakMode           bool  `json:"streak_mode"`
	BonusMode            bool  `json:"bonus_mode"`
	DailyGoalMinutes     int   `json:"daily_goal_minutes"`
	DailyBaselineSeconds int64 `json:"daily_baseline_seconds"`
	TodayTotalSeconds    int64 `json:"today_total_seconds"`
}

func (s State) View(now time.Time) View {
	elapsed := s.Elapsed(now)
	remaining := s.TargetSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	today := s.DailyBaselineSeconds + elapsed
	return View{
		SessionID:            s.SessionID,
		Stage:                s.Stage,
		Status:               s.Status,
		StartedAt:            s.StartedAt,
		ElapsedSeconds:       elapsed,
		TargetSeconds:        s.TargetSeconds,
		RemainingSeconds:     remaining,
		StreakMode:           s.StreakMode,
		BonusMode:            s.Status != StatusIdle && s.DailyGoalMinutes > 0 && today >= int64(s.DailyGoalMinutes)*60,
		DailyGoalMinutes:     s.DailyGoalMinutes,
		DailyBaselineSeconds: s.DailyBaselineSeconds,
		TodayTotalSeconds:    today,
	}
}

// Summary is returned by End.
type Summary struct {
	Duration int64        `json:"duration"`
	XPGained int64        `json:"xp_gained"`
	Stage    models.Stage `json:"stage"`
}
