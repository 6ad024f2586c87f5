package session

import (
	"testing"
	"time"

	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/utils"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func started(t *testing.T, cmd Start) State {
	t.Helper()
	st, _, err := reduce(State{UserID: cmd.UserID}, cmd)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return st
}

func defaultStart(at time.Time) Start {
	return Start{
		SessionID:        "s-1",
		UserID:           "u-1",
		Stage:            models.StageScript,
		PomodoroSeconds:  1500,
		DailyGoalMinutes: 30,
		At:               at,
	}
}

func TestReduceStart(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Start
		wantTarget int64
		wantErr    utils.Code
	}{
		{
			name:       "pomodoro target by default",
			cmd:        defaultStart(t0),
			wantTarget: 1500,
		},
		{
			name: "streak mode target is remaining-to-goal",
			cmd: Start{
				SessionID:        "s-2",
				UserID:           "u-1",
				Stage:            models.StageIdea,
				StreakMode:       true,
				DailyGoalMinutes: 30,
				BaselineSeconds:  1200,
				PomodoroSeconds:  1500,
				At:               t0,
			},
			wantTarget: 600, // 1800 goal - 1200 already logged
		},
		{
			name: "streak mode target clamps at zero past the goal",
			cmd: Start{
				SessionID:        "s-3",
				UserID:           "u-1",
				Stage:            models.StageIdea,
				StreakMode:       true,
				DailyGoalMinutes: 30,
				BaselineSeconds:  2100,
				PomodoroSeconds:  1500,
				At:               t0,
			},
			wantTarget: 0,
		},
		{
			name: "unknown stage rejected",
			cmd: Start{
				SessionID:       "s-4",
				UserID:          "u-1",
				Stage:           models.Stage("mixdown"),
				PomodoroSeconds: 1500,
				At:              t0,
			},
			wantErr: utils.CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _, err := reduce(State{UserID: tt.cmd.UserID}, tt.cmd)
			if tt.wantErr != "" {
				if !utils.IsCode(err, tt.wantErr) {
					t.Fatalf("want code %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("reduce: %v", err)
			}
			if st.Status != StatusActive {
				t.Errorf("status = %s, want active", st.Status)
			}
			if st.TargetSeconds != tt.wantTarget {
				t.Errorf("target = %d, want %d", st.TargetSeconds, tt.wantTarget)
			}
			if got := st.Elapsed(tt.cmd.At); got != 0 {
				t.Errorf("elapsed at start = %d, want 0", got)
			}
		})
	}
}

func TestReduceStartWhileActive(t *testing.T) {
	st := started(t, defaultStart(t0))

	_, _, err := reduce(st, defaultStart(t0.Add(time.Minute)))
	if !utils.IsCode(err, utils.CodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestElapsedRecomputesFromClock(t *testing.T) {
	st := started(t, defaultStart(t0))

	// No ticks happened in between; a single late read still catches up.
	if got := st.Elapsed(t0.Add(300 * time.Second)); got != 300 {
		t.Fatalf("elapsed = %d, want 300", got)
	}
	// Monotone across later reads.
	if got := st.Elapsed(t0.Add(301 * time.Second)); got != 301 {
		t.Fatalf("elapsed = %d, want 301", got)
	}
	// A clock reading before the reference never goes negative.
	if got := st.Elapsed(t0.Add(-time.Second)); got != 0 {
		t.Fatalf("elapsed = %d, want 0", got)
	}
}

// Scenario: work 300s, pause 600s, resume. Elapsed stays ~300, the paused
// interval never leaks in.
func TestPauseResumeExcludesPausedInterval(t *testing.T) {
	st := started(t, defaultStart(t0))

	st, _, err := reduce(st, Pause{At: t0.Add(300 * time.Second)})
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if st.Status != StatusPaused {
		t.Fatalf("status = %s, want paused", st.Status)
	}

	// Frozen while paused.
	if got := st.Elapsed(t0.Add(900 * time.Second)); got != 300 {
		t.Fatalf("elapsed while paused = %d, want 300", got)
	}

	st, _, err = reduce(st, Resume{At: t0.Add(900 * time.Second)})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := st.Elapsed(t0.Add(900 * time.Second)); got != 300 {
		t.Fatalf("elapsed right after resume = %d, want 300", got)
	}
	if got := st.Elapsed(t0.Add(960 * time.Second)); got != 360 {
		t.Fatalf("elapsed 60s after resume = %d, want 360", got)
	}
}

func TestInvalidTransitions(t *testing.T) {
	active := started(t, defaultStart(t0))
	paused, _, _ := reduce(active, Pause{At: t0.Add(time.Second)})

	tests := []struct {
		name  string
		state State
		cmd   Command
	}{
		{"pause while idle", State{}, Pause{At: t0}},
		{"pause while paused", paused, Pause{At: t0}},
		{"resume while active", active, Resume{At: t0}},
		{"resume while idle", State{}, Resume{At: t0}},
		{"change stage while idle", State{}, ChangeStage{Stage: models.StageEdit, At: t0}},
		{"end while idle", State{}, End{At: t0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := reduce(tt.state, tt.cmd); !utils.IsCode(err, utils.CodeConflict) {
				t.Fatalf("want conflict, got %v", err)
			}
		})
	}
}

func TestChangeStageFlushesDeltaAndKeepsElapsed(t *testing.T) {
	st := started(t, defaultStart(t0))

	st, effects, err := reduce(st, ChangeStage{Stage: models.StageReview, At: t0.Add(120 * time.Second)})
	if err != nil {
		t.Fatalf("change stage: %v", err)
	}

	flush := findFlush(t, effects)
	if flush.Stage != models.StageScript {
		t.Errorf("flushed stage = %s, want script (the previous stage)", flush.Stage)
	}
	if flush.Seconds != 120 {
		t.Errorf("flushed seconds = %d, want 120", flush.Seconds)
	}
	if flush.StartedAt != t0 {
		t.Errorf("flush started at %v, want %v", flush.StartedAt, t0)
	}

	if st.Stage != models.StageReview {
		t.Errorf("stage = %s, want review", st.Stage)
	}
	if st.SavedSeconds != 120 {
		t.Errorf("watermark = %d, want 120", st.SavedSeconds)
	}
	// Elapsed is continuous across the switch.
	if got := st.Elapsed(t0.Add(180 * time.Second)); got != 180 {
		t.Errorf("elapsed = %d, want 180", got)
	}

	// Second switch flushes only the delta since the watermark.
	_, effects, err = reduce(st, ChangeStage{Stage: models.StageRecord, At: t0.Add(300 * time.Second)})
	if err != nil {
		t.Fatalf("second change: %v", err)
	}
	flush = findFlush(t, effects)
	if flush.Seconds != 180 {
		t.Errorf("second flush = %d, want 180", flush.Seconds)
	}
}

func TestChangeStageWhilePaused(t *testing.T) {
	st := started(t, defaultStart(t0))
	st, _, _ = reduce(st, Pause{At: t0.Add(60 * time.Second)})

	st, effects, err := reduce(st, ChangeStage{Stage: models.StageEdit, At: t0.Add(600 * time.Second)})
	if err != nil {
		t.Fatalf("change stage paused: %v", err)
	}
	if flush := findFlush(t, effects); flush.Seconds != 60 {
		t.Errorf("flush = %d, want 60 (elapsed frozen at pause)", flush.Seconds)
	}
	if st.Status != StatusPaused {
		t.Errorf("status = %s, want still paused", st.Status)
	}
}

func TestEndFlushesRemainderAndReturnsToIdle(t *testing.T) {
	st := started(t, defaultStart(t0))
	st, _, _ = reduce(st, ChangeStage{Stage: models.StageReview, At: t0.Add(100 * time.Second)})

	next, effects, err := reduce(st, End{At: t0.Add(250 * time.Second)})
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	flush := findFlush(t, effects)
	if flush.Seconds != 150 {
		t.Errorf("final flush = %d, want 150", flush.Seconds)
	}
	if flush.Stage != models.StageReview {
		t.Errorf("final flush stage = %s, want review", flush.Stage)
	}

	var ended *Ended
	for _, ef := range effects {
		if e, ok := ef.(Ended); ok {
			ended = &e
		}
	}
	if ended == nil {
		t.Fatal("no Ended effect")
	}
	if ended.Duration != 250 {
		t.Errorf("duration = %d, want 250", ended.Duration)
	}

	if next.Status != StatusIdle {
		t.Errorf("status = %s, want idle", next.Status)
	}
	if next.UserID != "u-1" {
		t.Errorf("user id lost on end")
	}
}

func TestRebaseKeepsElapsedExact(t *testing.T) {
	st := started(t, defaultStart(t0))

	st, _, err := reduce(st, Rebase{At: t0.Add(40 * time.Second)})
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if st.PriorElapsed != 40 {
		t.Errorf("prior elapsed = %d, want 40", st.PriorElapsed)
	}
	if got := st.Elapsed(t0.Add(100 * time.Second)); got != 100 {
		t.Errorf("elapsed = %d, want 100", got)
	}

	// Rebase on a non-active session is a no-op.
	paused, _, _ := reduce(st, Pause{At: t0.Add(100 * time.Second)})
	same, _, err := reduce(paused, Rebase{At: t0.Add(200 * time.Second)})
	if err != nil {
		t.Fatalf("rebase paused: %v", err)
	}
	if same.PriorElapsed != paused.PriorElapsed {
		t.Errorf("rebase mutated a paused session")
	}
}

// Scenario: goal 30 min, 20 min logged before the session, 15 min elapsed.
// Today's total passes the goal, so bonus mode is on and nothing remains.
func TestViewBonusMode(t *testing.T) {
	cmd := Start{
		SessionID:        "s-b",
		UserID:           "u-1",
		Stage:            models.StageScript,
		StreakMode:       true,
		DailyGoalMinutes: 30,
		BaselineSeconds:  1200,
		PomodoroSeconds:  1500,
		At:               t0,
	}
	st := started(t, cmd)

	view := st.View(t0.Add(900 * time.Second))
	if view.TodayTotalSeconds != 2100 {
		t.Errorf("today total = %d, want 2100", view.TodayTotalSeconds)
	}
	if !view.BonusMode {
		t.Error("bonus mode should be active past the daily goal")
	}
	if view.RemainingSeconds != 0 {
		t.Errorf("remaining = %d, want 0", view.RemainingSeconds)
	}

	// Before the goal is reached there is no bonus.
	early := st.View(t0.Add(100 * time.Second))
	if early.BonusMode {
		t.Error("bonus mode before the goal")
	}
	if early.RemainingSeconds != 500 {
		t.Errorf("remaining = %d, want 500", early.RemainingSeconds)
	}
}

func findFlush(t *testing.T, effects []Effect) FlushSegment {
	t.Helper()
	for _, ef := range effects {
		if f, ok := ef.(FlushSegment); ok {
			return f
		}
	}
	t.Fatal("no FlushSegment effect")
	return FlushSegment{}
}
