// Package streak decides whether a user's daily streak needs repair and
// repairs it automatically when the freeze balance allows. It is the sole
// mutator of streak state and freeze usage records.
package streak

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/planloop/planloop/internal/cache"
	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/utils"
)

// Streak milestones that earn a trophy.
var trophyMilestones = map[int]string{
	7:   "streak-week",
	30:  "streak-month",
	100: "streak-century",
}

type ProfileStore interface {
	// GetOrDefault returns the stored profile or a default-initialized one
	// for users who have not configured anything yet.
	GetOrDefault(ctx context.Context, userID string) (*models.Profile, error)
	AddXP(ctx context.Context, userID string, delta int64) error
	AwardTrophy(ctx context.Context, userID, trophy string) error
}

type StreakStore interface {
	// Get returns the user's streak row, or a zero-value row when none
	// exists yet.
	Get(ctx context.Context, userID string) (*models.StreakState, error)
	Save(ctx context.Context, st *models.StreakState) error
}

type FreezeStore interface {
	// DaysProtected reports which of the given days already have a usage
	// record.
	DaysProtected(ctx context.Context, userID string, days []string) (map[string]bool, error)
	// ApplyFreezes decrements the freeze balance by len(days), writes one
	// usage record per day, and saves the streak state, all in one
	// transaction. It fails without partial effect when the balance is
	// short.
	ApplyFreezes(ctx context.Context, userID string, days []string, usedAt time.Time, st *models.StreakState) error
	// PurchaseFreezes debits cost XP and credits count freezes atomically,
	// failing closed when the XP balance is insufficient.
	PurchaseFreezes(ctx context.Context, userID string, count int, cost int64) error
}

type LedgerSums interface {
	SumForDay(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

type Validator struct {
	clk      clock.Clock
	profiles ProfileStore
	streaks  StreakStore
	freezes  FreezeStore
	ledger   LedgerSums
	journal  cache.Cache
	bus      *events.Bus
	log      *logrus.Logger
}

func NewValidator(clk clock.Clock, profiles ProfileStore, streaks StreakStore, freezes FreezeStore, ledger LedgerSums, journal cache.Cache, bus *events.Bus, log *logrus.Logger) *Validator {
	return &Validator{
		clk:      clk,
		profiles: profiles,
		streaks:  streaks,
		freezes:  freezes,
		ledger:   ledger,
		journal:  journal,
		bus:      bus,
		log:      log,
	}
}

// Report is the outcome of a validation pass.
type Report struct {
	CurrentStreak    int      `json:"current_streak"`
	LongestStreak    int      `json:"longest_streak"`
	FreezesAvailable int      `json:"freezes_available"`
	HasLostDays      bool     `json:"has_lost_days"`
	LostDaysCount    int      `json:"lost_days_count"`
	LostDays         []string `json:"lost_days,omitempty"`
	CanUseFreeze     bool     `json:"can_use_freeze"`
	FreezesAutoUsed  int      `json:"freezes_auto_used"`
	// FreezeCost is the XP price of one freeze at the user's threshold,
	// surfaced so the client can offer the purchase path.
	FreezeCost int64 `json:"freeze_cost"`
}

// Validate scans the days between the last qualifying date and yesterday,
// classifying each as qualifying, protected, or lost. When the freeze
// balance covers every lost day they are all protected atomically and the
// streak continues unbroken; when it cannot, nothing is mutated and the
// report defers to a user decision (purchase freezes or accept a reset).
//
// LastEvaluatedDate is the idempotency boundary: days at or before it are
// never re-examined, so running validation twice in one session cannot
// charge freezes twice for the same day.
func (v *Validator) Validate(ctx context.Context, userID string) (*Report, error) {
	const op = "Validator.Validate"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	v.creditDeferredXP(ctx, userID)

	profile, err := v.profiles.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read profile", err)
	}
	loc := profile.Location()
	minSeconds := int64(profile.MinStreakMinutes) * 60

	st, err := v.streaks.Get(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read streak state", err)
	}

	now := v.clk.Now()
	yesterday := dayKey(now.AddDate(0, 0, -1), loc)

	report := &Report{
		CurrentStreak:    st.CurrentStreak,
		LongestStreak:    st.LongestStreak,
		FreezesAvailable: profile.FreezesAvailable,
		FreezeCost:       FreezeCost(profile.MinStreakMinutes),
	}

	// Never qualified: nothing to repair, just stamp the boundary.
	if st.LastQualifyingDate == "" {
		if st.LastEvaluatedDate < yesterday {
			st.LastEvaluatedDate = yesterday
			st.UpdatedAt = now
			if err := v.streaks.Save(ctx, st); err != nil {
				return nil, utils.E(utils.CodeInternal, op, "failed to save streak state", err)
			}
		}
		return report, nil
	}

	// The streak is alive when the last qualifying day is today or
	// yesterday; today itself can still be earned, so it is never scanned.
	scanFrom := maxDay(st.LastQualifyingDate, st.LastEvaluatedDate)
	gap, err := daysBetween(scanFrom, yesterday, loc)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "bad day arithmetic", err)
	}
	if len(gap) == 0 {
		if st.LastEvaluatedDate < yesterday {
			st.LastEvaluatedDate = maxDay(st.LastEvaluatedDate, yesterday)
			st.UpdatedAt = now
			if err := v.streaks.Save(ctx, st); err != nil {
				return nil, utils.E(utils.CodeInternal, op, "failed to save streak state", err)
			}
		}
		return report, nil
	}

	protected, err := v.freezes.DaysProtected(ctx, userID, gap)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read freeze usage", err)
	}

	var lost []string
	qualified := 0
	lastQualifying := st.LastQualifyingDate
	for _, day := range gap {
		if protected[day] {
			continue
		}
		from, to, berr := dayBounds(day, loc)
		if berr != nil {
			return nil, utils.E(utils.CodeInternal, op, "bad day arithmetic", berr)
		}
		sum, serr := v.ledger.SumForDay(ctx, userID, from, to)
		if serr != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to sum day durations", serr)
		}
		if sum >= minSeconds {
			qualified++
			lastQualifying = day
			continue
		}
		lost = append(lost, day)
	}

	if len(lost) > 0 && len(lost) > profile.FreezesAvailable {
		// Cannot fully cover: report and defer to the user. The boundary is
		// deliberately not advanced so the eventual decision re-examines the
		// same days.
		report.HasLostDays = true
		report.LostDaysCount = len(lost)
		report.LostDays = lost
		report.CanUseFreeze = false
		return report, nil
	}

	st.CurrentStreak += qualified
	st.LastQualifyingDate = lastQualifying
	st.LastEvaluatedDate = maxDay(st.LastEvaluatedDate, yesterday)
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}
	st.UpdatedAt = now

	if len(lost) == 0 {
		if err := v.streaks.Save(ctx, st); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to save streak state", err)
		}
		report.CurrentStreak = st.CurrentStreak
		report.LongestStreak = st.LongestStreak
		return report, nil
	}

	// Every lost day is coverable: protect them all in one transaction.
	if err := v.freezes.ApplyFreezes(ctx, userID, lost, now, st); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to apply freezes", err)
	}

	report.CurrentStreak = st.CurrentStreak
	report.LongestStreak = st.LongestStreak
	report.FreezesAvailable = profile.FreezesAvailable - len(lost)
	report.FreezesAutoUsed = len(lost)
	report.HasLostDays = true
	report.LostDaysCount = len(lost)
	report.CanUseFreeze = true

	v.log.WithFields(logrus.Fields{
		"user_id":        userID,
		"freezes_used":   len(lost),
		"current_streak": st.CurrentStreak,
	}).Info("streak repaired with freezes")

	v.bus.Publish(events.Event{
		Type:   events.TypeFreezeAutoApplied,
		UserID: userID,
		At:     now,
		Payload: events.FreezeAutoApplied{
			FreezesUsed:   len(lost),
			CurrentStreak: st.CurrentStreak,
		},
	})
	return report, nil
}

// spanProtected reports whether every day after `from` up to `until` has a
// freeze usage record. An empty span (from == until, i.e. the last
// qualifying day was yesterday) is trivially protected; a user who never
// qualified has no span to protect.
func (v *Validator) spanProtected(ctx context.Context, userID, from, until string, loc *time.Location) (bool, error) {
	if from == "" {
		return false, nil
	}
	gap, err := daysBetween(from, until, loc)
	if err != nil {
		return false, err
	}
	if len(gap) == 0 {
		return true, nil
	}
	protected, err := v.freezes.DaysProtected(ctx, userID, gap)
	if err != nil {
		return false, err
	}
	for _, day := range gap {
		if !protected[day] {
			return false, nil
		}
	}
	return true, nil
}

// OnSessionEnded credits XP and marks today qualifying when the new total
// crosses the threshold. Runs after the ended session's final flush, so the
// day sum it reads is never stale. A day is marked qualifying at most once.
func (v *Validator) OnSessionEnded(ctx context.Context, userID string, xpGained int64) error {
	const op = "Validator.OnSessionEnded"

	if xpGained > 0 {
		if err := v.profiles.AddXP(ctx, userID, xpGained); err != nil {
			// Journal the award and keep going; the next validation pass
			// re-credits it instead of losing the XP the summary reported.
			v.deferXP(ctx, userID, xpGained, err)
		}
	}

	profile, err := v.profiles.GetOrDefault(ctx, userID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read profile", err)
	}
	loc := profile.Location()
	minSeconds := int64(profile.MinStreakMinutes) * 60

	st, err := v.streaks.Get(ctx, userID)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read streak state", err)
	}

	now := v.clk.Now()
	today := dayKey(now, loc)
	yesterday := dayKey(now.AddDate(0, 0, -1), loc)

	publish := func(count int, celebrate bool) {
		v.bus.Publish(events.Event{
			Type:    events.TypeStreakUpdated,
			UserID:  userID,
			At:      now,
			Payload: events.StreakUpdated{StreakCount: count, DidCelebrate: celebrate},
		})
	}

	if st.LastQualifyingDate == today {
		publish(st.CurrentStreak, false)
		return nil
	}

	from, to, err := dayBounds(today, loc)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "bad day arithmetic", err)
	}
	sum, err := v.ledger.SumForDay(ctx, userID, from, to)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to sum today's durations", err)
	}
	if sum < minSeconds {
		publish(st.CurrentStreak, false)
		return nil
	}

	// A frozen day counts for continuity: the run is unbroken when every day
	// since the last qualifying one is protected. Anything unprotected means
	// the run restarts here.
	continuous, err := v.spanProtected(ctx, userID, st.LastQualifyingDate, yesterday, loc)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to read freeze usage", err)
	}
	if continuous {
		st.CurrentStreak++
	} else {
		st.CurrentStreak = 1
	}
	st.LastQualifyingDate = today
	st.LastEvaluatedDate = maxDay(st.LastEvaluatedDate, yesterday)
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}
	st.UpdatedAt = now

	if err := v.streaks.Save(ctx, st); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to save streak state", err)
	}

	if trophy, ok := trophyMilestones[st.CurrentStreak]; ok {
		if err := v.profiles.AwardTrophy(ctx, userID, trophy); err != nil {
			v.log.WithError(err).WithField("user_id", userID).Warn("trophy award failed")
		}
	}

	publish(st.CurrentStreak, true)
	return nil
}

// PurchaseFreezes converts XP into freezes, failing closed (no partial
// debit) when the balance is short.
func (v *Validator) PurchaseFreezes(ctx context.Context, userID string, count int) (*Report, error) {
	const op = "Validator.PurchaseFreezes"

	if count <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "count must be positive", nil)
	}

	profile, err := v.profiles.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read profile", err)
	}

	cost := FreezeCost(profile.MinStreakMinutes) * int64(count)
	if profile.XPPoints < cost {
		return nil, utils.E(utils.CodeInvalidArgument, op, "not enough xp for freeze purchase", nil)
	}

	if err := v.freezes.PurchaseFreezes(ctx, userID, count, cost); err != nil {
		return nil, err
	}
	return v.Validate(ctx, userID)
}

// AcceptReset is the user declining to protect lost days: the streak returns
// to zero and the evaluated boundary advances past them.
func (v *Validator) AcceptReset(ctx context.Context, userID string) (*Report, error) {
	const op = "Validator.AcceptReset"

	profile, err := v.profiles.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read profile", err)
	}
	loc := profile.Location()

	st, err := v.streaks.Get(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read streak state", err)
	}

	now := v.clk.Now()
	yesterday := dayKey(now.AddDate(0, 0, -1), loc)

	st.CurrentStreak = 0
	st.LastQualifyingDate = ""
	st.LastEvaluatedDate = maxDay(st.LastEvaluatedDate, yesterday)
	st.UpdatedAt = now

	if err := v.streaks.Save(ctx, st); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to save streak state", err)
	}

	v.bus.Publish(events.Event{
		Type:    events.TypeStreakUpdated,
		UserID:  userID,
		At:      now,
		Payload: events.StreakUpdated{StreakCount: 0, DidCelebrate: false},
	})

	return &Report{
		FreezesAvailable: profile.FreezesAvailable,
		FreezeCost:       FreezeCost(profile.MinStreakMinutes),
	}, nil
}

func pendingXPKey(userID string) string { return "xp:pending:" + userID }

// deferXP accumulates an XP award whose profile credit failed. No TTL: the
// journal entry lives until a validation pass credits it.
func (v *Validator) deferXP(ctx context.Context, userID string, delta int64, cause error) {
	var pending int64
	if _, err := v.journal.GetJSON(ctx, pendingXPKey(userID), &pending); err != nil {
		v.log.WithError(err).WithField("user_id", userID).Warn("xp journal read failed")
	}
	pending += delta
	if err := v.journal.SetJSON(ctx, pendingXPKey(userID), pending, 0); err != nil {
		v.log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"xp":      delta,
		}).Error("xp credit failed and could not be journaled")
		return
	}
	v.log.WithError(cause).WithFields(logrus.Fields{
		"user_id":    userID,
		"xp":         delta,
		"xp_pending": pending,
	}).Warn("xp credit deferred to next validation")
}

func (v *Validator) creditDeferredXP(ctx context.Context, userID string) {
	var pending int64
	hit, err := v.journal.GetJSON(ctx, pendingXPKey(userID), &pending)
	if err != nil || !hit || pending <= 0 {
		return
	}
	if err := v.profiles.AddXP(ctx, userID, pending); err != nil {
		v.log.WithError(err).WithField("user_id", userID).Warn("deferred xp credit still failing")
		return
	}
	if err := v.journal.Del(ctx, pendingXPKey(userID)); err != nil {
		v.log.WithError(err).WithField("user_id", userID).Warn("xp journal clear failed")
		return
	}
	v.log.WithFields(logrus.Fields{
		"user_id": userID,
		"xp":      pending,
	}).Info("credited deferred xp")
}
