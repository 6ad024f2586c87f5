package streak

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/planloop/planloop/internal/cache"
	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/utils"
)

// Noon UTC so day arithmetic never straddles midnight by accident.
var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type mockProfiles struct {
	profile  models.Profile
	xpAdded  []int64
	addXPErr error
	trophies []string
}

func (m *mockProfiles) GetOrDefault(context.Context, string) (*models.Profile, error) {
	p := m.profile
	return &p, nil
}

func (m *mockProfiles) AddXP(_ context.Context, _ string, delta int64) error {
	if m.addXPErr != nil {
		return m.addXPErr
	}
	m.xpAdded = append(m.xpAdded, delta)
	m.profile.XPPoints += delta
	return nil
}

func (m *mockProfiles) AwardTrophy(_ context.Context, _, trophy string) error {
	m.trophies = append(m.trophies, trophy)
	return nil
}

type mockStreaks struct {
	state models.StreakState
	saves int
}

func (m *mockStreaks) Get(context.Context, string) (*models.StreakState, error) {
	st := m.state
	return &st, nil
}

func (m *mockStreaks) Save(_ context.Context, st *models.StreakState) error {
	m.state = *st
	m.saves++
	return nil
}

type mockFreezes struct {
	profiles  *mockProfiles
	streaks   *mockStreaks
	protected map[string]bool
	applied   [][]string
	purchases []int
}

func (m *mockFreezes) DaysProtected(_ context.Context, _ string, days []string) (map[string]bool, error) {
	out := make(map[string]bool, len(days))
	for _, d := range days {
		if m.protected[d] {
			out[d] = true
		}
	}
	return out, nil
}

func (m *mockFreezes) ApplyFreezes(_ context.Context, _ string, days []string, _ time.Time, st *models.StreakState) error {
	if m.protected == nil {
		m.protected = make(map[string]bool)
	}
	for _, d := range days {
		m.protected[d] = true
	}
	m.profiles.profile.FreezesAvailable -= len(days)
	m.streaks.state = *st
	m.applied = append(m.applied, days)
	return nil
}

func (m *mockFreezes) PurchaseFreezes(_ context.Context, _ string, count int, cost int64) error {
	m.profiles.profile.XPPoints -= cost
	m.profiles.profile.FreezesAvailable += count
	m.purchases = append(m.purchases, count)
	return nil
}

type mockSums struct {
	// seconds logged per calendar day, keyed by day start in UTC
	byDay map[string]int64
}

func (m *mockSums) SumForDay(_ context.Context, _ string, from, _ time.Time) (int64, error) {
	return m.byDay[from.Format(models.DayLayout)], nil
}

type fixture struct {
	v        *Validator
	clk      *clock.Manual
	profiles *mockProfiles
	streaks  *mockStreaks
	freezes  *mockFreezes
	sums     *mockSums
	journal  *cache.Memory
	bus      *events.Bus
	captured []events.Event
}

func newFixture(freezesAvailable int) *fixture {
	f := &fixture{
		clk: clock.NewManual(now),
		profiles: &mockProfiles{profile: models.Profile{
			UserID:           "u-1",
			Timezone:         "UTC",
			MinStreakMinutes: 15,
			FreezesAvailable: freezesAvailable,
		}},
		streaks: &mockStreaks{},
		sums:    &mockSums{byDay: map[string]int64{}},
		journal: cache.NewMemory(),
		bus:     events.NewBus(),
	}
	f.freezes = &mockFreezes{profiles: f.profiles, streaks: f.streaks, protected: map[string]bool{}}
	f.bus.SubscribeAll(func(ev events.Event) { f.captured = append(f.captured, ev) })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	f.v = NewValidator(f.clk, f.profiles, f.streaks, f.freezes, f.sums, f.journal, f.bus, log)
	return f
}

func (f *fixture) eventsOf(t events.Type) []events.Event {
	var out []events.Event
	for _, ev := range f.captured {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestValidateNeverQualified(t *testing.T) {
	f := newFixture(0)

	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HasLostDays || report.CurrentStreak != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if f.streaks.state.LastEvaluatedDate != "2025-06-09" {
		t.Errorf("boundary = %q, want yesterday", f.streaks.state.LastEvaluatedDate)
	}
}

func TestValidateStreakAlive(t *testing.T) {
	f := newFixture(1)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      5,
		LongestStreak:      8,
		LastQualifyingDate: "2025-06-09",
	}

	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HasLostDays {
		t.Error("alive streak reported lost days")
	}
	if report.CurrentStreak != 5 {
		t.Errorf("streak = %d, want 5", report.CurrentStreak)
	}
	if len(f.freezes.applied) != 0 {
		t.Error("freezes spent on an alive streak")
	}
}

// Two missed days with two freezes in the bank: both are protected in one
// transaction and the streak continues unbroken.
func TestValidateAutoAppliesFreezes(t *testing.T) {
	f := newFixture(2)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      12,
		LongestStreak:      12,
		LastQualifyingDate: "2025-06-07",
	}

	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.HasLostDays || report.FreezesAutoUsed != 2 || !report.CanUseFreeze {
		t.Errorf("report = %+v", report)
	}
	if report.CurrentStreak != 12 {
		t.Errorf("streak = %d, want 12 unbroken", report.CurrentStreak)
	}
	if report.FreezesAvailable != 0 {
		t.Errorf("freezes left = %d, want 0", report.FreezesAvailable)
	}

	if len(f.freezes.applied) != 1 {
		t.Fatalf("apply calls = %d, want 1", len(f.freezes.applied))
	}
	want := []string{"2025-06-08", "2025-06-09"}
	got := f.freezes.applied[0]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("protected days = %v, want %v", got, want)
	}

	evs := f.eventsOf(events.TypeFreezeAutoApplied)
	if len(evs) != 1 {
		t.Fatalf("freeze events = %d, want 1", len(evs))
	}
	if p := evs[0].Payload.(events.FreezeAutoApplied); p.FreezesUsed != 2 {
		t.Errorf("event payload = %+v", p)
	}
}

// The same gap with only one freeze: nothing is mutated, and the boundary
// stays put so the eventual user decision re-examines the same days.
func TestValidateInsufficientFreezesDefersToUser(t *testing.T) {
	f := newFixture(1)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      12,
		LongestStreak:      12,
		LastQualifyingDate: "2025-06-07",
	}

	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.HasLostDays || report.LostDaysCount != 2 || report.CanUseFreeze {
		t.Errorf("report = %+v", report)
	}
	if len(f.freezes.applied) != 0 {
		t.Error("freezes were spent despite insufficient balance")
	}
	if f.streaks.saves != 0 {
		t.Error("streak state mutated on the deferred path")
	}
	if f.streaks.state.LastEvaluatedDate != "" {
		t.Errorf("boundary advanced to %q", f.streaks.state.LastEvaluatedDate)
	}
	if f.profiles.profile.FreezesAvailable != 1 {
		t.Error("freeze balance changed")
	}
}

// A gap day whose logged time met the threshold counts as qualifying, not
// lost: the streak grows and no freeze is charged for it.
func TestValidateQualifyingDayInGap(t *testing.T) {
	f := newFixture(1)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      3,
		LongestStreak:      3,
		LastQualifyingDate: "2025-06-07",
	}
	f.sums.byDay["2025-06-08"] = 20 * 60 // over the 15-minute bar
	// 06-09 stays at zero: one lost day, one freeze, coverable.

	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.CurrentStreak != 4 {
		t.Errorf("streak = %d, want 4", report.CurrentStreak)
	}
	if report.FreezesAutoUsed != 1 {
		t.Errorf("freezes used = %d, want 1", report.FreezesAutoUsed)
	}
	if f.streaks.state.LastQualifyingDate != "2025-06-08" {
		t.Errorf("last qualifying = %q", f.streaks.state.LastQualifyingDate)
	}
}

// Running validation again after a repair must not charge freezes twice:
// the evaluated boundary excludes already-handled days.
func TestValidateIsIdempotent(t *testing.T) {
	f := newFixture(2)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      12,
		LongestStreak:      12,
		LastQualifyingDate: "2025-06-07",
	}

	if _, err := f.v.Validate(context.Background(), "u-1"); err != nil {
		t.Fatalf("first validate: %v", err)
	}
	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if report.FreezesAutoUsed != 0 {
		t.Errorf("second run used %d freezes", report.FreezesAutoUsed)
	}
	if len(f.freezes.applied) != 1 {
		t.Errorf("apply calls = %d, want 1", len(f.freezes.applied))
	}
}

func TestOnSessionEndedQualifiesOncePerDay(t *testing.T) {
	f := newFixture(0)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      6,
		LongestStreak:      6,
		LastQualifyingDate: "2025-06-09",
	}
	f.sums.byDay["2025-06-10"] = 16 * 60

	if err := f.v.OnSessionEnded(context.Background(), "u-1", 160); err != nil {
		t.Fatalf("first session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 7 {
		t.Errorf("streak = %d, want 7", f.streaks.state.CurrentStreak)
	}
	if f.streaks.state.LastQualifyingDate != "2025-06-10" {
		t.Errorf("last qualifying = %q", f.streaks.state.LastQualifyingDate)
	}
	if len(f.profiles.trophies) != 1 || f.profiles.trophies[0] != "streak-week" {
		t.Errorf("trophies = %v", f.profiles.trophies)
	}
	if len(f.profiles.xpAdded) != 1 || f.profiles.xpAdded[0] != 160 {
		t.Errorf("xp credits = %v", f.profiles.xpAdded)
	}

	evs := f.eventsOf(events.TypeStreakUpdated)
	if len(evs) != 1 || !evs[0].Payload.(events.StreakUpdated).DidCelebrate {
		t.Fatalf("streak events = %+v", evs)
	}

	// A second session the same day credits XP but never re-qualifies.
	f.sums.byDay["2025-06-10"] = 40 * 60
	if err := f.v.OnSessionEnded(context.Background(), "u-1", 240); err != nil {
		t.Fatalf("second session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 7 {
		t.Errorf("streak moved to %d on a second qualification", f.streaks.state.CurrentStreak)
	}
	evs = f.eventsOf(events.TypeStreakUpdated)
	if len(evs) != 2 || evs[1].Payload.(events.StreakUpdated).DidCelebrate {
		t.Errorf("second event should not celebrate: %+v", evs)
	}
}

func TestOnSessionEndedBelowThreshold(t *testing.T) {
	f := newFixture(0)
	f.sums.byDay["2025-06-10"] = 5 * 60

	if err := f.v.OnSessionEnded(context.Background(), "u-1", 50); err != nil {
		t.Fatalf("session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 0 {
		t.Errorf("streak = %d, want 0", f.streaks.state.CurrentStreak)
	}
	if len(f.profiles.xpAdded) != 1 {
		t.Error("xp should still be credited below the streak bar")
	}
}

func TestOnSessionEndedRestartsAfterGap(t *testing.T) {
	f := newFixture(0)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      20,
		LongestStreak:      20,
		LastQualifyingDate: "2025-06-01",
	}
	f.sums.byDay["2025-06-10"] = 30 * 60

	if err := f.v.OnSessionEnded(context.Background(), "u-1", 300); err != nil {
		t.Fatalf("session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 1 {
		t.Errorf("streak = %d, want restart at 1", f.streaks.state.CurrentStreak)
	}
	if f.streaks.state.LongestStreak != 20 {
		t.Errorf("longest = %d, want 20 preserved", f.streaks.state.LongestStreak)
	}
}

// A freeze that protected yesterday preserves continuity: qualifying today
// extends the streak instead of restarting it, even though yesterday never
// became a qualifying day.
func TestOnSessionEndedContinuesAcrossFrozenDay(t *testing.T) {
	f := newFixture(1)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      5,
		LongestStreak:      5,
		LastQualifyingDate: "2025-06-08",
	}

	// Load-time validation protects 2025-06-09 with the one freeze.
	report, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.FreezesAutoUsed != 1 || report.CurrentStreak != 5 {
		t.Fatalf("repair report = %+v", report)
	}

	f.sums.byDay["2025-06-10"] = 60 * 60
	if err := f.v.OnSessionEnded(context.Background(), "u-1", 600); err != nil {
		t.Fatalf("session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 6 {
		t.Errorf("streak = %d, want 6 continued across the frozen day", f.streaks.state.CurrentStreak)
	}
	if f.streaks.state.LastQualifyingDate != "2025-06-10" {
		t.Errorf("last qualifying = %q", f.streaks.state.LastQualifyingDate)
	}
}

// A multi-day frozen span is continuous only when every day is protected.
func TestOnSessionEndedPartiallyFrozenSpanRestarts(t *testing.T) {
	f := newFixture(0)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      5,
		LongestStreak:      5,
		LastQualifyingDate: "2025-06-07",
	}
	f.freezes.protected["2025-06-08"] = true // 06-09 stays uncovered
	f.sums.byDay["2025-06-10"] = 60 * 60

	if err := f.v.OnSessionEnded(context.Background(), "u-1", 600); err != nil {
		t.Fatalf("session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 1 {
		t.Errorf("streak = %d, want restart at 1", f.streaks.state.CurrentStreak)
	}
}

// A failed profile credit is journaled, not lost: qualification still runs,
// and the next validation pass credits the deferred XP.
func TestOnSessionEndedDefersXPWhenCreditFails(t *testing.T) {
	f := newFixture(0)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      2,
		LongestStreak:      2,
		LastQualifyingDate: "2025-06-09",
	}
	f.sums.byDay["2025-06-10"] = 20 * 60

	f.profiles.addXPErr = errors.New("connection reset")
	if err := f.v.OnSessionEnded(context.Background(), "u-1", 200); err != nil {
		t.Fatalf("session: %v", err)
	}
	if f.streaks.state.CurrentStreak != 3 {
		t.Errorf("qualification skipped: streak = %d", f.streaks.state.CurrentStreak)
	}
	if f.profiles.profile.XPPoints != 0 {
		t.Errorf("xp = %d despite failed credit", f.profiles.profile.XPPoints)
	}

	// Store recovers; validation reconciles the journal exactly once.
	f.profiles.addXPErr = nil
	if _, err := f.v.Validate(context.Background(), "u-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if f.profiles.profile.XPPoints != 200 {
		t.Errorf("xp = %d, want 200 after reconciliation", f.profiles.profile.XPPoints)
	}
	if _, err := f.v.Validate(context.Background(), "u-1"); err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if f.profiles.profile.XPPoints != 200 {
		t.Errorf("xp = %d, journal credited twice", f.profiles.profile.XPPoints)
	}
}

func TestPurchaseFreezesFailsClosed(t *testing.T) {
	f := newFixture(0)
	f.profiles.profile.XPPoints = 100 // one freeze costs 250 at 15 minutes

	_, err := f.v.PurchaseFreezes(context.Background(), "u-1", 1)
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("want invalid-argument, got %v", err)
	}
	if len(f.freezes.purchases) != 0 {
		t.Error("purchase went through despite short balance")
	}
	if f.profiles.profile.XPPoints != 100 {
		t.Error("xp was debited")
	}
}

func TestPurchaseFreezesThenRepairs(t *testing.T) {
	f := newFixture(0)
	f.profiles.profile.XPPoints = 600
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      9,
		LongestStreak:      9,
		LastQualifyingDate: "2025-06-08",
	}

	report, err := f.v.PurchaseFreezes(context.Background(), "u-1", 2)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if f.profiles.profile.XPPoints != 600-2*250 {
		t.Errorf("xp = %d, want 100", f.profiles.profile.XPPoints)
	}
	// The single lost day (06-09) is repaired by the follow-up validation.
	if report.FreezesAutoUsed != 1 {
		t.Errorf("auto used = %d, want 1", report.FreezesAutoUsed)
	}
	if report.CurrentStreak != 9 {
		t.Errorf("streak = %d, want 9 unbroken", report.CurrentStreak)
	}
}

func TestAcceptReset(t *testing.T) {
	f := newFixture(1)
	f.streaks.state = models.StreakState{
		UserID:             "u-1",
		CurrentStreak:      12,
		LongestStreak:      15,
		LastQualifyingDate: "2025-06-05",
	}

	report, err := f.v.AcceptReset(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if report.CurrentStreak != 0 {
		t.Errorf("report streak = %d", report.CurrentStreak)
	}
	if f.streaks.state.CurrentStreak != 0 || f.streaks.state.LastQualifyingDate != "" {
		t.Errorf("state = %+v", f.streaks.state)
	}
	if f.streaks.state.LastEvaluatedDate != "2025-06-09" {
		t.Errorf("boundary = %q, want yesterday", f.streaks.state.LastEvaluatedDate)
	}

	// A validate after the reset finds nothing to repair.
	rep2, err := f.v.Validate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("validate after reset: %v", err)
	}
	if rep2.HasLostDays {
		t.Error("lost days reported after an accepted reset")
	}
}

func TestFreezeCostMonotone(t *testing.T) {
	if FreezeCost(15) != 250 {
		t.Errorf("cost(15) = %d", FreezeCost(15))
	}
	if FreezeCost(30) <= FreezeCost(15) {
		t.Error("cost must grow with the threshold")
	}
	if FreezeCost(0) != FreezeCost(1) {
		t.Error("threshold floor not applied")
	}
}
