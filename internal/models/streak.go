package models

import "time"

// DayLayout is the calendar-day key format used everywhere a date is stored.
// Days are always computed in the user's configured timezone.
const DayLayout = "2006-01-02"

// StreakState is the single per-user row tracking the daily streak. Only the
// streak validator mutates it.
type StreakState struct {
	UserID        string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	CurrentStreak int    `gorm:"column:current_streak" json:"current_streak"`
	LongestStreak int    `gorm:"column:longest_streak" json:"longest_streak"`

	// LastQualifyingDate is the most recent calendar day (DayLayout, user
	// timezone) whose logged time met the streak threshold. Empty when the
	// user has never qualified.
	LastQualifyingDate string `gorm:"column:last_qualifying_date;type:text" json:"last_qualifying_date"`

	// LastEvaluatedDate is the idempotency boundary: days up to and including
	// it have already been repaired, so re-running validation never
	// re-charges freezes for them.
	LastEvaluatedDate string `gorm:"column:last_evaluated_date;type:text" json:"last_evaluated_date"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (StreakState) TableName() string { return "streak_states" }

// FreezeUsage records one freeze spent to protect one calendar day. Rows are
// append-only; the unique index makes double-protecting a day impossible.
type FreezeUsage struct {
	ID           uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID       string    `gorm:"column:user_id;type:uuid;uniqueIndex:uniq_freeze_user_day,priority:1" json:"user_id"`
	DayProtected string    `gorm:"column:day_protected;type:text;uniqueIndex:uniq_freeze_user_day,priority:2" json:"day_protected"`
	UsedAt       time.Time `gorm:"column:used_at;type:timestamptz" json:"used_at"`
}

func (FreezeUsage) TableName() string { return "freeze_usages" }
