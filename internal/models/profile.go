package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Default commitment settings applied when a profile row does not exist yet.
const (
	DefaultMinStreakMinutes = 15
	DefaultDailyGoalMinutes = 30
)

type Profile struct {
	UserID      string `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	DisplayName string `gorm:"column:display_name;type:text" json:"display_name"`

	// Timezone is the IANA zone streak days are computed in.
	Timezone string `gorm:"column:timezone;type:text" json:"timezone"`

	MinStreakMinutes int `gorm:"column:min_streak_minutes" json:"min_streak_minutes"`
	DailyGoalMinutes int `gorm:"column:daily_goal_minutes" json:"daily_goal_minutes"`

	FreezesAvailable     int `gorm:"column:freezes_available" json:"freezes_available"`
	FreezesUsedThisMonth int `gorm:"column:freezes_used_this_month" json:"freezes_used_this_month"`

	XPPoints int64 `gorm:"column:xp_points" json:"xp_points"`

	Trophies pq.StringArray `gorm:"column:trophies;type:text[]" json:"trophies"`

	// JSONB (flexible client settings, ex: {"auto_popup": true})
	Preferences datatypes.JSON `gorm:"column:preferences;type:jsonb" json:"preferences"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// Location resolves the profile timezone, falling back to UTC when unset or
// unknown.
func (p *Profile) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AutoPopup reports whether the detached timer window should open
// automatically when the host tab is hidden. Defaults to true when the
// preference is absent.
func (p *Profile) AutoPopup() bool {
	if p == nil || len(p.Preferences) == 0 {
		return true
	}
	var prefs struct {
		AutoPopup *bool `json:"auto_popup"`
	}
	if err := jsonUnmarshal(p.Preferences, &prefs); err != nil || prefs.AutoPopup == nil {
		return true
	}
	return *prefs.AutoPopup
}
