package models

import "time"

// StageTimeLog is one append-only ledger row: the contiguous span of active
// time attributed to one stage within a session. Rows are immutable once
// written.
type StageTimeLog struct {
	ID        uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    string `gorm:"column:user_id;type:uuid;index:idx_stage_logs_user_started,priority:1" json:"user_id"`
	SessionID string `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	Stage     Stage  `gorm:"column:stage;type:text" json:"stage"`

	StartedAt       time.Time `gorm:"column:started_at;type:timestamptz;index:idx_stage_logs_user_started,priority:2" json:"started_at"`
	DurationSeconds int64     `gorm:"column:duration_seconds" json:"duration_seconds"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (StageTimeLog) TableName() string { return "stage_time_logs" }
