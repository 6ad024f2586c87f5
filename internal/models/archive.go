package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func jsonUnmarshal(b []byte, dst any) error { return json.Unmarshal(b, dst) }

// SessionArchive is the append-only summary of an ended creative session.
type SessionArchive struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`

	FinalStage Stage `bson:"final_stage" json:"final_stage"`
	StreakMode bool  `bson:"streak_mode" json:"streak_mode"`

	StartedAt time.Time `bson:"started_at" json:"started_at"`
	EndedAt   time.Time `bson:"ended_at" json:"ended_at"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
	XPGained        int64 `bson:"xp_gained" json:"xp_gained"`
}
