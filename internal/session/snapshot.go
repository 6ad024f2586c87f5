package session

import (
	"context"
	"time"

	"github.com/planloop/planloop/internal/cache"
	"github.com/planloop/planloop/internal/models"
)

// Snapshot is the persisted form of a live session, written by the autosave
// worker and on every transition, so a refresh or crash can pick the session
// back up. A snapshot whose StartedAt is older than the staleness TTL is
// silently discarded on restore instead of resurrecting an abandoned session.
type Snapshot struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Stage     models.Stage `json:"stage"`
	Status    Status       `json:"status"`

	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	SavedSeconds   int64     `json:"saved_seconds"`
	SegmentStart   time.Time `json:"segment_start"`

	TargetSeconds        int64 `json:"target_seconds"`
	StreakMode           bool  `json:"streak_mode"`
	DailyGoalMinutes     int   `json:"daily_goal_minutes"`
	DailyBaselineSeconds int64 `json:"daily_baseline_seconds"`

	SavedAt time.Time `json:"saved_at"`
}

// SnapshotStore is the persistence port for session recovery. Backends are
// swappable; the server uses Redis through the cache port, tests use the
// in-memory cache.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context, userID string) (*Snapshot, bool, error)
	Clear(ctx context.Context, userID string) error
}

func snapshotKey(userID string) string { return "session:snapshot:" + userID }

type cacheSnapshotStore struct {
	c   cache.Cache
	ttl time.Duration
}

// NewCacheSnapshotStore stores snapshots behind the cache port with the given
// retention TTL.
func NewCacheSnapshotStore(c cache.Cache, ttl time.Duration) SnapshotStore {
	return &cacheSnapshotStore{c: c, ttl: ttl}
}

func (s *cacheSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	// SavedAt is the sequence marker: a write carrying an older reading than
	// the committed snapshot is dropped, never applied over newer state.
	var cur Snapshot
	if hit, err := s.c.GetJSON(ctx, snapshotKey(snap.UserID), &cur); err == nil && hit {
		if cur.SessionID == snap.SessionID && cur.SavedAt.After(snap.SavedAt) {
			return nil
		}
	}
	return s.c.SetJSON(ctx, snapshotKey(snap.UserID), snap, s.ttl)
}

func (s *cacheSnapshotStore) Load(ctx context.Context, userID string) (*Snapshot, bool, error) {
	var snap Snapshot
	hit, err := s.c.GetJSON(ctx, snapshotKey(userID), &snap)
	if err != nil || !hit {
		return nil, false, err
	}
	return &snap, true, nil
}

func (s *cacheSnapshotStore) Clear(ctx context.Context, userID string) error {
	return s.c.Del(ctx, snapshotKey(userID))
}
