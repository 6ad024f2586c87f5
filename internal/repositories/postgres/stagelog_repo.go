package postgres

import (
	"context"
	"time"

	"github.com/planloop/planloop/internal/models"
	"gorm.io/gorm"
)

// StageLogRepository is the stage-time ledger: append-only rows, one per
// stage segment.
type StageLogRepository interface {
	Append(ctx context.Context, entry *models.StageTimeLog) error
	SumForDay(ctx context.Context, userID string, from, to time.Time) (int64, error)
	ListForSession(ctx context.Context, sessionID string) ([]models.StageTimeLog, error)
}

type stageLogRepo struct {
	db *gorm.DB
}

func NewStageLogRepo(db *gorm.DB) StageLogRepository {
	return &stageLogRepo{db: db}
}

func (r *stageLogRepo) Append(ctx context.Context, entry *models.StageTimeLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *stageLogRepo) SumForDay(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.StageTimeLog{}).
		Where("user_id = ? AND started_at >= ? AND started_at < ?", userID, from, to).
		Select("COALESCE(SUM(duration_seconds), 0)").
		Scan(&total).Error
	return total, err
}

func (r *stageLogRepo) ListForSession(ctx context.Context, sessionID string) ([]models.StageTimeLog, error) {
	var logs []models.StageTimeLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("started_at ASC").
		Find(&logs).Error
	return logs, err
}
