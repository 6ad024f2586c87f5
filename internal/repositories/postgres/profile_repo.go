package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	// GetOrDefault materializes a default profile row for first-time users
	// so balance updates always have a row to land on.
	GetOrDefault(ctx context.Context, userID string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
	AddXP(ctx context.Context, userID string, delta int64) error
	AwardTrophy(ctx context.Context, userID, trophy string) error
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *profileRepo) GetOrDefault(ctx context.Context, userID string) (*models.Profile, error) {
	p := models.Profile{
		UserID:           userID,
		Timezone:         "UTC",
		MinStreakMinutes: models.DefaultMinStreakMinutes,
		DailyGoalMinutes: models.DefaultDailyGoalMinutes,
		UpdatedAt:        time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		FirstOrCreate(&p).Error
	return &p, err
}

func (r *profileRepo) Upsert(ctx context.Context, p *models.Profile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name", "timezone", "min_streak_minutes", "daily_goal_minutes",
				"preferences", "updated_at",
			}),
		}).
		Create(p).Error
}

func (r *profileRepo) AddXP(ctx context.Context, userID string, delta int64) error {
	if _, err := r.GetOrDefault(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("user_id = ?", userID).
		UpdateColumn("xp_points", gorm.Expr("xp_points + ?", delta)).Error
}

func (r *profileRepo) AwardTrophy(ctx context.Context, userID, trophy string) error {
	// array_append with a membership guard keeps the award idempotent.
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("user_id = ? AND NOT (? = ANY(COALESCE(trophies, '{}')))", userID, trophy).
		UpdateColumn("trophies", gorm.Expr("array_append(COALESCE(trophies, '{}'), ?)", trophy)).Error
}
