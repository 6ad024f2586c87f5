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

// StreakRepository persists streak state and freeze usage. The freeze
// operations are transactional: a balance decrement and its usage records
// commit together or not at all, which is what keeps freezes_available
// non-negative and paired one-to-one with usage rows.
type StreakRepository interface {
	Get(ctx context.Context, userID string) (*models.StreakState, error)
	Save(ctx context.Context, st *models.StreakState) error
	DaysProtected(ctx context.Context, userID string, days []string) (map[string]bool, error)
	ApplyFreezes(ctx context.Context, userID string, days []string, usedAt time.Time, st *models.StreakState) error
	PurchaseFreezes(ctx context.Context, userID string, count int, cost int64) error
}

type streakRepo struct {
	db *gorm.DB
}

func NewStreakRepo(db *gorm.DB) StreakRepository {
	return &streakRepo{db: db}
}

// Get returns the stored row, or a fresh zero-value state for users without
// one; the first Save materializes it.
func (r *streakRepo) Get(ctx context.Context, userID string) (*models.StreakState, error) {
	var st models.StreakState
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.StreakState{UserID: userID}, nil
	}
	return &st, err
}

func (r *streakRepo) Save(ctx context.Context, st *models.StreakState) error {
	return r.saveTx(r.db.WithContext(ctx), st)
}

func (r *streakRepo) saveTx(tx *gorm.DB, st *models.StreakState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return tx.
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_streak", "longest_streak", "last_qualifying_date",
				"last_evaluated_date", "updated_at",
			}),
		}).
		Create(st).Error
}

func (r *streakRepo) DaysProtected(ctx context.Context, userID string, days []string) (map[string]bool, error) {
	protected := make(map[string]bool, len(days))
	if len(days) == 0 {
		return protected, nil
	}

	var rows []models.FreezeUsage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day_protected IN ?", userID, days).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		protected[row.DayProtected] = true
	}
	return protected, nil
}

func (r *streakRepo) ApplyFreezes(ctx context.Context, userID string, days []string, usedAt time.Time, st *models.StreakState) error {
	const op = "StreakRepository.ApplyFreezes"

	if len(days) == 0 {
		return r.Save(ctx, st)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Conditional decrement: the WHERE clause is the non-negative
		// balance guard.
		res := tx.Model(&models.Profile{}).
			Where("user_id = ? AND freezes_available >= ?", userID, len(days)).
			Updates(map[string]any{
				"freezes_available":       gorm.Expr("freezes_available - ?", len(days)),
				"freezes_used_this_month": gorm.Expr("freezes_used_this_month + ?", len(days)),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.E(utils.CodeConflict, op, "not enough freezes available", nil)
		}

		usages := make([]models.FreezeUsage, 0, len(days))
		for _, day := range days {
			usages = append(usages, models.FreezeUsage{
				UserID:       userID,
				DayProtected: day,
				UsedAt:       usedAt,
			})
		}
		if err := tx.Create(&usages).Error; err != nil {
			return err
		}

		return r.saveTx(tx, st)
	})
}

func (r *streakRepo) PurchaseFreezes(ctx context.Context, userID string, count int, cost int64) error {
	const op = "StreakRepository.PurchaseFreezes"

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Fail closed: no partial debit when the XP balance is short.
		res := tx.Model(&models.Profile{}).
			Where("user_id = ? AND xp_points >= ?", userID, cost).
			Updates(map[string]any{
				"xp_points":         gorm.Expr("xp_points - ?", cost),
				"freezes_available": gorm.Expr("freezes_available + ?", count),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.E(utils.CodeInvalidArgument, op, "not enough xp for freeze purchase", nil)
		}
		return nil
	})
}
