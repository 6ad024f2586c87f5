package services

import (
	"context"

	"github.com/planloop/planloop/internal/models"
	pgrepo "github.com/planloop/planloop/internal/repositories/postgres"
	"github.com/planloop/planloop/internal/streak"
	"github.com/planloop/planloop/internal/utils"
)

type StreakStatus struct {
	CurrentStreak        int    `json:"current_streak"`
	LongestStreak        int    `json:"longest_streak"`
	LastQualifyingDate   string `json:"last_qualifying_date"`
	FreezesAvailable     int    `json:"freezes_available"`
	FreezesUsedThisMonth int    `json:"freezes_used_this_month"`
	MinStreakMinutes     int    `json:"min_streak_minutes"`
	FreezeCost           int64  `json:"freeze_cost"`
}

type StreakService interface {
	Status(ctx context.Context, userID string) (*StreakStatus, error)
	// Validate runs the repair pass; it is idempotent within a session.
	Validate(ctx context.Context, userID string) (*streak.Report, error)
	PurchaseFreezes(ctx context.Context, userID string, count int) (*streak.Report, error)
	AcceptReset(ctx context.Context, userID string) (*streak.Report, error)
	// Inspect serves the admin surface with the raw stored state.
	Inspect(ctx context.Context, userID string) (*models.StreakState, error)
}

type streakService struct {
	validator *streak.Validator
	streaks   pgrepo.StreakRepository
	profiles  pgrepo.ProfileRepository
}

func NewStreakService(validator *streak.Validator, streaks pgrepo.StreakRepository, profiles pgrepo.ProfileRepository) StreakService {
	return &streakService{
		validator: validator,
		streaks:   streaks,
		profiles:  profiles,
	}
}

func (s *streakService) Status(ctx context.Context, userID string) (*StreakStatus, error) {
	const op = "StreakService.Status"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	st, err := s.streaks.Get(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read streak state", err)
	}
	profile, err := s.profiles.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read profile", err)
	}

	return &StreakStatus{
		CurrentStreak:        st.CurrentStreak,
		LongestStreak:        st.LongestStreak,
		LastQualifyingDate:   st.LastQualifyingDate,
		FreezesAvailable:     profile.FreezesAvailable,
		FreezesUsedThisMonth: profile.FreezesUsedThisMonth,
		MinStreakMinutes:     profile.MinStreakMinutes,
		FreezeCost:           streak.FreezeCost(profile.MinStreakMinutes),
	}, nil
}

func (s *streakService) Validate(ctx context.Context, userID string) (*streak.Report, error) {
	return s.validator.Validate(ctx, userID)
}

func (s *streakService) PurchaseFreezes(ctx context.Context, userID string, count int) (*streak.Report, error) {
	return s.validator.PurchaseFreezes(ctx, userID, count)
}

func (s *streakService) AcceptReset(ctx context.Context, userID string) (*streak.Report, error) {
	return s.validator.AcceptReset(ctx, userID)
}

func (s *streakService) Inspect(ctx context.Context, userID string) (*models.StreakState, error) {
	const op = "StreakService.Inspect"

	st, err := s.streaks.Get(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read streak state", err)
	}
	return st, nil
}
