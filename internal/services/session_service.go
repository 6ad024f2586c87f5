package services

import (
	"context"
	"time"

	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/portal"
	mongorepo "github.com/planloop/planloop/internal/repositories/mongo"
	pgrepo "github.com/planloop/planloop/internal/repositories/postgres"
	"github.com/planloop/planloop/internal/session"
	"github.com/planloop/planloop/internal/utils"
)

type SessionService interface {
	Start(ctx context.Context, userID string, stage models.Stage, streakMode bool) (session.View, error)
	Pause(ctx context.Context, userID string) (session.View, error)
	Resume(ctx context.Context, userID string) (session.View, error)
	ChangeStage(ctx context.Context, userID string, stage models.Stage) (session.View, error)
	End(ctx context.Context, userID string) (session.Summary, error)
	// Get returns the live view, restoring a snapshotted session first when
	// the engine is idle.
	Get(ctx context.Context, userID string) (session.View, error)
	// Heartbeat is the client's visibility report and best-effort save hook
	// (tick, visibilitychange, beforeunload all land here).
	Heartbeat(ctx context.Context, userID string, hidden bool) (session.View, error)
	History(ctx context.Context, userID string, limit int64) ([]models.SessionArchive, error)
}

type sessionService struct {
	registry *session.Registry
	profiles pgrepo.ProfileRepository
	archive  mongorepo.ArchiveRepository
	portal   *portal.Supervisor
	clk      clock.Clock
}

func NewSessionService(registry *session.Registry, profiles pgrepo.ProfileRepository, archive mongorepo.ArchiveRepository, p *portal.Supervisor, clk clock.Clock) SessionService {
	return &sessionService{
		registry: registry,
		profiles: profiles,
		archive:  archive,
		portal:   p,
		clk:      clk,
	}
}

func (s *sessionService) Start(ctx context.Context, userID string, stage models.Stage, streakMode bool) (session.View, error) {
	const op = "SessionService.Start"

	if userID == "" {
		return session.View{}, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	if !stage.Valid() {
		return session.View{}, utils.E(utils.CodeInvalidArgument, op, "unknown stage", nil)
	}

	profile, err := s.profiles.GetOrDefault(ctx, userID)
	if err != nil {
		return session.View{}, utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}

	// "Today" is bounded in the user's timezone; the baseline summed inside
	// these bounds is fixed for the session's lifetime.
	loc := profile.Location()
	now := s.clk.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	return s.registry.ForUser(userID).Start(ctx, session.StartParams{
		Stage:            stage,
		StreakMode:       streakMode,
		DailyGoalMinutes: profile.DailyGoalMinutes,
		DayStart:         dayStart,
		DayEnd:           dayEnd,
	})
}

func (s *sessionService) Pause(ctx context.Context, userID string) (session.View, error) {
	return s.registry.ForUser(userID).Pause(ctx)
}

func (s *sessionService) Resume(ctx context.Context, userID string) (session.View, error) {
	return s.registry.ForUser(userID).Resume(ctx)
}

func (s *sessionService) ChangeStage(ctx context.Context, userID string, stage models.Stage) (session.View, error) {
	return s.registry.ForUser(userID).ChangeStage(ctx, stage)
}

func (s *sessionService) End(ctx context.Context, userID string) (session.Summary, error) {
	return s.registry.ForUser(userID).End(ctx)
}

func (s *sessionService) Get(ctx context.Context, userID string) (session.View, error) {
	const op = "SessionService.Get"

	e := s.registry.ForUser(userID)
	if view, ok := e.View(); ok {
		return view, nil
	}
	if err := e.Restore(ctx); err != nil {
		return session.View{}, err
	}
	if view, ok := e.View(); ok {
		return view, nil
	}
	return session.View{}, utils.E(utils.CodeNotFound, op, "no live session", nil)
}

func (s *sessionService) Heartbeat(ctx context.Context, userID string, hidden bool) (session.View, error) {
	const op = "SessionService.Heartbeat"

	e := s.registry.ForUser(userID)

	// Reset the elapsed reference so the next recomputation starts from a
	// fresh instant, then persist best-effort.
	e.Rebase()
	if err := e.SaveSnapshot(ctx); err != nil {
		// In-memory state is untouched; the autosave worker retries on its
		// next tick.
		return session.View{}, utils.E(utils.CodeUnavailable, op, "snapshot save failed", err)
	}

	s.portal.SetVisibility(userID, hidden)

	view, ok := e.View()
	if !ok {
		return session.View{}, utils.E(utils.CodeNotFound, op, "no live session", nil)
	}
	return view, nil
}

func (s *sessionService) History(ctx context.Context, userID string, limit int64) ([]models.SessionArchive, error) {
	const op = "SessionService.History"

	out, err := s.archive.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list session history", err)
	}
	return out, nil
}
