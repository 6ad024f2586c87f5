package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/planloop/planloop/config"
	"github.com/planloop/planloop/internal/api/handlers"
	"github.com/planloop/planloop/internal/api/middleware"
	"github.com/planloop/planloop/internal/api/routes"
	"github.com/planloop/planloop/internal/cache"
	"github.com/planloop/planloop/internal/clock"
	"github.com/planloop/planloop/internal/events"
	"github.com/planloop/planloop/internal/guard"
	"github.com/planloop/planloop/internal/logger"
	"github.com/planloop/planloop/internal/portal"
	mongorepo "github.com/planloop/planloop/internal/repositories/mongo"
	pgrepo "github.com/planloop/planloop/internal/repositories/postgres"
	"github.com/planloop/planloop/internal/scheduler"
	"github.com/planloop/planloop/internal/services"
	"github.com/planloop/planloop/internal/session"
	"github.com/planloop/planloop/internal/streak"
	"github.com/planloop/planloop/internal/workers"
)

func main() {
	_ = godotenv.Load()

	l := logger.New()

	if err := config.InitPostgres(); err != nil {
		log.Fatalf("PostgreSQL init error: %v", err)
	}
	if err := config.MigratePostgres(); err != nil {
		log.Fatalf("PostgreSQL migrate error: %v", err)
	}
	l.Info("PostgreSQL connected")

	if err := config.InitRedis(); err != nil {
		log.Fatalf("Redis init error: %v", err)
	}
	l.Info("Redis connected")

	if err := config.InitMongo(); err != nil {
		log.Fatalf("MongoDB init error: %v", err)
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.Fatalf("MongoDB index error: %v", err)
	}
	l.Info("MongoDB connected")

	mongoName := os.Getenv("MONGO_DB")
	if mongoName == "" {
		mongoName = "planloop"
	}

	settings := config.LoadEngineSettings()
	clk := clock.System()
	bus := events.NewBus()

	// Fan the event stream out to WebSocket mirrors in any process.
	events.NewRedisBridge(config.RedisClient, l).Attach(bus)

	// Repositories
	stageLogs := pgrepo.NewStageLogRepo(config.PostgresDB)
	profiles := pgrepo.NewProfileRepo(config.PostgresDB)
	streaks := pgrepo.NewStreakRepo(config.PostgresDB)
	archive := mongorepo.NewArchiveRepo(config.MongoClient.Database(mongoName))

	// Core engine wiring
	redisCache := cache.NewRedisCache(config.RedisClient)
	validator := streak.NewValidator(clk, profiles, streaks, streaks, stageLogs, redisCache, bus, l)
	snapshots := session.NewCacheSnapshotStore(redisCache, settings.SnapshotTTL)
	registry := session.NewRegistry(session.EngineDeps{
		Clock:     clk,
		Ledger:    stageLogs,
		Snapshots: snapshots,
		Archive:   archive,
		Streaks:   validator,
		Bus:       bus,
		Log:       l,
		Config: session.Config{
			PomodoroSeconds: settings.PomodoroSeconds,
			SnapshotTTL:     settings.SnapshotTTL,
		},
	})

	sched := scheduler.New()
	defer sched.CancelAll()

	supervisor := portal.NewSupervisor(clk, sched, bus,
		func(userID string) (bool, bool) { return registry.ForUser(userID).Flags() },
		func(userID string) bool {
			p, err := profiles.GetOrDefault(context.Background(), userID)
			if err != nil {
				return true
			}
			return p.AutoPopup()
		},
		l, settings.PortalOpenDelay)

	guards := guard.NewRegistry(func(userID string) bool {
		active, _ := registry.ForUser(userID).Flags()
		return active
	})

	// Services
	sessionSvc := services.NewSessionService(registry, profiles, archive, supervisor, clk)
	streakSvc := services.NewStreakService(validator, streaks, profiles)
	profileSvc := services.NewProfileService(profiles)

	// Background snapshot autosave
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	(&workers.SnapshotWorker{
		Registry: registry,
		Bus:      bus,
		Logger:   l,
		Interval: settings.AutosaveInterval,
	}).Start(ctx)

	// HTTP surface
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(l))

	routes.RegisterRoutes(r, routes.Deps{
		Session:    handlers.NewSessionHandler(sessionSvc),
		Streak:     handlers.NewStreakHandler(streakSvc),
		Profile:    handlers.NewProfileHandler(profileSvc),
		Navigation: handlers.NewNavigationHandler(guards),
		WS:         handlers.NewWSHandler(sessionSvc, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
