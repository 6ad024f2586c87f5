package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/planloop/planloop/internal/api/handlers"
	"github.com/planloop/planloop/internal/api/middleware"
)

type Deps struct {
	Session    *handlers.SessionHandler
	Streak     *handlers.StreakHandler
	Profile    *handlers.ProfileHandler
	Navigation *handlers.NavigationHandler
	WS         *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/session/start", d.Session.Start)
	auth.POST("/session/pause", d.Session.Pause)
	auth.POST("/session/resume", d.Session.Resume)
	auth.POST("/session/stage", d.Session.ChangeStage)
	auth.POST("/session/end", d.Session.End)
	auth.GET("/session", d.Session.Get)
	auth.POST("/session/heartbeat", d.Session.Heartbeat)
	auth.GET("/sessions/history", d.Session.History)

	auth.POST("/navigation/attempt", d.Navigation.Attempt)
	auth.POST("/navigation/proceed", d.Navigation.Proceed)
	auth.POST("/navigation/reset", d.Navigation.Reset)

	auth.GET("/streak", d.Streak.Status)
	auth.POST("/streak/validate", d.Streak.Validate)
	auth.POST("/streak/freeze/purchase", d.Streak.PurchaseFreezes)
	auth.POST("/streak/reset", d.Streak.AcceptReset)

	auth.GET("/profile/me", d.Profile.Me)
	auth.PUT("/profile/update", d.Profile.Update)

	// WebSocket mirror
	auth.GET("/ws/session", d.WS.SessionWS)

	// Admin
	admin := auth.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/streak/:user_id", d.Streak.Inspect)
}
