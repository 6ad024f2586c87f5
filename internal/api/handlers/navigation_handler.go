package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planloop/planloop/internal/guard"
	"github.com/planloop/planloop/internal/utils"
)

// NavigationHandler fronts the navigation guard: route changes that would
// abandon a live session report here first and get told whether to proceed.
type NavigationHandler struct {
	guards *guard.Registry
}

func NewNavigationHandler(guards *guard.Registry) *NavigationHandler {
	return &NavigationHandler{guards: guards}
}

type AttemptRequest struct {
	Route string `json:"route" binding:"required"`
}

type AttemptResponse struct {
	Allowed bool        `json:"allowed"`
	State   guard.State `json:"state"`
}

func (h *NavigationHandler) Attempt(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req AttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "NavigationHandler.Attempt", "invalid request body", err))
		return
	}

	g := h.guards.ForUser(userID)
	allowed := g.Attempt(req.Route, time.Now().UTC())
	c.JSON(http.StatusOK, AttemptResponse{Allowed: allowed, State: g.State()})
}

type ProceedResponse struct {
	Route string `json:"route"`
}

func (h *NavigationHandler) Proceed(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	intent, ok := h.guards.ForUser(userID).Proceed()
	if !ok {
		writeError(c, utils.E(utils.CodeConflict, "NavigationHandler.Proceed", "no navigation pending", nil))
		return
	}
	c.JSON(http.StatusOK, ProceedResponse{Route: intent.Route})
}

func (h *NavigationHandler) Reset(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	h.guards.ForUser(userID).Reset()
	c.JSON(http.StatusOK, gin.H{"state": guard.StateIdle})
}
