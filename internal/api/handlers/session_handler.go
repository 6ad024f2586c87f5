package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/services"
	"github.com/planloop/planloop/internal/utils"
)

type SessionHandler struct {
	svc services.SessionService
}

func NewSessionHandler(svc services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type StartSessionRequest struct {
	Stage      models.Stage `json:"stage" binding:"required"` // idea|script|review|record|edit
	StreakMode bool         `json:"streak_mode"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Start", "invalid request body", err))
		return
	}

	view, err := h.svc.Start(c.Request.Context(), userID, req.Stage, req.StreakMode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) Pause(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	view, err := h.svc.Pause(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) Resume(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	view, err := h.svc.Resume(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type ChangeStageRequest struct {
	Stage models.Stage `json:"stage" binding:"required"`
}

func (h *SessionHandler) ChangeStage(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req ChangeStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.ChangeStage", "invalid request body", err))
		return
	}

	view, err := h.svc.ChangeStage(c.Request.Context(), userID, req.Stage)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	summary, err := h.svc.End(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	view, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type HeartbeatRequest struct {
	Visibility string `json:"visibility" binding:"required"` // visible|hidden
}

// Heartbeat is also the beforeunload hook: a best-effort save, never a
// blocking transaction.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Heartbeat", "invalid request body", err))
		return
	}
	if req.Visibility != "visible" && req.Visibility != "hidden" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Heartbeat", "visibility must be visible or hidden", nil))
		return
	}

	view, err := h.svc.Heartbeat(c.Request.Context(), userID, req.Visibility == "hidden")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *SessionHandler) History(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	out, err := h.svc.History(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}
