package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/planloop/planloop/internal/services"
	"github.com/planloop/planloop/internal/utils"
)

type StreakHandler struct {
	svc services.StreakService
}

func NewStreakHandler(svc services.StreakService) *StreakHandler {
	return &StreakHandler{svc: svc}
}

func (h *StreakHandler) Status(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	status, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Validate runs the repair pass, typically once per app load.
func (h *StreakHandler) Validate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	report, err := h.svc.Validate(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type PurchaseFreezesRequest struct {
	Count int `json:"count" binding:"required"`
}

func (h *StreakHandler) PurchaseFreezes(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req PurchaseFreezesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "StreakHandler.PurchaseFreezes", "invalid request body", err))
		return
	}

	report, err := h.svc.PurchaseFreezes(c.Request.Context(), userID, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *StreakHandler) AcceptReset(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	report, err := h.svc.AcceptReset(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Inspect is the admin view of another user's raw streak state.
func (h *StreakHandler) Inspect(c *gin.Context) {
	targetID := c.Param("user_id")
	if targetID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "StreakHandler.Inspect", "missing user_id", nil))
		return
	}

	st, err := h.svc.Inspect(c.Request.Context(), targetID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
