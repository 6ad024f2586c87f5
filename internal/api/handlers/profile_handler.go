package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/planloop/planloop/internal/models"
	"github.com/planloop/planloop/internal/services"
	"github.com/planloop/planloop/internal/utils"
	"gorm.io/datatypes"
)

type ProfileHandler struct {
	svc services.ProfileService
}

func NewProfileHandler(svc services.ProfileService) *ProfileHandler {
	return &ProfileHandler{svc: svc}
}

func (h *ProfileHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.svc.GetMe(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type UpdateProfileRequest struct {
	DisplayName      string         `json:"display_name"`
	Timezone         string         `json:"timezone"`
	MinStreakMinutes int            `json:"min_streak_minutes"`
	DailyGoalMinutes int            `json:"daily_goal_minutes"`
	Preferences      datatypes.JSON `json:"preferences"`
}

func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ProfileHandler.Update", "invalid request body", err))
		return
	}

	p := &models.Profile{
		UserID:           userID,
		DisplayName:      req.DisplayName,
		Timezone:         req.Timezone,
		MinStreakMinutes: req.MinStreakMinutes,
		DailyGoalMinutes: req.DailyGoalMinutes,
		Preferences:      req.Preferences,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := h.svc.Update(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}
