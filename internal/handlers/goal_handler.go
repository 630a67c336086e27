package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"impact-service/internal/goals"
	"impact-service/internal/models"
)

// GoalHandler exposes goal lifecycle, evaluation and dashboard endpoints.
type GoalHandler struct {
	svc *goals.Service
}

// NewGoalHandler wires the handler to the goal service.
func NewGoalHandler(svc *goals.Service) *GoalHandler {
	return &GoalHandler{svc: svc}
}

// CreateGoal godoc
// @Summary Declare a new impact goal
// @Description Exactly one goal may exist per (bond, metric type) pair.
// @Tags goals
// @Accept  json
// @Produce  json
// @Param   goal  body   models.CreateGoalRequest   true  "Goal to declare"
// @Success 201 {object} models.ImpactGoal "Successfully created goal"
// @Failure 400 {object} models.APIError "Bad Request (e.g., target date not in the future)"
// @Failure 409 {object} models.APIError "Conflict (a goal for this bond and metric type already exists)"
// @Router /goals [post]
func (h *GoalHandler) CreateGoal(c *gin.Context) {
	var req models.CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidJSON, "Invalid request payload", gin.H{"reason": err.Error()})
		return
	}

	goal, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusCreated, goal)
}

// GetGoal godoc
// @Summary Get a goal by ID
// @Tags goals
// @Produce  json
// @Param   id     path   string     true  "Goal ID (UUID)"
// @Success 200 {object} models.ImpactGoal
// @Failure 404 {object} models.APIError "Goal not found"
// @Router /goals/{id} [get]
func (h *GoalHandler) GetGoal(c *gin.Context) {
	goalID, ok := parseGoalID(c)
	if !ok {
		return
	}

	goal, err := h.svc.Get(c.Request.Context(), goalID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, goal)
}

// DeleteGoal godoc
// @Summary Delete a goal
// @Tags goals
// @Param   id     path   string     true  "Goal ID (UUID)"
// @Success 204 "Successfully deleted goal"
// @Failure 404 {object} models.APIError "Goal not found"
// @Router /goals/{id} [delete]
func (h *GoalHandler) DeleteGoal(c *gin.Context) {
	goalID, ok := parseGoalID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), goalID); err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusNoContent, nil)
}

// ListGoals godoc
// @Summary List goals declared for a bond
// @Tags goals
// @Produce  json
// @Param   bond_id  path   string  true  "Bond ID"
// @Success 200 {array} models.ImpactGoal
// @Router /bonds/{bond_id}/goals [get]
func (h *GoalHandler) ListGoals(c *gin.Context) {
	list, err := h.svc.ListByBond(c.Request.Context(), c.Param("bond_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, list)
}

// EvaluateGoal godoc
// @Summary Recompute one goal's progress synchronously
// @Description Runs the same evaluation as the scheduled batch for a single goal and returns the updated record.
// @Tags goals
// @Produce  json
// @Param   id     path   string     true  "Goal ID (UUID)"
// @Success 200 {object} models.ImpactGoal
// @Failure 404 {object} models.APIError "Goal not found"
// @Failure 503 {object} models.APIError "Storage unavailable (retryable)"
// @Router /goals/{id}/evaluate [post]
func (h *GoalHandler) EvaluateGoal(c *gin.Context) {
	goalID, ok := parseGoalID(c)
	if !ok {
		return
	}

	goal, _, err := h.svc.Evaluate(c.Request.Context(), goalID)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, goal)
}

// EvaluateAllGoals godoc
// @Summary Trigger the bulk goal evaluation batch
// @Description Manual twin of the daily scheduled run; useful for backfills.
// @Tags goals
// @Produce  json
// @Success 200 {object} models.EvaluationSummary
// @Router /goals/evaluate-all [post]
func (h *GoalHandler) EvaluateAllGoals(c *gin.Context) {
	summary := h.svc.EvaluateAll(c.Request.Context(), uuid.NewString())
	RespondWithSuccess(c, http.StatusOK, summary)
}

// GoalDashboard godoc
// @Summary Goal health dashboard for a bond
// @Description Counts of goals by status, mean progress, and goals due within 30 days that are not yet met.
// @Tags goals
// @Produce  json
// @Param   bond_id  path   string  true  "Bond ID"
// @Success 200 {object} models.GoalDashboard
// @Router /bonds/{bond_id}/goals/dashboard [get]
func (h *GoalHandler) GoalDashboard(c *gin.Context) {
	dash, err := h.svc.Dashboard(c.Request.Context(), c.Param("bond_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	RespondWithSuccess(c, http.StatusOK, dash)
}

func parseGoalID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	goalID, err := uuid.Parse(idStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid ID format for goal ID", gin.H{"id": idStr})
		return uuid.Nil, false
	}
	return goalID, true
}
