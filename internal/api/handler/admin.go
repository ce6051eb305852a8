package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kterao/paperbase/internal/domain"
	"github.com/kterao/paperbase/internal/repository"
	"github.com/kterao/paperbase/internal/service"
)

// AdminHandler exposes the processing dashboard and step-level controls.
type AdminHandler struct {
	jobRepo  *repository.JobRepository
	pipeline *service.PipelineService
	auth     *service.AuthService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(jobRepo *repository.JobRepository, pipeline *service.PipelineService, auth *service.AuthService) *AdminHandler {
	return &AdminHandler{
		jobRepo:  jobRepo,
		pipeline: pipeline,
		auth:     auth,
	}
}

// loginRequest is the credential payload for token issuance.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/v1/auth/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Progress handles GET /api/v1/admin/progress: job counts by status plus the
// most recent jobs.
func (h *AdminHandler) Progress(c *gin.Context) {
	ctx := c.Request.Context()

	counts := make(map[string]int64, 4)
	for _, status := range []domain.JobStatus{
		domain.JobStatusUploaded,
		domain.JobStatusProcessing,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
	} {
		count, err := h.jobRepo.CountByStatus(ctx, status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		counts[string(status)] = count
	}

	recent, err := h.jobRepo.ListRecent(ctx, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"counts": counts,
		"recent": recent,
	})
}

// resetStepRequest names the step to reset.
type resetStepRequest struct {
	Step string `json:"step" binding:"required"`
}

// ResetStep handles POST /api/v1/admin/jobs/:id/reset. Resetting ocr
// cascades to metadata and embedding; chunking resets independently.
func (h *AdminHandler) ResetStep(c *gin.Context) {
	var req resetStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if !domain.ValidStep(req.Step) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown step: " + req.Step,
		})
		return
	}

	if err := h.pipeline.ResetStep(c.Request.Context(), c.Param("id"), domain.StepName(req.Step)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": c.Param("id"),
		"step":   req.Step,
		"status": "pending",
	})
}
