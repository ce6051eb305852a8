package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kterao/paperbase/internal/repository"
)

// JobHandler exposes processing job status.
type JobHandler struct {
	jobRepo *repository.JobRepository
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobRepo *repository.JobRepository) *JobHandler {
	return &JobHandler{jobRepo: jobRepo}
}

// Get handles GET /api/v1/jobs/:id. The response includes per-step detail.
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.jobRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       job.ID,
		"doc_id":       job.DocumentID,
		"filename":     job.Filename,
		"status":       job.Status,
		"current_step": job.CurrentStep,
		"progress":     job.ProgressPercentage,
		"error":        job.ErrorMessage,
		"steps":        job.StepInfo(),
		"created_at":   job.CreatedAt,
		"completed_at": job.CompletedAt,
	})
}

// List handles GET /api/v1/jobs, returning recent jobs newest first.
func (h *JobHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := h.jobRepo.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}
