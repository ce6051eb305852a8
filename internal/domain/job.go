package domain

import "time"

// JobStatus represents the overall status of a processing job.
// Values include JobStatusUploaded, JobStatusProcessing, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusUploaded   JobStatus = "uploaded"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// StepStatus represents the status of one pipeline step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// StepName identifies a pipeline step.
type StepName string

const (
	StepOCR       StepName = "ocr"
	StepMetadata  StepName = "metadata"
	StepEmbedding StepName = "embedding"
	StepChunking  StepName = "chunking"
)

// Steps lists all pipeline steps in execution order.
var Steps = []StepName{StepOCR, StepMetadata, StepEmbedding, StepChunking}

// ValidStep reports whether name is a known pipeline step.
func ValidStep(name string) bool {
	switch StepName(name) {
	case StepOCR, StepMetadata, StepEmbedding, StepChunking:
		return true
	}
	return false
}

// ProcessingJob tracks one document through the ordered pipeline steps.
// DocumentID is nullable: a job may outlive its document's deletion.
type ProcessingJob struct {
	ID                 string    `gorm:"type:text;primaryKey" json:"job_id"`
	DocumentID         *string   `gorm:"type:text;index" json:"doc_id,omitempty"`
	Filename           string    `gorm:"type:text;not null" json:"filename"`
	Status             JobStatus `gorm:"type:text;index;default:uploaded" json:"status"`
	CurrentStep        *string   `json:"current_step,omitempty"`
	ProgressPercentage int       `gorm:"default:0" json:"progress_percentage"`
	ErrorMessage       *string   `json:"error_message,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	OCRStatus      StepStatus `gorm:"type:text;default:pending" json:"-"`
	OCRError       *string    `gorm:"column:ocr_error" json:"-"`
	OCRCompletedAt *time.Time `gorm:"column:ocr_completed_at" json:"-"`

	MetadataStatus      StepStatus `gorm:"type:text;default:pending" json:"-"`
	MetadataError       *string    `json:"-"`
	MetadataCompletedAt *time.Time `json:"-"`

	EmbeddingStatus      StepStatus `gorm:"type:text;default:pending" json:"-"`
	EmbeddingError       *string    `json:"-"`
	EmbeddingCompletedAt *time.Time `json:"-"`

	ChunkingStatus      StepStatus `gorm:"type:text;default:pending" json:"-"`
	ChunkingError       *string    `json:"-"`
	ChunkingCompletedAt *time.Time `json:"-"`
}

// TableName returns the database table name for ProcessingJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

// StepDetail is the externally visible state of one step.
type StepDetail struct {
	Status      StepStatus `json:"status"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// stepFields returns pointers to the status/error/timestamp triple for step.
func (j *ProcessingJob) stepFields(step StepName) (*StepStatus, **string, **time.Time) {
	switch step {
	case StepOCR:
		return &j.OCRStatus, &j.OCRError, &j.OCRCompletedAt
	case StepMetadata:
		return &j.MetadataStatus, &j.MetadataError, &j.MetadataCompletedAt
	case StepEmbedding:
		return &j.EmbeddingStatus, &j.EmbeddingError, &j.EmbeddingCompletedAt
	case StepChunking:
		return &j.ChunkingStatus, &j.ChunkingError, &j.ChunkingCompletedAt
	}
	return nil, nil, nil
}

// SetStepStatus updates the in-memory status triple for one step.
// A completed step gets a completion timestamp; errText is recorded only when non-empty.
// The caller is responsible for persisting the job afterwards.
func (j *ProcessingJob) SetStepStatus(step StepName, status StepStatus, errText string) {
	st, errField, completedAt := j.stepFields(step)
	if st == nil {
		return
	}
	*st = status
	if errText != "" {
		e := errText
		*errField = &e
	}
	if status == StepStatusCompleted {
		now := time.Now()
		*completedAt = &now
	}
}

// StepState returns the current status of one step.
func (j *ProcessingJob) StepState(step StepName) StepStatus {
	st, _, _ := j.stepFields(step)
	if st == nil {
		return ""
	}
	return *st
}

// ResetStep moves a step back to pending, clearing its error and timestamp.
// Resetting ocr cascades to metadata and embedding (their outputs derive from
// OCR text); resetting metadata cascades to embedding. Chunking is independent
// and never reset by cascade.
func (j *ProcessingJob) ResetStep(step StepName) {
	j.resetOne(step)
	switch step {
	case StepOCR:
		j.resetOne(StepMetadata)
		j.resetOne(StepEmbedding)
	case StepMetadata:
		j.resetOne(StepEmbedding)
	}
	j.ProgressPercentage = 0
}

func (j *ProcessingJob) resetOne(step StepName) {
	st, errField, completedAt := j.stepFields(step)
	if st == nil {
		return
	}
	*st = StepStatusPending
	*errField = nil
	*completedAt = nil
}

// UpdateProgress records the current step and progress percentage.
func (j *ProcessingJob) UpdateProgress(step StepName, percentage int) {
	s := string(step)
	j.CurrentStep = &s
	j.ProgressPercentage = percentage
}

// MarkCompleted transitions the job to completed with full progress.
func (j *ProcessingJob) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.ProgressPercentage = 100
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed, capturing the error message.
func (j *ProcessingJob) MarkFailed(errText string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = &errText
	now := time.Now()
	j.CompletedAt = &now
}

// IsChunkingOnly reports whether the earlier steps were pre-marked completed
// by the caller so that only the chunking step should run.
func (j *ProcessingJob) IsChunkingOnly() bool {
	return j.OCRStatus == StepStatusCompleted &&
		j.MetadataStatus == StepStatusCompleted &&
		j.EmbeddingStatus == StepStatusCompleted &&
		j.CurrentStep != nil && StepName(*j.CurrentStep) == StepChunking
}

// StepInfo returns the per-step detail map exposed through the API.
func (j *ProcessingJob) StepInfo() map[StepName]StepDetail {
	info := make(map[StepName]StepDetail, len(Steps))
	for _, step := range Steps {
		st, errField, completedAt := j.stepFields(step)
		info[step] = StepDetail{
			Status:      *st,
			Error:       *errField,
			CompletedAt: *completedAt,
		}
	}
	return info
}
