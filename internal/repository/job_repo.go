package repository

import (
	"context"

	"github.com/kterao/paperbase/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles processing job data operations.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.ProcessingJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ProcessingJob: job record if found.
//   - error: non-nil if lookup fails.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Update persists all fields of a job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Update(ctx context.Context, job *domain.ProcessingJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// ListRunnable retrieves jobs in uploaded or processing state ordered by
// creation time. This is the scheduler's candidate set.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.ProcessingJob: runnable job records, oldest first.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListRunnable(ctx context.Context) ([]domain.ProcessingJob, error) {
	var jobs []domain.ProcessingJob
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{domain.JobStatusUploaded, domain.JobStatusProcessing}).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// LatestByDocument retrieves the most recent job targeting a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - *domain.ProcessingJob: latest job if any exists.
//   - error: gorm.ErrRecordNotFound if the document has no jobs.
func (r *JobRepository) LatestByDocument(ctx context.Context, docID string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("created_at DESC").
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecent retrieves the most recent jobs for the admin progress view.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.ProcessingJob: job records, newest first.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.ProcessingJob, error) {
	var jobs []domain.ProcessingJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountByStatus counts jobs by status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: job status to count.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ProcessingJob{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
