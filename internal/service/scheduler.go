package service

import (
	"context"
	"time"

	"github.com/kterao/paperbase/internal/logger"
	"github.com/kterao/paperbase/internal/repository"
)

// SchedulerConfig controls the polling cadence of the background scheduler.
type SchedulerConfig struct {
	// PollInterval is the delay after an iteration that ran jobs.
	PollInterval time.Duration
	// IdleInterval is the delay after an iteration that found nothing.
	IdleInterval time.Duration
	// ErrorInterval is the backoff after a failed candidate query.
	ErrorInterval time.Duration
}

// DefaultSchedulerConfig returns the production polling cadence.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:  2 * time.Second,
		IdleInterval:  15 * time.Second,
		ErrorInterval: 10 * time.Second,
	}
}

// SchedulerService polls for runnable jobs and hands them to the pipeline
// one at a time. Jobs run serially in creation order; a failed job never
// stops the loop.
type SchedulerService struct {
	jobRepo  *repository.JobRepository
	pipeline *PipelineService
	cfg      SchedulerConfig
	log      *logger.Logger
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(jobRepo *repository.JobRepository, pipeline *PipelineService, cfg SchedulerConfig) *SchedulerService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultSchedulerConfig().PollInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultSchedulerConfig().IdleInterval
	}
	if cfg.ErrorInterval <= 0 {
		cfg.ErrorInterval = DefaultSchedulerConfig().ErrorInterval
	}
	return &SchedulerService{
		jobRepo:  jobRepo,
		pipeline: pipeline,
		cfg:      cfg,
		log:      logger.Default().WithField(logger.FieldComponent, "scheduler"),
	}
}

// Run polls until ctx is cancelled. Intended to be started in its own
// goroutine at process startup.
func (s *SchedulerService) Run(ctx context.Context) {
	s.log.Info("scheduler started")

	for {
		delay := s.runOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-time.After(delay):
		}
	}
}

// runOnce executes one polling iteration and returns the delay before the
// next one.
func (s *SchedulerService) runOnce(ctx context.Context) time.Duration {
	jobs, err := s.jobRepo.ListRunnable(ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list runnable jobs")
		return s.cfg.ErrorInterval
	}

	if len(jobs) == 0 {
		return s.cfg.IdleInterval
	}

	s.log.WithField(logger.FieldCount, len(jobs)).Info("found runnable jobs")

	for _, job := range jobs {
		if ctx.Err() != nil {
			return s.cfg.PollInterval
		}
		if err := s.pipeline.Execute(ctx, job.ID); err != nil {
			// Execute already persisted the failure on the job.
			s.log.WithError(err).WithField(logger.FieldJobID, job.ID).Error("job failed")
		}
	}

	return s.cfg.PollInterval
}
