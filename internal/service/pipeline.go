package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kterao/paperbase/internal/chunking"
	"github.com/kterao/paperbase/internal/domain"
	"github.com/kterao/paperbase/internal/logger"
)

// ErrChunksExist is returned by TriggerChunkingOnly when a document already
// has chunks and force was not set.
var ErrChunksExist = errors.New("document already has chunks")

// Progress checkpoints reached as each step completes.
const (
	progressOCR       = 40
	progressMetadata  = 70
	progressEmbedding = 95
)

// Store and service slices the pipeline consumes. The gorm repositories and
// the concrete services satisfy them.
type documentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Update(ctx context.Context, doc *domain.Document) error
	GetMetadata(ctx context.Context, docID string) (*domain.Metadata, error)
	UpsertMetadata(ctx context.Context, meta *domain.Metadata) error
}

type jobStore interface {
	Create(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	Update(ctx context.Context, job *domain.ProcessingJob) error
}

type pageStore interface {
	Upsert(ctx context.Context, page *domain.PageText) error
	ListByDocument(ctx context.Context, docID string) ([]domain.PageText, error)
}

type chunkCounter interface {
	CountByDocument(ctx context.Context, docID string) (int64, error)
}

type textExtractor interface {
	Extract(ctx context.Context, filePath string) (*ExtractionResult, error)
}

type documentIndexer interface {
	IndexPages(ctx context.Context, doc *domain.Document, title string, pages []domain.PageText) error
	ReplaceDocumentChunks(ctx context.Context, doc *domain.Document, title string, chunks []chunking.Chunk) (int, error)
}

// PipelineService runs one document through the ordered steps
// ocr -> metadata -> embedding -> chunking. It is the only component that
// converts errors into persisted job and step state; the services below it
// return typed errors and never touch jobs.
type PipelineService struct {
	docRepo   documentStore
	jobRepo   jobStore
	pageRepo  pageStore
	chunkRepo chunkCounter
	extractor textExtractor
	metadata  *MetadataExtractor
	indexer   documentIndexer
	chunker   *chunking.Chunker
	log       *logger.Logger

	// jobLocks serializes executor runs and API-triggered step resets on
	// the same job.
	jobLocks sync.Map

	// pageCache hands OCR output to the embedding and chunking steps
	// without a detour through the database. Entries are purged when the
	// job finishes, on both success and failure paths.
	pageCache  map[string][]chunking.PageStructure
	pageCacheM sync.Mutex
}

// NewPipelineService creates a new PipelineService.
func NewPipelineService(
	docRepo documentStore,
	jobRepo jobStore,
	pageRepo pageStore,
	chunkRepo chunkCounter,
	extractor textExtractor,
	indexer documentIndexer,
	chunker *chunking.Chunker,
) *PipelineService {
	return &PipelineService{
		docRepo:   docRepo,
		jobRepo:   jobRepo,
		pageRepo:  pageRepo,
		chunkRepo: chunkRepo,
		extractor: extractor,
		metadata:  NewMetadataExtractor(),
		indexer:   indexer,
		chunker:   chunker,
		log:       logger.Default().WithField(logger.FieldComponent, "pipeline"),
		pageCache: make(map[string][]chunking.PageStructure),
	}
}

// lockJob returns the mutex guarding a job's state transitions.
func (s *PipelineService) lockJob(jobID string) *sync.Mutex {
	mu, _ := s.jobLocks.LoadOrStore(jobID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateJob registers a new processing job for a document.
func (s *PipelineService) CreateJob(ctx context.Context, doc *domain.Document) (string, error) {
	job := &domain.ProcessingJob{
		ID:         uuid.New().String(),
		DocumentID: &doc.ID,
		Filename:   doc.Filename,
		Status:     domain.JobStatusUploaded,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return job.ID, nil
}

// TriggerChunkingOnly creates a job whose earlier steps are pre-marked
// completed so the scheduler runs only chunking for an already-processed
// document. Without force, a document that already has chunks is refused.
func (s *PipelineService) TriggerChunkingOnly(ctx context.Context, docID string, force bool) (string, error) {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return "", fmt.Errorf("failed to load document: %w", err)
	}

	if !force {
		count, err := s.chunkRepo.CountByDocument(ctx, docID)
		if err != nil {
			return "", fmt.Errorf("failed to count chunks: %w", err)
		}
		if count > 0 {
			return "", ErrChunksExist
		}
	}

	step := string(domain.StepChunking)
	job := &domain.ProcessingJob{
		ID:              uuid.New().String(),
		DocumentID:      &doc.ID,
		Filename:        doc.Filename,
		Status:          domain.JobStatusUploaded,
		CurrentStep:     &step,
		OCRStatus:       domain.StepStatusCompleted,
		MetadataStatus:  domain.StepStatusCompleted,
		EmbeddingStatus: domain.StepStatusCompleted,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create chunking job: %w", err)
	}
	return job.ID, nil
}

// ResetStep moves a job step back to pending so the scheduler re-runs it.
// Resets take the same per-job lock as Execute, so a reset never interleaves
// with an in-flight run of the same job.
func (s *PipelineService) ResetStep(ctx context.Context, jobID string, step domain.StepName) error {
	mu := s.lockJob(jobID)
	mu.Lock()
	defer mu.Unlock()

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	job.ResetStep(step)
	job.Status = domain.JobStatusUploaded
	job.ErrorMessage = nil
	job.CompletedAt = nil
	return s.jobRepo.Update(ctx, job)
}

// Execute runs a job through the pipeline. A job without an associated
// document fails fast. OCR, metadata, and embedding failures are fatal to
// the job; chunking failures are recorded on the step and the job still
// completes.
func (s *PipelineService) Execute(ctx context.Context, jobID string) error {
	mu := s.lockJob(jobID)
	mu.Lock()
	defer mu.Unlock()

	defer s.purgeCache(jobID)

	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	log := s.log.WithField(logger.FieldJobID, jobID)

	if job.DocumentID == nil {
		job.MarkFailed("no document associated with job")
		if uerr := s.jobRepo.Update(ctx, job); uerr != nil {
			log.WithError(uerr).Error("failed to persist job failure")
		}
		return fmt.Errorf("job %s has no document", jobID)
	}

	doc, err := s.docRepo.GetByID(ctx, *job.DocumentID)
	if err != nil {
		job.MarkFailed("document not found: " + err.Error())
		if uerr := s.jobRepo.Update(ctx, job); uerr != nil {
			log.WithError(uerr).Error("failed to persist job failure")
		}
		return fmt.Errorf("failed to load document for job %s: %w", jobID, err)
	}

	log = log.WithField(logger.FieldDocID, doc.ID)
	log.Info("starting pipeline run")

	job.Status = domain.JobStatusProcessing
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	if !job.IsChunkingOnly() {
		fatalSteps := []struct {
			name domain.StepName
			run  func(context.Context, *domain.ProcessingJob, *domain.Document) error
		}{
			{domain.StepOCR, s.runOCR},
			{domain.StepMetadata, s.runMetadata},
			{domain.StepEmbedding, s.runEmbedding},
		}
		for _, step := range fatalSteps {
			if job.StepState(step.name) == domain.StepStatusCompleted {
				continue
			}
			if err := step.run(ctx, job, doc); err != nil {
				job.SetStepStatus(step.name, domain.StepStatusFailed, err.Error())
				job.MarkFailed(err.Error())
				if uerr := s.jobRepo.Update(ctx, job); uerr != nil {
					log.WithError(uerr).Error("failed to persist job failure")
				}
				log.WithError(err).WithField(logger.FieldStep, string(step.name)).Error("pipeline step failed")
				return err
			}
		}
	} else {
		log.Info("chunking-only job, skipping completed steps")
	}

	// Chunking is best-effort: a failure is captured on the step and the
	// job completes anyway.
	if err := s.runChunking(ctx, job, doc); err != nil {
		job.SetStepStatus(domain.StepChunking, domain.StepStatusFailed, err.Error())
		log.WithError(err).Warn("chunking failed, completing job without chunk embeddings")
	}

	job.MarkCompleted()
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	log.Info("pipeline run completed")
	return nil
}

func (s *PipelineService) runOCR(ctx context.Context, job *domain.ProcessingJob, doc *domain.Document) error {
	job.SetStepStatus(domain.StepOCR, domain.StepStatusRunning, "")
	job.UpdateProgress(domain.StepOCR, job.ProgressPercentage)
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	result, err := s.extractor.Extract(ctx, doc.FilePath)
	if err != nil && !errors.Is(err, ErrPartialExtraction) {
		return err
	}
	if errors.Is(err, ErrPartialExtraction) {
		s.log.WithField(logger.FieldDocID, doc.ID).WithError(err).Warn("partial extraction, continuing with available pages")
	}

	s.storeCache(job.ID, result.Pages)

	texts := make([]string, 0, len(result.Pages))
	for _, page := range result.Pages {
		text := pageFlatText(page)
		texts = append(texts, text)
		if err := s.pageRepo.Upsert(ctx, &domain.PageText{
			DocumentID: doc.ID,
			PageNumber: page.PageNumber,
			Text:       text,
		}); err != nil {
			return fmt.Errorf("failed to store page text: %w", err)
		}
	}

	full := cleanExtractedText(strings.Join(texts, "\n\n"))
	doc.OCRText = &full
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document text: %w", err)
	}

	job.SetStepStatus(domain.StepOCR, domain.StepStatusCompleted, "")
	job.UpdateProgress(domain.StepOCR, progressOCR)
	return s.jobRepo.Update(ctx, job)
}

func (s *PipelineService) runMetadata(ctx context.Context, job *domain.ProcessingJob, doc *domain.Document) error {
	job.SetStepStatus(domain.StepMetadata, domain.StepStatusRunning, "")
	job.UpdateProgress(domain.StepMetadata, job.ProgressPercentage)
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	existing, err := s.docRepo.GetMetadata(ctx, doc.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load metadata: %w", err)
	}

	// Caller-supplied metadata is authoritative; extraction never
	// overwrites it.
	if existing != nil && existing.Source == domain.MetadataSourceCaller {
		s.log.WithField(logger.FieldDocID, doc.ID).Info("caller-provided metadata present, skipping extraction")
		job.SetStepStatus(domain.StepMetadata, domain.StepStatusCompleted, "")
		job.UpdateProgress(domain.StepMetadata, progressMetadata)
		return s.jobRepo.Update(ctx, job)
	}

	if doc.OCRText == nil || *doc.OCRText == "" {
		s.log.WithField(logger.FieldDocID, doc.ID).Warn("no text available for metadata extraction")
		job.SetStepStatus(domain.StepMetadata, domain.StepStatusCompleted, "")
		job.UpdateProgress(domain.StepMetadata, progressMetadata)
		return s.jobRepo.Update(ctx, job)
	}

	extracted := s.metadata.Extract(*doc.OCRText)

	meta := &domain.Metadata{
		DocumentID: doc.ID,
		Source:     domain.MetadataSourceExtracted,
	}
	if existing != nil {
		meta = existing
	}
	mergeMetadata(meta, extracted)

	if err := s.docRepo.UpsertMetadata(ctx, meta); err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}

	job.SetStepStatus(domain.StepMetadata, domain.StepStatusCompleted, "")
	job.UpdateProgress(domain.StepMetadata, progressMetadata)
	return s.jobRepo.Update(ctx, job)
}

func (s *PipelineService) runEmbedding(ctx context.Context, job *domain.ProcessingJob, doc *domain.Document) error {
	job.SetStepStatus(domain.StepEmbedding, domain.StepStatusRunning, "")
	job.UpdateProgress(domain.StepEmbedding, job.ProgressPercentage)
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	pages, err := s.loadPages(ctx, job.ID, doc.ID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		s.log.WithField(logger.FieldDocID, doc.ID).Warn("no page texts available for embedding")
		job.SetStepStatus(domain.StepEmbedding, domain.StepStatusCompleted, "")
		job.UpdateProgress(domain.StepEmbedding, progressEmbedding)
		return s.jobRepo.Update(ctx, job)
	}

	rows := make([]domain.PageText, 0, len(pages))
	for _, page := range pages {
		rows = append(rows, domain.PageText{
			DocumentID: doc.ID,
			PageNumber: page.PageNumber,
			Text:       pageFlatText(page),
		})
	}

	if err := s.indexer.IndexPages(ctx, doc, s.documentTitle(ctx, doc), rows); err != nil {
		return err
	}

	job.SetStepStatus(domain.StepEmbedding, domain.StepStatusCompleted, "")
	job.UpdateProgress(domain.StepEmbedding, progressEmbedding)
	return s.jobRepo.Update(ctx, job)
}

func (s *PipelineService) runChunking(ctx context.Context, job *domain.ProcessingJob, doc *domain.Document) error {
	job.SetStepStatus(domain.StepChunking, domain.StepStatusRunning, "")
	step := string(domain.StepChunking)
	job.CurrentStep = &step
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return err
	}

	pages, err := s.loadPages(ctx, job.ID, doc.ID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return errors.New("no page content available for chunking")
	}

	chunks := s.chunker.Split(pages)
	count, err := s.indexer.ReplaceDocumentChunks(ctx, doc, s.documentTitle(ctx, doc), chunks)
	if err != nil {
		return err
	}

	stats := chunking.Summarize(chunks)
	s.log.WithFields(logger.Fields{
		logger.FieldJobID: job.ID,
		logger.FieldDocID: doc.ID,
		logger.FieldCount: count,
		"chunk_types":     stats.ChunkTypes,
		"avg_length":      stats.AvgChunkLength,
	}).Info("chunking completed")

	job.SetStepStatus(domain.StepChunking, domain.StepStatusCompleted, "")
	return s.jobRepo.Update(ctx, job)
}

// loadPages prefers the in-memory cache filled by the OCR step; for
// chunking-only jobs or resumed runs it falls back to persisted page texts,
// which only carry flat structure.
func (s *PipelineService) loadPages(ctx context.Context, jobID, docID string) ([]chunking.PageStructure, error) {
	if pages, ok := s.readCache(jobID); ok {
		return pages, nil
	}

	rows, err := s.pageRepo.ListByDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load page texts: %w", err)
	}

	pages := make([]chunking.PageStructure, 0, len(rows))
	for _, row := range rows {
		pages = append(pages, chunking.PageStructure{
			PageNumber: row.PageNumber,
			Structure:  chunking.StructureFlat,
			Text:       row.Text,
		})
	}
	return pages, nil
}

func (s *PipelineService) documentTitle(ctx context.Context, doc *domain.Document) string {
	meta, err := s.docRepo.GetMetadata(ctx, doc.ID)
	if err == nil && meta != nil && meta.Title != nil {
		return *meta.Title
	}
	return doc.Filename
}

func (s *PipelineService) storeCache(jobID string, pages []chunking.PageStructure) {
	s.pageCacheM.Lock()
	defer s.pageCacheM.Unlock()
	s.pageCache[jobID] = pages
}

func (s *PipelineService) readCache(jobID string) ([]chunking.PageStructure, bool) {
	s.pageCacheM.Lock()
	defer s.pageCacheM.Unlock()
	pages, ok := s.pageCache[jobID]
	return pages, ok
}

func (s *PipelineService) purgeCache(jobID string) {
	s.pageCacheM.Lock()
	defer s.pageCacheM.Unlock()
	delete(s.pageCache, jobID)
}

// mergeMetadata applies extracted fields without discarding values that an
// earlier extraction already found.
func mergeMetadata(meta *domain.Metadata, extracted *ExtractedMetadata) {
	if extracted.Title != nil {
		meta.Title = extracted.Title
	}
	if len(extracted.Authors) > 0 {
		meta.Authors = extracted.Authors
	}
	if extracted.Journal != nil {
		meta.Journal = extracted.Journal
	}
	if extracted.Year != nil {
		meta.Year = extracted.Year
	}
	if extracted.DOI != nil {
		meta.DOI = extracted.DOI
	}
	if extracted.Abstract != nil {
		meta.Abstract = extracted.Abstract
	}
	meta.Source = domain.MetadataSourceExtracted
}

// pageFlatText flattens a page structure to plain text for storage.
func pageFlatText(page chunking.PageStructure) string {
	if page.Structure == chunking.StructurePreserved && len(page.Blocks) > 0 {
		parts := make([]string, 0, len(page.Blocks))
		for _, block := range page.Blocks {
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return page.Text
}

var (
	multiBlankRe = regexp.MustCompile(`\n{3,}`)
	trailingWsRe = regexp.MustCompile(`[ \t]+\n`)
)

// cleanExtractedText normalizes extractor output before persisting it.
func cleanExtractedText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = trailingWsRe.ReplaceAllString(text, "\n")
	text = multiBlankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
