package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/kterao/paperbase/internal/chunking"
	"github.com/kterao/paperbase/internal/domain"
)

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func TestMergeMetadata(t *testing.T) {
	meta := &domain.Metadata{
		DocumentID: "doc-1",
		Title:      strPtr("Old Title"),
		Authors:    []string{"Old Author"},
		Year:       intPtr(2010),
		Source:     domain.MetadataSourceExtracted,
	}

	mergeMetadata(meta, &ExtractedMetadata{
		Title: strPtr("New Title"),
		DOI:   strPtr("10.1000/new"),
	})

	if meta.Title == nil || *meta.Title != "New Title" {
		t.Errorf("Title = %v, want New Title", meta.Title)
	}
	if meta.DOI == nil || *meta.DOI != "10.1000/new" {
		t.Errorf("DOI = %v", meta.DOI)
	}
	// Fields absent from the new extraction keep their previous values.
	if !reflect.DeepEqual(meta.Authors, domain.StringArray{"Old Author"}) {
		t.Errorf("Authors = %v, want Old Author kept", meta.Authors)
	}
	if meta.Year == nil || *meta.Year != 2010 {
		t.Errorf("Year = %v, want 2010 kept", meta.Year)
	}
	if meta.Source != domain.MetadataSourceExtracted {
		t.Errorf("Source = %q", meta.Source)
	}
}

func TestPageFlatText(t *testing.T) {
	preserved := chunking.PageStructure{
		PageNumber: 1,
		Structure:  chunking.StructurePreserved,
		Blocks: []chunking.Block{
			{Text: "First block."},
			{Text: ""},
			{Text: "Second block."},
		},
	}
	if got := pageFlatText(preserved); got != "First block.\n\nSecond block." {
		t.Errorf("pageFlatText(preserved) = %q", got)
	}

	flat := chunking.PageStructure{
		PageNumber: 2,
		Structure:  chunking.StructureFlat,
		Text:       "plain page text",
	}
	if got := pageFlatText(flat); got != "plain page text" {
		t.Errorf("pageFlatText(flat) = %q", got)
	}

	// Preserved structure without blocks falls back to the flat text.
	empty := chunking.PageStructure{
		Structure: chunking.StructurePreserved,
		Text:      "fallback",
	}
	if got := pageFlatText(empty); got != "fallback" {
		t.Errorf("pageFlatText(no blocks) = %q", got)
	}
}

func TestCleanExtractedText(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "normalizes CRLF",
			in:   "line one\r\nline two",
			want: "line one\nline two",
		},
		{
			name: "strips trailing whitespace",
			in:   "line one  \nline two\t\n",
			want: "line one\nline two",
		},
		{
			name: "collapses runs of blank lines",
			in:   "para one\n\n\n\n\npara two",
			want: "para one\n\npara two",
		},
		{
			name: "trims surrounding whitespace",
			in:   "\n\n  body  \n\n",
			want: "body",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cleanExtractedText(tc.in); got != tc.want {
				t.Errorf("cleanExtractedText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLockJobReturnsSameMutex(t *testing.T) {
	s := &PipelineService{}
	if s.lockJob("job-1") != s.lockJob("job-1") {
		t.Error("same job must map to the same mutex")
	}
	if s.lockJob("job-1") == s.lockJob("job-2") {
		t.Error("different jobs must not share a mutex")
	}
}

func TestPageCacheLifecycle(t *testing.T) {
	s := &PipelineService{pageCache: make(map[string][]chunking.PageStructure)}

	if _, ok := s.readCache("job-1"); ok {
		t.Fatal("cache should start empty")
	}

	pages := []chunking.PageStructure{{PageNumber: 1, Structure: chunking.StructureFlat, Text: "p1"}}
	s.storeCache("job-1", pages)

	got, ok := s.readCache("job-1")
	if !ok || !reflect.DeepEqual(got, pages) {
		t.Fatalf("readCache = %v, %v", got, ok)
	}

	s.purgeCache("job-1")
	if _, ok := s.readCache("job-1"); ok {
		t.Error("purge should remove the entry")
	}
}

// In-memory stand-ins for the pipeline's stores and downstream services.

type memJobStore struct {
	jobs map[string]*domain.ProcessingJob
}

func (m *memJobStore) Create(_ context.Context, job *domain.ProcessingJob) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobStore) GetByID(_ context.Context, id string) (*domain.ProcessingJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return job, nil
}

func (m *memJobStore) Update(_ context.Context, job *domain.ProcessingJob) error {
	m.jobs[job.ID] = job
	return nil
}

type stubDocStore struct {
	doc *domain.Document
}

func (s *stubDocStore) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if s.doc != nil && s.doc.ID == id {
		return s.doc, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDocStore) Update(_ context.Context, doc *domain.Document) error {
	s.doc = doc
	return nil
}

func (s *stubDocStore) GetMetadata(_ context.Context, _ string) (*domain.Metadata, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDocStore) UpsertMetadata(_ context.Context, _ *domain.Metadata) error {
	return nil
}

type stubPageStore struct {
	pages []domain.PageText
}

func (s *stubPageStore) Upsert(_ context.Context, page *domain.PageText) error {
	s.pages = append(s.pages, *page)
	return nil
}

func (s *stubPageStore) ListByDocument(_ context.Context, _ string) ([]domain.PageText, error) {
	return s.pages, nil
}

type stubChunkCounter struct {
	count int64
}

func (s *stubChunkCounter) CountByDocument(_ context.Context, _ string) (int64, error) {
	return s.count, nil
}

type countingExtractor struct {
	calls int
}

func (e *countingExtractor) Extract(_ context.Context, _ string) (*ExtractionResult, error) {
	e.calls++
	return nil, errors.New("extractor must not run")
}

type recordingIndexer struct {
	pageCalls    int
	replaceCalls int
}

func (r *recordingIndexer) IndexPages(_ context.Context, _ *domain.Document, _ string, _ []domain.PageText) error {
	r.pageCalls++
	return nil
}

func (r *recordingIndexer) ReplaceDocumentChunks(_ context.Context, _ *domain.Document, _ string, chunks []chunking.Chunk) (int, error) {
	r.replaceCalls++
	return len(chunks), nil
}

func TestExecuteChunkingOnlySkipsEarlierSteps(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", Filename: "paper.pdf", FilePath: "/tmp/paper.pdf"}
	step := string(domain.StepChunking)
	job := &domain.ProcessingJob{
		ID:              "job-1",
		DocumentID:      &doc.ID,
		Filename:        doc.Filename,
		Status:          domain.JobStatusUploaded,
		CurrentStep:     &step,
		OCRStatus:       domain.StepStatusCompleted,
		MetadataStatus:  domain.StepStatusCompleted,
		EmbeddingStatus: domain.StepStatusCompleted,
	}

	pageText := strings.Repeat("The measured diffusion coefficients increased steadily with temperature across the sampled range. ", 4)
	jobs := &memJobStore{jobs: map[string]*domain.ProcessingJob{job.ID: job}}
	pages := &stubPageStore{pages: []domain.PageText{{DocumentID: doc.ID, PageNumber: 1, Text: pageText}}}
	extractor := &countingExtractor{}
	indexer := &recordingIndexer{}

	chunker, err := chunking.New(chunking.DefaultConfig())
	if err != nil {
		t.Fatalf("chunking.New: %v", err)
	}

	s := NewPipelineService(&stubDocStore{doc: doc}, jobs, pages, &stubChunkCounter{}, extractor, indexer, chunker)
	if err := s.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if extractor.calls != 0 {
		t.Error("text extraction ran for a chunking-only job")
	}
	if indexer.pageCalls != 0 {
		t.Error("page embedding ran for a chunking-only job")
	}
	if indexer.replaceCalls != 1 {
		t.Errorf("chunk re-index ran %d times, want 1", indexer.replaceCalls)
	}

	final := jobs.jobs[job.ID]
	if final.Status != domain.JobStatusCompleted {
		t.Errorf("job status = %q, want completed", final.Status)
	}
	if final.StepState(domain.StepChunking) != domain.StepStatusCompleted {
		t.Errorf("chunking step = %q, want completed", final.StepState(domain.StepChunking))
	}
}

func TestExecuteFatalStepFailureMarksJobFailed(t *testing.T) {
	doc := &domain.Document{ID: "doc-1", Filename: "paper.pdf", FilePath: "/tmp/paper.pdf"}
	job := &domain.ProcessingJob{
		ID:         "job-1",
		DocumentID: &doc.ID,
		Filename:   doc.Filename,
		Status:     domain.JobStatusUploaded,
	}

	jobs := &memJobStore{jobs: map[string]*domain.ProcessingJob{job.ID: job}}
	extractor := &countingExtractor{}
	indexer := &recordingIndexer{}

	chunker, err := chunking.New(chunking.DefaultConfig())
	if err != nil {
		t.Fatalf("chunking.New: %v", err)
	}

	s := NewPipelineService(&stubDocStore{doc: doc}, jobs, &stubPageStore{}, &stubChunkCounter{}, extractor, indexer, chunker)
	if err := s.Execute(context.Background(), job.ID); err == nil {
		t.Fatal("expected Execute to fail when extraction fails")
	}

	final := jobs.jobs[job.ID]
	if final.Status != domain.JobStatusFailed {
		t.Errorf("job status = %q, want failed", final.Status)
	}
	if final.StepState(domain.StepOCR) != domain.StepStatusFailed {
		t.Errorf("ocr step = %q, want failed", final.StepState(domain.StepOCR))
	}
	if indexer.replaceCalls != 0 || indexer.pageCalls != 0 {
		t.Error("indexing ran after a fatal step failure")
	}
}
