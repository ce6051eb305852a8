package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kterao/paperbase/internal/chunking"
	"github.com/kterao/paperbase/internal/domain"
	"github.com/kterao/paperbase/internal/logger"
	"github.com/kterao/paperbase/internal/repository"
)

const (
	// minEmbeddablePageLength is the minimum trimmed page length worth a
	// page-level embedding.
	minEmbeddablePageLength = 50

	// payloadSnippetLength bounds the text stored in vector payloads.
	payloadSnippetLength = 500
)

// vectorStore is the slice of the vector database the indexer writes through.
// *repository.QdrantRepository satisfies it.
type vectorStore interface {
	UpsertBatch(ctx context.Context, points []repository.VectorPoint) error
	RetrieveExisting(ctx context.Context, ids []string) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	DeleteByDocument(ctx context.Context, docID string, documentLevel *bool) error
}

// chunkStore is the relational mirror of the vector points.
// *repository.ChunkRepository satisfies it.
type chunkStore interface {
	Create(ctx context.Context, chunk *domain.SemanticChunk) error
	ListPointIDs(ctx context.Context, docID string) ([]string, error)
	DeleteByDocument(ctx context.Context, docID string) error
	DeleteByPointIDs(ctx context.Context, ids []string) error
}

// batchEmbedder produces one vector per input text, all or nothing.
// *EmbeddingService satisfies it.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
}

// IndexerService keeps the relational store and the vector store consistent.
// Every write follows the same protocol: embed the whole batch, write
// vectors, then write rows; any failure after the vector write triggers a
// best-effort cleanup of both stores so no orphaned vectors survive.
type IndexerService struct {
	chunkRepo chunkStore
	qdrant    vectorStore
	embedding batchEmbedder
	log       *logger.Logger
}

// NewIndexerService creates a new IndexerService.
func NewIndexerService(chunkRepo chunkStore, qdrant vectorStore, embedding batchEmbedder) *IndexerService {
	return &IndexerService{
		chunkRepo: chunkRepo,
		qdrant:    qdrant,
		embedding: embedding,
		log:       logger.Default().WithField(logger.FieldComponent, "indexer"),
	}
}

// generateDeterministicPointID derives a stable UUID from a composite key.
// The same key always maps to the same point, so re-indexing overwrites
// instead of duplicating.
func generateDeterministicPointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("paperbase/"+key)).String()
}

// ChunkPointID returns the vector point ID for a chunk position.
func ChunkPointID(docID string, pageNumber, chunkIndex int) string {
	return generateDeterministicPointID(fmt.Sprintf("%s/chunk/%d/%d", docID, pageNumber, chunkIndex))
}

// PagePointID returns the vector point ID for a page-level embedding.
func PagePointID(docID string, pageNumber int) string {
	return generateDeterministicPointID(fmt.Sprintf("%s/page/%d", docID, pageNumber))
}

// DocumentPointID returns the vector point ID for the document-level embedding.
func DocumentPointID(docID string) string {
	return generateDeterministicPointID(docID + "/document")
}

// IndexChunks embeds a batch of chunks and writes them to both stores.
// The embedding call is all-or-nothing: a count mismatch or transport error
// aborts before anything is written. Vector upsert is a single batch call.
// Relational rows are written one by one; an individual row failure is
// logged and skipped without disturbing the other rows.
// Returns the number of rows persisted.
func (s *IndexerService) IndexChunks(ctx context.Context, doc *domain.Document, title string, chunks []chunking.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	points := make([]repository.VectorPoint, len(chunks))
	pointIDs := make([]string, len(chunks))
	for i, c := range chunks {
		id := ChunkPointID(doc.ID, c.PageNumber, c.IndexOnPage)
		pointIDs[i] = id
		points[i] = repository.VectorPoint{
			ID:     id,
			Vector: vectors[i],
			Payload: repository.ChunkPayload{
				DocumentID:      doc.ID,
				PageNumber:      c.PageNumber,
				ChunkIndex:      c.IndexOnPage,
				ChunkType:       string(c.Type),
				Text:            snippet(c.Text),
				Title:           title,
				IsDocumentLevel: false,
			},
		}
	}

	if err := s.qdrant.UpsertBatch(ctx, points); err != nil {
		s.cleanup(ctx, doc.ID, pointIDs)
		return 0, fmt.Errorf("failed to upsert chunk vectors: %w", err)
	}

	inserted := 0
	for i, c := range chunks {
		start, end := c.StartChar, c.EndChar
		row := &domain.SemanticChunk{
			DocumentID:     doc.ID,
			PageNumber:     c.PageNumber,
			ChunkIndex:     c.IndexOnPage,
			Text:           c.Text,
			ChunkType:      c.Type,
			StartChar:      &start,
			EndChar:        &end,
			BBox:           domain.BBox(c.BBox),
			PointID:        pointIDs[i],
			EmbeddingModel: s.embedding.GetModel(),
		}
		if err := s.chunkRepo.Create(ctx, row); err != nil {
			s.log.WithError(err).WithFields(logger.Fields{
				logger.FieldDocID: doc.ID,
				"page":            c.PageNumber,
				"chunk_index":     c.IndexOnPage,
			}).Warn("failed to persist chunk row, skipping")
			continue
		}
		inserted++
	}

	s.log.WithFields(logger.Fields{
		logger.FieldDocID: doc.ID,
		logger.FieldCount: inserted,
	}).Info("indexed chunks")

	return inserted, nil
}

// ReplaceDocumentChunks removes a document's existing chunks from both
// stores before indexing the new set. Deletion happens first so a failed
// re-index leaves no stale chunks behind.
func (s *IndexerService) ReplaceDocumentChunks(ctx context.Context, doc *domain.Document, title string, chunks []chunking.Chunk) (int, error) {
	existing, err := s.chunkRepo.ListPointIDs(ctx, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list existing chunk points: %w", err)
	}

	if len(existing) > 0 {
		if err := s.qdrant.DeleteByIDs(ctx, existing); err != nil {
			return 0, fmt.Errorf("failed to delete existing chunk vectors: %w", err)
		}
		if err := s.chunkRepo.DeleteByDocument(ctx, doc.ID); err != nil {
			return 0, fmt.Errorf("failed to delete existing chunk rows: %w", err)
		}
	}

	return s.IndexChunks(ctx, doc, title, chunks)
}

// IndexPages writes page-level embeddings plus a document-level embedding
// derived from the normalized mean of the page vectors. Pages shorter than
// minEmbeddablePageLength after trimming are skipped. Deterministic point
// IDs make re-runs overwrite in place.
func (s *IndexerService) IndexPages(ctx context.Context, doc *domain.Document, title string, pages []domain.PageText) error {
	var (
		texts []string
		keyed []domain.PageText
	)
	for _, p := range pages {
		if len(strings.TrimSpace(p.Text)) < minEmbeddablePageLength {
			continue
		}
		texts = append(texts, p.Text)
		keyed = append(keyed, p)
	}
	if len(texts) == 0 {
		s.log.WithField(logger.FieldDocID, doc.ID).Warn("no pages long enough to embed")
		return nil
	}

	vectors, err := s.embedding.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed pages: %w", err)
	}

	points := make([]repository.VectorPoint, 0, len(keyed)+1)
	for i, p := range keyed {
		points = append(points, repository.VectorPoint{
			ID:     PagePointID(doc.ID, p.PageNumber),
			Vector: vectors[i],
			Payload: repository.ChunkPayload{
				DocumentID:      doc.ID,
				PageNumber:      p.PageNumber,
				ChunkType:       "page",
				Text:            snippet(p.Text),
				Title:           title,
				IsDocumentLevel: false,
			},
		})
	}

	if docVector := normalizedMean(vectors); docVector != nil {
		points = append(points, repository.VectorPoint{
			ID:     DocumentPointID(doc.ID),
			Vector: docVector,
			Payload: repository.ChunkPayload{
				DocumentID:      doc.ID,
				ChunkType:       "document",
				Title:           title,
				IsDocumentLevel: true,
			},
		})
	}

	if err := s.qdrant.UpsertBatch(ctx, points); err != nil {
		return fmt.Errorf("failed to upsert page vectors: %w", err)
	}

	s.log.WithFields(logger.Fields{
		logger.FieldDocID: doc.ID,
		logger.FieldCount: len(points),
	}).Info("indexed page embeddings")

	return nil
}

// DeleteDocument removes every vector belonging to a document. Relational
// rows are handled by the document repository's cascading delete.
func (s *IndexerService) DeleteDocument(ctx context.Context, docID string) error {
	return s.qdrant.DeleteByDocument(ctx, docID, nil)
}

// cleanup undoes a partially applied chunk write. It re-queries the vector
// store for the IDs that actually exist and deletes only those, then drops
// any relational rows carrying the same point IDs. Cleanup failures are
// logged, never escalated; the original error is what the caller sees.
func (s *IndexerService) cleanup(ctx context.Context, docID string, pointIDs []string) {
	existing, err := s.qdrant.RetrieveExisting(ctx, pointIDs)
	if err != nil {
		s.log.WithError(err).WithField(logger.FieldDocID, docID).Error("cleanup: failed to query existing vectors")
		return
	}
	if len(existing) > 0 {
		if err := s.qdrant.DeleteByIDs(ctx, existing); err != nil {
			s.log.WithError(err).WithField(logger.FieldDocID, docID).Error("cleanup: failed to delete vectors")
		}
	}
	if err := s.chunkRepo.DeleteByPointIDs(ctx, pointIDs); err != nil {
		s.log.WithError(err).WithField(logger.FieldDocID, docID).Error("cleanup: failed to delete chunk rows")
	}
}

// normalizedMean returns the L2-normalized elementwise mean of vectors.
func normalizedMean(vectors [][]float32) []float32 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}

	dim := len(vectors[0])
	mean := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			mean[i] += float64(x)
		}
	}

	n := float64(len(vectors))
	var norm float64
	for i := range mean {
		mean[i] /= n
		norm += mean[i] * mean[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil
	}

	out := make([]float32, dim)
	for i := range mean {
		out[i] = float32(mean[i] / norm)
	}
	return out
}

// snippet bounds payload text, cutting on a rune boundary so the result is
// always valid UTF-8 (the vector store rejects payload strings that are not).
func snippet(text string) string {
	if len(text) <= payloadSnippetLength {
		return text
	}
	cut := payloadSnippetLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
