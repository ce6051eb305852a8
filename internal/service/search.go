package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kterao/paperbase/internal/domain"
	"github.com/kterao/paperbase/internal/logger"
	"github.com/kterao/paperbase/internal/repository"
)

const (
	defaultTopK = 10
	maxTopK     = 50
)

// SearchService answers semantic queries over the indexed corpus.
type SearchService struct {
	docRepo   *repository.DocumentRepository
	qdrant    *repository.QdrantRepository
	embedding *EmbeddingService
	log       *logger.Logger
}

// NewSearchService creates a new SearchService.
func NewSearchService(
	docRepo *repository.DocumentRepository,
	qdrant *repository.QdrantRepository,
	embedding *EmbeddingService,
) *SearchService {
	return &SearchService{
		docRepo:   docRepo,
		qdrant:    qdrant,
		embedding: embedding,
		log:       logger.Default().WithField(logger.FieldComponent, "search"),
	}
}

// SearchRequest is one semantic query.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k"`
	// Granularity selects what to match against: "chunk" (default),
	// "page", or "document".
	Granularity string  `json:"granularity"`
	DocumentID  *string `json:"doc_id,omitempty"`
}

// SearchHit is one scored match with its document context.
type SearchHit struct {
	DocumentID string           `json:"doc_id"`
	Filename   string           `json:"filename"`
	Title      string           `json:"title,omitempty"`
	PageNumber int              `json:"page_number,omitempty"`
	ChunkIndex int              `json:"chunk_index,omitempty"`
	ChunkType  string           `json:"chunk_type,omitempty"`
	Snippet    string           `json:"snippet,omitempty"`
	Score      float32          `json:"score"`
	Metadata   *domain.Metadata `json:"metadata,omitempty"`
}

// Search embeds the query, runs a vector search at the requested
// granularity, and joins the hits with their relational document records.
func (s *SearchService) Search(ctx context.Context, req *SearchRequest) ([]SearchHit, error) {
	if req.Query == "" {
		return nil, errors.New("query must not be empty")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	vector, err := s.embedding.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filters := &repository.SearchFilters{DocumentID: req.DocumentID}
	switch req.Granularity {
	case "document":
		t := true
		filters.DocumentLevel = &t
	case "page":
		page := "page"
		filters.ChunkType = &page
	default:
		filters.ChunkTypes = []string{
			string(domain.ChunkTypeParagraph),
			string(domain.ChunkTypeSentenceGroup),
			string(domain.ChunkTypeFallbackSplit),
			string(domain.ChunkTypeParagraphGroup),
		}
	}

	results, err := s.qdrant.Search(ctx, vector, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if r.Payload == nil {
			continue
		}
		hit := SearchHit{
			DocumentID: r.Payload.DocumentID,
			Title:      r.Payload.Title,
			PageNumber: r.Payload.PageNumber,
			ChunkIndex: r.Payload.ChunkIndex,
			ChunkType:  r.Payload.ChunkType,
			Snippet:    r.Payload.Text,
			Score:      r.Score,
		}

		doc, err := s.docRepo.GetByID(ctx, r.Payload.DocumentID)
		if err != nil {
			// Vector without a relational record: an orphan from an
			// interrupted delete. Skip it rather than surface it.
			s.log.WithField(logger.FieldDocID, r.Payload.DocumentID).Warn("search hit references missing document")
			continue
		}
		hit.Filename = doc.Filename

		if meta, err := s.docRepo.GetMetadata(ctx, doc.ID); err == nil {
			hit.Metadata = meta
			if hit.Title == "" && meta.Title != nil {
				hit.Title = *meta.Title
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load metadata: %w", err)
		}

		hits = append(hits, hit)
	}

	return hits, nil
}
