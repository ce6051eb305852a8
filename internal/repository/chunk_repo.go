package repository

import (
	"context"

	"github.com/kterao/paperbase/internal/domain"
	"gorm.io/gorm"
)

// ChunkRepository handles semantic chunk data operations. Rows here mirror
// entries in the vector store; consistency between the two is maintained by
// the indexer's write protocol, not by database constraints.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ChunkRepository: repository instance bound to db.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Create inserts a new chunk record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chunk: chunk record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ChunkRepository) Create(ctx context.Context, chunk *domain.SemanticChunk) error {
	return r.db.WithContext(ctx).Create(chunk).Error
}

// ListByDocument retrieves chunks for a document, optionally filtered by page,
// ordered by page number then chunk index.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
//   - page: page number to filter by; nil means all pages.
// Returns:
//   - []domain.SemanticChunk: matching chunk records.
//   - error: non-nil if the query fails.
func (r *ChunkRepository) ListByDocument(ctx context.Context, docID string, page *int) ([]domain.SemanticChunk, error) {
	query := r.db.WithContext(ctx).Where("document_id = ?", docID)
	if page != nil {
		query = query.Where("page_number = ?", *page)
	}
	var chunks []domain.SemanticChunk
	if err := query.
		Order("page_number ASC, chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

// ListPointIDs retrieves the vector-store point IDs of all chunks belonging
// to a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - []string: point IDs of the document's chunks.
//   - error: non-nil if the query fails.
func (r *ChunkRepository) ListPointIDs(ctx context.Context, docID string) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&domain.SemanticChunk{}).
		Where("document_id = ?", docID).
		Pluck("point_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// CountByDocument counts the chunks of a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - int64: number of chunk records.
//   - error: non-nil if the query fails.
func (r *ChunkRepository) CountByDocument(ctx context.Context, docID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.SemanticChunk{}).
		Where("document_id = ?", docID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteByDocument removes all chunk rows for a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, docID string) error {
	return r.db.WithContext(ctx).Delete(&domain.SemanticChunk{}, "document_id = ?", docID).Error
}

// DeleteByPointIDs removes chunk rows whose point IDs are in ids. Used by the
// indexer's compensating cleanup.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ids: point IDs of the rows to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *ChunkRepository) DeleteByPointIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&domain.SemanticChunk{}, "point_id IN ?", ids).Error
}
