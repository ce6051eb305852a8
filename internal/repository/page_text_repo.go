package repository

import (
	"context"

	"github.com/kterao/paperbase/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageTextRepository handles per-page text data operations.
type PageTextRepository struct {
	db *gorm.DB
}

// NewPageTextRepository creates a new PageTextRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PageTextRepository: repository instance bound to db.
func NewPageTextRepository(db *gorm.DB) *PageTextRepository {
	return &PageTextRepository{db: db}
}

// Upsert creates or overwrites the text of one page, keyed by
// (document_id, page_number). Re-running OCR updates rows in place so the
// unique constraint is never violated.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - page: page text record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *PageTextRepository) Upsert(ctx context.Context, page *domain.PageText) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "page_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "updated_at"}),
	}).Create(page).Error
}

// ListByDocument retrieves all page texts for a document in page order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - []domain.PageText: page records ordered by page number.
//   - error: non-nil if the query fails.
func (r *PageTextRepository) ListByDocument(ctx context.Context, docID string) ([]domain.PageText, error) {
	var pages []domain.PageText
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("page_number ASC").
		Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

// DeleteByDocument removes all page texts for a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - error: non-nil if the delete fails.
func (r *PageTextRepository) DeleteByDocument(ctx context.Context, docID string) error {
	return r.db.WithContext(ctx).Delete(&domain.PageText{}, "document_id = ?", docID).Error
}
