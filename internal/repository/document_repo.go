package repository

import (
	"context"

	"github.com/kterao/paperbase/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository handles document and metadata data operations.
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new DocumentRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DocumentRepository: repository instance bound to db.
func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetByID retrieves a document by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: document ID.
// Returns:
//   - *domain.Document: document record if found.
//   - error: non-nil if lookup fails.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// Update updates an existing document record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - doc: document record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// List retrieves documents ordered by creation time, newest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Document: matching document records.
//   - error: non-nil if the query fails.
func (r *DocumentRepository) List(ctx context.Context, limit, offset int) ([]domain.Document, error) {
	var docs []domain.Document
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes a document by ID. Page texts, chunks, and metadata rows are
// removed alongside it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: document ID to delete.
// Returns:
//   - error: non-nil if the delete fails.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.SemanticChunk{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.PageText{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Metadata{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Document{}, "id = ?", id).Error
	})
}

// GetMetadata retrieves the metadata row for a document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - docID: document identifier.
// Returns:
//   - *domain.Metadata: metadata record if found.
//   - error: gorm.ErrRecordNotFound if no metadata exists.
func (r *DocumentRepository) GetMetadata(ctx context.Context, docID string) (*domain.Metadata, error) {
	var meta domain.Metadata
	if err := r.db.WithContext(ctx).First(&meta, "document_id = ?", docID).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

// UpsertMetadata creates or updates the metadata row keyed by document ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - meta: metadata record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *DocumentRepository) UpsertMetadata(ctx context.Context, meta *domain.Metadata) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		UpdateAll: true,
	}).Create(meta).Error
}
