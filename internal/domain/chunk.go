package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ChunkType describes which chunking strategy produced a chunk.
type ChunkType string

const (
	ChunkTypeParagraph      ChunkType = "paragraph"
	ChunkTypeSentenceGroup  ChunkType = "sentence_group"
	ChunkTypeFallbackSplit  ChunkType = "fallback_split"
	ChunkTypeParagraphGroup ChunkType = "paragraph_group"
)

// BBox is a layout bounding box stored as a JSON array of 4 floats (x0, y0, x1, y1).
type BBox []float64

// Value implements the driver.Valuer interface for database serialization.
func (b BBox) Value() (driver.Value, error) {
	if b == nil {
		return "[0,0,0,0]", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (b *BBox) Scan(value interface{}) error {
	if value == nil {
		*b = BBox{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan BBox")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, b)
}

// SemanticChunk is the relational mirror of one indexed chunk vector.
// (DocumentID, PageNumber, ChunkIndex) is unique; PointID is the vector store
// key the chunk's embedding lives under. Every persisted row must have a live
// matching vector entry — the cleanup protocol in the indexer enforces the
// converse direction.
type SemanticChunk struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	DocumentID     string    `gorm:"type:text;not null;uniqueIndex:idx_chunks_doc_page_index;index" json:"doc_id"`
	PageNumber     int       `gorm:"not null;uniqueIndex:idx_chunks_doc_page_index" json:"page_number"`
	ChunkIndex     int       `gorm:"not null;uniqueIndex:idx_chunks_doc_page_index" json:"chunk_index"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	ChunkType      ChunkType `gorm:"type:text;not null" json:"chunk_type"`
	StartChar      *int      `json:"start_char,omitempty"`
	EndChar        *int      `json:"end_char,omitempty"`
	BBox           BBox      `gorm:"type:text" json:"bbox,omitempty"`
	PointID        string    `gorm:"type:text;not null;index" json:"point_id"`
	EmbeddingModel string    `gorm:"type:text" json:"embedding_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for SemanticChunk.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SemanticChunk) TableName() string {
	return "semantic_chunks"
}
