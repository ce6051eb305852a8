package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// MetadataSource marks where a document's bibliographic metadata came from.
// Caller-provided metadata is authoritative and is never overwritten by extraction.
type MetadataSource string

const (
	MetadataSourceExtracted MetadataSource = "extracted"
	MetadataSourceCaller    MetadataSource = "caller"
)

// Document represents one ingested source file (typically a PDF).
// OCRText stays nil until the ocr step completes.
type Document struct {
	ID         string    `gorm:"type:text;primaryKey" json:"doc_id"`
	Filename   string    `gorm:"type:text;not null" json:"filename"`
	FilePath   string    `gorm:"type:text;not null" json:"file_path"`
	StorageKey string    `gorm:"type:text" json:"storage_key,omitempty"`
	OCRText    *string   `gorm:"column:ocr_text" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Document.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Document) TableName() string {
	return "documents"
}

// Metadata holds best-effort bibliographic fields for one document.
// Every field may be absent; Source records provenance.
type Metadata struct {
	ID         uint           `gorm:"primaryKey" json:"-"`
	DocumentID string         `gorm:"type:text;not null;uniqueIndex" json:"doc_id"`
	Title      *string        `json:"title,omitempty"`
	Authors    StringArray    `gorm:"type:text" json:"authors"`
	Journal    *string        `json:"journal,omitempty"`
	Year       *int           `json:"year,omitempty"`
	Abstract   *string        `json:"abstract,omitempty"`
	DOI        *string        `gorm:"column:doi" json:"doi,omitempty"`
	Source     MetadataSource `gorm:"type:text;default:extracted" json:"source"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Metadata.
func (Metadata) TableName() string {
	return "document_metadata"
}
