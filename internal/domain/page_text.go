package domain

import "time"

// PageText holds the cleaned flat text of one document page.
// (DocumentID, PageNumber) is unique; re-running OCR overwrites rows in place.
type PageText struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	DocumentID string    `gorm:"type:text;not null;uniqueIndex:idx_page_texts_doc_page" json:"doc_id"`
	PageNumber int       `gorm:"not null;uniqueIndex:idx_page_texts_doc_page" json:"page_number"`
	Text       string    `gorm:"type:text" json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for PageText.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (PageText) TableName() string {
	return "page_texts"
}
