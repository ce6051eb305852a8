package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

const pdfContentType = "application/pdf"

// DocumentArchive stores source documents in object storage under
// {docID}/{filename} keys. The archive is the durable copy; the local upload
// directory is only a staging area for the extractor.
type DocumentArchive struct {
	store ObjectStorage
}

// NewDocumentArchive wraps an ObjectStorage as a document archive.
func NewDocumentArchive(store ObjectStorage) *DocumentArchive {
	return &DocumentArchive{store: store}
}

// ArchiveKey returns the object key for a document's source file.
func ArchiveKey(docID, filename string) string {
	return docID + "/" + path.Base(filename)
}

// Store uploads a source document and returns its object key.
func (a *DocumentArchive) Store(ctx context.Context, docID, filename string, reader io.Reader, size int64) (string, error) {
	key := ArchiveKey(docID, filename)

	contentType := pdfContentType
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		contentType = "application/octet-stream"
	}

	if err := a.store.Upload(ctx, key, reader, size, contentType); err != nil {
		return "", fmt.Errorf("failed to archive document: %w", err)
	}
	return key, nil
}

// Fetch opens the archived source document. The caller closes the reader.
func (a *DocumentArchive) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.store.Download(ctx, key)
}

// Remove deletes the archived copy. Missing objects are not an error.
func (a *DocumentArchive) Remove(ctx context.Context, key string) error {
	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return a.store.Delete(ctx, key)
}

// URL returns the public URL of an archived document.
func (a *DocumentArchive) URL(key string) string {
	return a.store.GetURL(key)
}
