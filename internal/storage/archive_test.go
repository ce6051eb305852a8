package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

// memStorage is an in-memory ObjectStorage for tests.
type memStorage struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) GetURL(key string) string {
	return "https://archive.test/" + key
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey("doc-1", "paper.pdf"); got != "doc-1/paper.pdf" {
		t.Errorf("ArchiveKey = %q", got)
	}
	// Path components in the filename are stripped.
	if got := ArchiveKey("doc-1", "/tmp/uploads/doc-1/paper.pdf"); got != "doc-1/paper.pdf" {
		t.Errorf("ArchiveKey with path = %q", got)
	}
}

func TestArchiveStoreAndFetch(t *testing.T) {
	mem := newMemStorage()
	archive := NewDocumentArchive(mem)
	ctx := context.Background()

	body := "pdf bytes"
	key, err := archive.Store(ctx, "doc-1", "paper.pdf", strings.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if key != "doc-1/paper.pdf" {
		t.Errorf("key = %q", key)
	}
	if mem.contentTypes[key] != "application/pdf" {
		t.Errorf("content type = %q", mem.contentTypes[key])
	}

	reader, err := archive.Fetch(ctx, key)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != body {
		t.Errorf("fetched %q, want %q", data, body)
	}
}

func TestArchiveStoreNonPDFContentType(t *testing.T) {
	mem := newMemStorage()
	archive := NewDocumentArchive(mem)

	key, err := archive.Store(context.Background(), "doc-1", "notes.txt", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if mem.contentTypes[key] != "application/octet-stream" {
		t.Errorf("content type = %q", mem.contentTypes[key])
	}
}

func TestArchiveRemove(t *testing.T) {
	mem := newMemStorage()
	archive := NewDocumentArchive(mem)
	ctx := context.Background()

	key, err := archive.Store(ctx, "doc-1", "paper.pdf", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}

	if err := archive.Remove(ctx, key); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, ok := mem.objects[key]; ok {
		t.Error("object still present after Remove")
	}

	// Removing a missing object is not an error.
	if err := archive.Remove(ctx, "doc-2/gone.pdf"); err != nil {
		t.Errorf("Remove of missing object returned error: %v", err)
	}
}
