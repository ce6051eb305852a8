package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kterao/paperbase/internal/chunking"
	"github.com/kterao/paperbase/internal/domain"
	"github.com/kterao/paperbase/internal/repository"
)

func TestDeterministicPointIDs(t *testing.T) {
	a := ChunkPointID("doc-1", 3, 0)
	b := ChunkPointID("doc-1", 3, 0)
	if a != b {
		t.Errorf("same chunk position produced different point IDs: %s vs %s", a, b)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("point ID %q is not a valid UUID: %v", a, err)
	}

	ids := map[string]string{
		"other doc":   ChunkPointID("doc-2", 3, 0),
		"other page":  ChunkPointID("doc-1", 4, 0),
		"other index": ChunkPointID("doc-1", 3, 1),
		"page point":  PagePointID("doc-1", 3),
		"doc point":   DocumentPointID("doc-1"),
	}
	for name, id := range ids {
		if id == a {
			t.Errorf("%s collided with the chunk point ID", name)
		}
	}
}

func TestPagePointIDOverwritesInPlace(t *testing.T) {
	first := PagePointID("doc-1", 7)
	second := PagePointID("doc-1", 7)
	if first != second {
		t.Error("re-indexing a page must target the same point")
	}
	if PagePointID("doc-1", 8) == first {
		t.Error("distinct pages must not share a point")
	}
}

func TestNormalizedMean(t *testing.T) {
	vectors := [][]float32{
		{1, 0},
		{0, 1},
	}
	got := normalizedMean(vectors)
	if got == nil {
		t.Fatal("expected a mean vector, got nil")
	}

	var norm float64
	for _, x := range got {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
		t.Errorf("mean vector norm = %f, want 1", math.Sqrt(norm))
	}
	if math.Abs(float64(got[0])-float64(got[1])) > 1e-6 {
		t.Errorf("mean of symmetric inputs should be symmetric, got %v", got)
	}
}

func TestNormalizedMeanEdgeCases(t *testing.T) {
	if normalizedMean(nil) != nil {
		t.Error("empty input should yield nil")
	}
	if normalizedMean([][]float32{{0, 0}, {0, 0}}) != nil {
		t.Error("zero vectors should yield nil, not NaN")
	}
	if normalizedMean([][]float32{{1, 2}, {1, 2, 3}}) != nil {
		t.Error("mismatched dimensions should yield nil")
	}
}

func TestSnippet(t *testing.T) {
	short := "short text"
	if snippet(short) != short {
		t.Error("short text should pass through unchanged")
	}

	long := strings.Repeat("x", payloadSnippetLength*2)
	got := snippet(long)
	if len(got) != payloadSnippetLength {
		t.Errorf("snippet length = %d, want %d", len(got), payloadSnippetLength)
	}
}

func TestSnippetKeepsValidUTF8(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"multi-byte rune straddling the limit", strings.Repeat("a", payloadSnippetLength-1) + "한국어 텍스트"},
		{"entirely multi-byte text", strings.Repeat("言語処理", payloadSnippetLength)},
		{"four-byte runes", strings.Repeat("a", payloadSnippetLength-2) + "𝒜𝒜𝒜"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snippet(tt.text)
			if !utf8.ValidString(got) {
				t.Errorf("snippet produced invalid UTF-8: %q", got)
			}
			if len(got) > payloadSnippetLength {
				t.Errorf("snippet length = %d, exceeds %d", len(got), payloadSnippetLength)
			}
			if !strings.HasPrefix(tt.text, got) {
				t.Error("snippet is not a prefix of the input")
			}
		})
	}
}

// Fakes for exercising the dual-store write protocol.

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake-model" }

type fakeVectorStore struct {
	upsertErr  error
	upserted   [][]repository.VectorPoint
	existing   []string
	deletedIDs [][]string
	docDeletes []string
}

func (f *fakeVectorStore) UpsertBatch(_ context.Context, points []repository.VectorPoint) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, points)
	return nil
}

func (f *fakeVectorStore) RetrieveExisting(_ context.Context, _ []string) ([]string, error) {
	return f.existing, nil
}

func (f *fakeVectorStore) DeleteByIDs(_ context.Context, ids []string) error {
	f.deletedIDs = append(f.deletedIDs, ids)
	return nil
}

func (f *fakeVectorStore) DeleteByDocument(_ context.Context, docID string, _ *bool) error {
	f.docDeletes = append(f.docDeletes, docID)
	return nil
}

type fakeChunkStore struct {
	failCall        int // 0-based Create call that fails; -1 disables
	calls           int
	rows            []*domain.SemanticChunk
	deletedPointIDs [][]string
	docDeletes      []string
}

func newFakeChunkStore() *fakeChunkStore { return &fakeChunkStore{failCall: -1} }

func (f *fakeChunkStore) Create(_ context.Context, chunk *domain.SemanticChunk) error {
	call := f.calls
	f.calls++
	if call == f.failCall {
		return errors.New("row write failed")
	}
	f.rows = append(f.rows, chunk)
	return nil
}

func (f *fakeChunkStore) ListPointIDs(_ context.Context, _ string) ([]string, error) {
	ids := make([]string, 0, len(f.rows))
	for _, row := range f.rows {
		ids = append(ids, row.PointID)
	}
	return ids, nil
}

func (f *fakeChunkStore) DeleteByDocument(_ context.Context, docID string) error {
	f.docDeletes = append(f.docDeletes, docID)
	f.rows = nil
	return nil
}

func (f *fakeChunkStore) DeleteByPointIDs(_ context.Context, ids []string) error {
	f.deletedPointIDs = append(f.deletedPointIDs, ids)
	return nil
}

func testChunks(n int) []chunking.Chunk {
	chunks := make([]chunking.Chunk, n)
	for i := range chunks {
		chunks[i] = chunking.Chunk{
			Text:        fmt.Sprintf("chunk %d text", i),
			Type:        domain.ChunkTypeParagraph,
			PageNumber:  1,
			IndexOnPage: i,
		}
	}
	return chunks
}

func TestIndexChunksVectorFailureWritesNoRows(t *testing.T) {
	vectors := &fakeVectorStore{
		upsertErr: errors.New("vector store unavailable"),
		existing:  []string{ChunkPointID("doc-1", 1, 0)},
	}
	rows := newFakeChunkStore()
	s := NewIndexerService(rows, vectors, &fakeEmbedder{})

	doc := &domain.Document{ID: "doc-1"}
	if _, err := s.IndexChunks(context.Background(), doc, "title", testChunks(3)); err == nil {
		t.Fatal("expected an error when the vector upsert fails")
	}

	if len(rows.rows) != 0 {
		t.Errorf("%d relational rows written despite vector failure", len(rows.rows))
	}
	if len(vectors.deletedIDs) == 0 {
		t.Error("cleanup did not delete surviving vectors")
	}
	if len(rows.deletedPointIDs) == 0 {
		t.Error("cleanup did not drop rows by point ID")
	}
}

func TestIndexChunksRowFailureKeepsOtherRows(t *testing.T) {
	vectors := &fakeVectorStore{}
	rows := newFakeChunkStore()
	rows.failCall = 1
	s := NewIndexerService(rows, vectors, &fakeEmbedder{})

	doc := &domain.Document{ID: "doc-1"}
	inserted, err := s.IndexChunks(context.Background(), doc, "title", testChunks(3))
	if err != nil {
		t.Fatalf("IndexChunks returned error: %v", err)
	}
	if inserted != 2 {
		t.Errorf("inserted = %d, want 2", inserted)
	}
	if len(rows.rows) != 2 {
		t.Errorf("%d rows persisted, want 2", len(rows.rows))
	}
	if len(vectors.upserted) != 1 || len(vectors.upserted[0]) != 3 {
		t.Errorf("vector upserts = %d batches, want one batch of 3", len(vectors.upserted))
	}
	if len(vectors.deletedIDs) != 0 {
		t.Error("a single row failure must not trigger vector cleanup")
	}
}

func TestIndexChunksEmbeddingFailureWritesNothing(t *testing.T) {
	vectors := &fakeVectorStore{}
	rows := newFakeChunkStore()
	s := NewIndexerService(rows, vectors, &fakeEmbedder{err: ErrEmbeddingCountMismatch})

	doc := &domain.Document{ID: "doc-1"}
	_, err := s.IndexChunks(context.Background(), doc, "title", testChunks(2))
	if !errors.Is(err, ErrEmbeddingCountMismatch) {
		t.Fatalf("err = %v, want count mismatch", err)
	}
	if len(vectors.upserted) != 0 {
		t.Error("vectors written despite embedding failure")
	}
	if len(rows.rows) != 0 {
		t.Error("rows written despite embedding failure")
	}
}

func TestReplaceDocumentChunksDeletesExistingFirst(t *testing.T) {
	vectors := &fakeVectorStore{}
	rows := newFakeChunkStore()
	rows.rows = []*domain.SemanticChunk{
		{DocumentID: "doc-1", PointID: ChunkPointID("doc-1", 1, 0)},
		{DocumentID: "doc-1", PointID: ChunkPointID("doc-1", 1, 1)},
	}
	s := NewIndexerService(rows, vectors, &fakeEmbedder{})

	doc := &domain.Document{ID: "doc-1"}
	inserted, err := s.ReplaceDocumentChunks(context.Background(), doc, "title", testChunks(1))
	if err != nil {
		t.Fatalf("ReplaceDocumentChunks returned error: %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	if len(vectors.deletedIDs) != 1 || len(vectors.deletedIDs[0]) != 2 {
		t.Errorf("old vectors not deleted before re-index: %v", vectors.deletedIDs)
	}
	if len(rows.docDeletes) != 1 {
		t.Error("old rows not dropped before re-index")
	}
	if len(rows.rows) != 1 {
		t.Errorf("%d rows after replace, want 1", len(rows.rows))
	}
}
