package chunking

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kterao/paperbase/internal/domain"
)

func mustChunker(t *testing.T, cfg Config) *Chunker {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

// goodSentence is long enough and wordy enough to pass the quality gate.
const goodSentence = "The measured diffusion coefficients increased steadily with temperature across all sampled conditions."

func repeatSentences(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = goodSentence
	}
	return strings.Join(parts, " ")
}

func TestSplitDeterministic(t *testing.T) {
	pages := []PageStructure{
		{
			PageNumber: 1,
			Structure:  StructurePreserved,
			Blocks: []Block{
				{Text: goodSentence, BBox: []float64{10, 10, 500, 60}},
				{Text: repeatSentences(12), BBox: []float64{10, 70, 500, 400}},
			},
		},
		{
			PageNumber: 2,
			Structure:  StructureFlat,
			Text:       repeatSentences(3) + "\n\n" + repeatSentences(2) + "\n\n" + goodSentence,
		},
	}

	c := mustChunker(t, DefaultConfig())
	first := c.Split(pages)
	second := c.Split(pages)

	if len(first) == 0 {
		t.Fatal("expected chunks, got none")
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated invocation produced a different chunk list")
	}
}

func TestQualityGate(t *testing.T) {
	c := mustChunker(t, DefaultConfig())

	testCases := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "accepts a normal paragraph",
			text: goodSentence,
			want: true,
		},
		{
			name: "rejects short fragments",
			text: "Too short to keep.",
			want: false,
		},
		{
			name: "rejects word-poor text",
			text: "Supercalifragilisticexpialidocious pneumonoultramicroscopicsilicovolcanoconiosis antidisestablishmentarianism floccinaucinihilipilification",
			want: false,
		},
		{
			name: "rejects low alphabetic ratio",
			text: "1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 17 18 19 20 21 22 23 24",
			want: false,
		},
		{
			name: "rejects fully upper-case text",
			text: "TABLE THREE SUMMARY OF EXPERIMENTAL RESULTS ACROSS CONDITIONS AND TRIALS",
			want: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.passesQualityGate(tc.text); got != tc.want {
				t.Errorf("passesQualityGate(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestSplitEmitsOnlyGatedChunks(t *testing.T) {
	cfg := DefaultConfig()
	pages := []PageStructure{
		{
			PageNumber: 1,
			Structure:  StructurePreserved,
			Blocks: []Block{
				{Text: "FIGURE 2"},
				{Text: goodSentence},
				{Text: repeatSentences(10)},
			},
		},
	}

	c := mustChunker(t, cfg)
	for _, chunk := range c.Split(pages) {
		trimmed := strings.TrimSpace(chunk.Text)
		if len(trimmed) < cfg.MinChunkLength {
			t.Errorf("emitted chunk below minimum length: %d chars", len(trimmed))
		}
		if len(strings.Fields(trimmed)) < cfg.MinWordCount {
			t.Errorf("emitted chunk below minimum word count: %q", trimmed)
		}
		if alphaRatio(trimmed) < cfg.MinAlphaRatio {
			t.Errorf("emitted chunk below alphabetic ratio: %q", trimmed)
		}
		if len(trimmed) > 20 && isAllUpper(trimmed) {
			t.Errorf("emitted fully upper-case chunk: %q", trimmed)
		}
	}
}

func TestOversizedSentenceFallsBackToCharacterSplit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 500

	// One "sentence" with no terminator, well beyond 1.5x the target size.
	word := "substrate"
	var b strings.Builder
	for b.Len() < 800 {
		b.WriteString(word)
		b.WriteByte(' ')
	}
	longRun := strings.TrimSpace(b.String())

	pages := []PageStructure{
		{
			PageNumber: 1,
			Structure:  StructurePreserved,
			Blocks:     []Block{{Text: longRun, BBox: []float64{0, 0, 100, 100}}},
		},
	}

	c := mustChunker(t, cfg)
	chunks := c.Split(pages)

	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 fallback chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.Type != domain.ChunkTypeFallbackSplit {
			t.Errorf("chunk type = %q, want %q", chunk.Type, domain.ChunkTypeFallbackSplit)
		}
		if len(chunk.Text) > cfg.ChunkSize {
			t.Errorf("fallback chunk exceeds target size: %d > %d", len(chunk.Text), cfg.ChunkSize)
		}
	}
}

func TestSizeBound(t *testing.T) {
	cfg := DefaultConfig()
	oversize := int(float64(cfg.ChunkSize) * cfg.OversizeMultiplier)

	pages := []PageStructure{
		{
			PageNumber: 1,
			Structure:  StructurePreserved,
			Blocks: []Block{
				{Text: repeatSentences(20)},
				{Text: goodSentence},
			},
		},
		{
			PageNumber: 2,
			Structure:  StructureFlat,
			Text:       repeatSentences(8) + "\n\n" + repeatSentences(8),
		},
	}

	c := mustChunker(t, cfg)
	for _, chunk := range c.Split(pages) {
		if len(chunk.Text) > oversize {
			t.Errorf("page %d chunk %d exceeds size bound: %d > %d",
				chunk.PageNumber, chunk.IndexOnPage, len(chunk.Text), oversize)
		}
	}
}

func TestFlatPageParagraphPacking(t *testing.T) {
	cfg := DefaultConfig()
	para := goodSentence // ~100 chars

	pages := []PageStructure{
		{
			PageNumber: 3,
			Structure:  StructureFlat,
			Text:       strings.Join([]string{para, para, para, para, para, para, para, para}, "\n\n"),
		},
	}

	c := mustChunker(t, cfg)
	chunks := c.Split(pages)

	if len(chunks) < 2 {
		t.Fatalf("expected paragraphs packed into multiple groups, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Type != domain.ChunkTypeParagraphGroup {
			t.Errorf("chunk type = %q, want %q", chunk.Type, domain.ChunkTypeParagraphGroup)
		}
		if chunk.PageNumber != 3 {
			t.Errorf("chunk page = %d, want 3", chunk.PageNumber)
		}
		if chunk.IndexOnPage != i {
			t.Errorf("chunk index = %d, want %d", chunk.IndexOnPage, i)
		}
	}
}

func TestSentenceGroupHonorsMaxSentences(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSentencesPerChunk = 3
	// Small enough that the block takes the sentence-splitting path, large
	// enough that only the sentence cap binds within a group.
	cfg.ChunkSize = len(goodSentence) * 4

	pages := []PageStructure{
		{
			PageNumber: 1,
			Structure:  StructurePreserved,
			Blocks:     []Block{{Text: repeatSentences(9)}},
		},
	}
	c := mustChunker(t, cfg)
	chunks := c.Split(pages)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 sentence groups, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.Type != domain.ChunkTypeSentenceGroup {
			t.Errorf("chunk type = %q, want %q", chunk.Type, domain.ChunkTypeSentenceGroup)
		}
	}
}

func TestSummarize(t *testing.T) {
	chunks := []Chunk{
		{Text: strings.Repeat("a", 100), Type: domain.ChunkTypeParagraph},
		{Text: strings.Repeat("b", 300), Type: domain.ChunkTypeSentenceGroup},
		{Text: strings.Repeat("c", 200), Type: domain.ChunkTypeSentenceGroup},
	}

	stats := Summarize(chunks)
	if stats.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", stats.TotalChunks)
	}
	if stats.ChunkTypes[domain.ChunkTypeSentenceGroup] != 2 {
		t.Errorf("sentence_group count = %d, want 2", stats.ChunkTypes[domain.ChunkTypeSentenceGroup])
	}
	if stats.MinChunkLength != 100 || stats.MaxChunkLength != 300 {
		t.Errorf("length bounds = [%d, %d], want [100, 300]", stats.MinChunkLength, stats.MaxChunkLength)
	}
	if stats.AvgChunkLength != 200 {
		t.Errorf("AvgChunkLength = %f, want 200", stats.AvgChunkLength)
	}
}
