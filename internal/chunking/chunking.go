// Package chunking turns structured page content into ordered, semantically
// bounded text chunks. It is pure: no I/O, no randomness, deterministic output
// for identical input and configuration.
package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kterao/paperbase/internal/domain"
)

// StructureType tags how a page's content was extracted.
type StructureType string

const (
	// StructurePreserved means layout blocks are available for the page.
	StructurePreserved StructureType = "preserved"
	// StructureFlat means only flat text is available (OCR fallback).
	StructureFlat StructureType = "flat"
)

// Block is one ordered layout unit of a preserved page.
type Block struct {
	Text string    `json:"text"`
	BBox []float64 `json:"bbox,omitempty"`
}

// PageStructure is the chunker's input for one page.
type PageStructure struct {
	PageNumber int           `json:"page_number"`
	Structure  StructureType `json:"structure"`
	Text       string        `json:"text,omitempty"`
	Blocks     []Block       `json:"blocks,omitempty"`
}

// Chunk is one emitted span of page text.
type Chunk struct {
	Text        string
	Type        domain.ChunkType
	PageNumber  int
	IndexOnPage int
	StartChar   int
	EndChar     int
	BBox        []float64
}

// Config controls chunk sizing and the quality gate. The oversize multiplier
// and the half-window boundary search minimum are empirical constants carried
// over from tuning runs; they are configuration, not structure.
type Config struct {
	ChunkSize            int
	ChunkOverlap         int
	MinChunkLength       int
	MinWordCount         int
	MinAlphaRatio        float64
	SentencePattern      string
	MinSentenceLength    int
	MaxSentencesPerChunk int
	OversizeMultiplier   float64
}

// DefaultConfig returns the chunking defaults used in production.
// Parameters: none.
// Returns:
//   - Config: default chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            500,
		ChunkOverlap:         50,
		MinChunkLength:       50,
		MinWordCount:         8,
		MinAlphaRatio:        0.5,
		SentencePattern:      `[.!?]+\s+`,
		MinSentenceLength:    20,
		MaxSentencesPerChunk: 10,
		OversizeMultiplier:   1.5,
	}
}

// Chunker splits page structures into chunks using a hierarchical strategy:
// paragraph blocks first, sentence groups for oversized blocks, and fixed-window
// character splitting as the last resort.
type Chunker struct {
	cfg        Config
	sentenceRe *regexp.Regexp
}

// New creates a Chunker with the given configuration.
// Parameters:
//   - cfg: chunking configuration; zero-value fields fall back to defaults.
// Returns:
//   - *Chunker: initialized chunker.
//   - error: non-nil if the sentence pattern does not compile.
func New(cfg Config) (*Chunker, error) {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.MinChunkLength <= 0 {
		cfg.MinChunkLength = def.MinChunkLength
	}
	if cfg.MinWordCount <= 0 {
		cfg.MinWordCount = def.MinWordCount
	}
	if cfg.MinAlphaRatio <= 0 {
		cfg.MinAlphaRatio = def.MinAlphaRatio
	}
	if cfg.SentencePattern == "" {
		cfg.SentencePattern = def.SentencePattern
	}
	if cfg.MinSentenceLength <= 0 {
		cfg.MinSentenceLength = def.MinSentenceLength
	}
	if cfg.MaxSentencesPerChunk <= 0 {
		cfg.MaxSentencesPerChunk = def.MaxSentencesPerChunk
	}
	if cfg.OversizeMultiplier <= 0 {
		cfg.OversizeMultiplier = def.OversizeMultiplier
	}

	re, err := regexp.Compile(cfg.SentencePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid sentence pattern %q: %w", cfg.SentencePattern, err)
	}
	return &Chunker{cfg: cfg, sentenceRe: re}, nil
}

// Split chunks all pages and assigns page-scoped sequential indexes.
// Parameters:
//   - pages: ordered page structures.
// Returns:
//   - []Chunk: ordered chunks across all pages.
func (c *Chunker) Split(pages []PageStructure) []Chunk {
	var all []Chunk
	for _, page := range pages {
		var pageChunks []Chunk
		if page.Structure == StructurePreserved {
			pageChunks = c.splitStructured(page)
		} else {
			pageChunks = c.splitFlat(page)
		}
		for i := range pageChunks {
			pageChunks[i].PageNumber = page.PageNumber
			pageChunks[i].IndexOnPage = i
		}
		all = append(all, pageChunks...)
	}
	return all
}

// splitStructured chunks a preserved page block by block. Blocks within the
// target size become paragraph chunks; oversized blocks are split into
// sentence groups, and any group still above OversizeMultiplier times the
// target falls back to character splitting.
func (c *Chunker) splitStructured(page PageStructure) []Chunk {
	var chunks []Chunk
	oversize := int(float64(c.cfg.ChunkSize) * c.cfg.OversizeMultiplier)

	for _, block := range page.Blocks {
		if len(block.Text) <= c.cfg.ChunkSize {
			if c.passesQualityGate(block.Text) {
				chunks = append(chunks, Chunk{
					Text:      block.Text,
					Type:      domain.ChunkTypeParagraph,
					BBox:      block.BBox,
					StartChar: 0,
					EndChar:   len(block.Text),
				})
			}
			continue
		}

		for _, group := range c.splitBySentences(block.Text) {
			if len(group) > oversize {
				for _, piece := range c.characterSplit(group) {
					if c.passesQualityGate(piece) {
						chunks = append(chunks, Chunk{
							Text:      piece,
							Type:      domain.ChunkTypeFallbackSplit,
							BBox:      block.BBox,
							StartChar: 0,
							EndChar:   len(piece),
						})
					}
				}
				continue
			}
			if c.passesQualityGate(group) {
				chunks = append(chunks, Chunk{
					Text:      group,
					Type:      domain.ChunkTypeSentenceGroup,
					BBox:      block.BBox,
					StartChar: 0,
					EndChar:   len(group),
				})
			}
		}
	}
	return chunks
}

// splitFlat chunks a flat page: paragraphs split on blank lines are greedily
// packed into groups up to the target size; oversized groups fall back to
// character splitting.
func (c *Chunker) splitFlat(page PageStructure) []Chunk {
	var groups []string
	var current string

	for _, para := range strings.Split(page.Text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current != "" && len(current)+2+len(para) > c.cfg.ChunkSize {
			groups = append(groups, current)
			current = para
			continue
		}
		if current == "" {
			current = para
		} else {
			current += "\n\n" + para
		}
	}
	if current != "" {
		groups = append(groups, current)
	}

	oversize := int(float64(c.cfg.ChunkSize) * c.cfg.OversizeMultiplier)
	var chunks []Chunk
	for _, group := range groups {
		if len(group) > oversize {
			for _, piece := range c.characterSplit(group) {
				if c.passesQualityGate(piece) {
					chunks = append(chunks, Chunk{
						Text:      piece,
						Type:      domain.ChunkTypeFallbackSplit,
						StartChar: 0,
						EndChar:   len(piece),
					})
				}
			}
			continue
		}
		if c.passesQualityGate(group) {
			chunks = append(chunks, Chunk{
				Text:      group,
				Type:      domain.ChunkTypeParagraphGroup,
				StartChar: 0,
				EndChar:   len(group),
			})
		}
	}
	return chunks
}

// splitBySentences greedily accumulates sentences into groups bounded by the
// target chunk size and the max-sentence count.
func (c *Chunker) splitBySentences(text string) []string {
	var sentences []string
	for _, s := range c.sentenceRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		// Fragments below the minimum are splitting artifacts, not sentences.
		if len(s) >= c.cfg.MinSentenceLength {
			sentences = append(sentences, s)
		}
	}

	var groups []string
	var group []string
	groupLen := 0

	for _, sentence := range sentences {
		newLen := groupLen + len(sentence) + 1
		if len(group) > 0 && (newLen > c.cfg.ChunkSize || len(group) >= c.cfg.MaxSentencesPerChunk) {
			groups = append(groups, strings.Join(group, " "))
			group = []string{sentence}
			groupLen = len(sentence)
			continue
		}
		group = append(group, sentence)
		groupLen = newLen
	}
	if len(group) > 0 {
		groups = append(groups, strings.Join(group, " "))
	}
	return groups
}

// characterSplit is the last-resort fixed-window split with overlap. Windows
// break preferentially at the nearest preceding space, but never earlier than
// half the window.
func (c *Chunker) characterSplit(text string) []string {
	if len(text) <= c.cfg.ChunkSize {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + c.cfg.ChunkSize
		if end > len(text) {
			end = len(text)
		}

		if end < len(text) {
			if spacePos := strings.LastIndex(text[start:end], " "); spacePos != -1 && spacePos > c.cfg.ChunkSize/2 {
				end = start + spacePos
			}
		}

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			pieces = append(pieces, piece)
		}

		if end >= len(text) {
			break
		}
		next := end - c.cfg.ChunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return pieces
}

// passesQualityGate rejects fragments that are too short, too word-poor, not
// alphabetic enough, or shouting (headers and figure labels).
func (c *Chunker) passesQualityGate(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < c.cfg.MinChunkLength {
		return false
	}
	if len(strings.Fields(trimmed)) < c.cfg.MinWordCount {
		return false
	}
	if alphaRatio(trimmed) < c.cfg.MinAlphaRatio {
		return false
	}
	if len(trimmed) > 20 && isAllUpper(trimmed) {
		return false
	}
	return true
}

func alphaRatio(text string) float64 {
	if text == "" {
		return 0
	}
	letters := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return float64(letters) / float64(total)
}

// isAllUpper reports whether text contains letters and all of them are upper-case.
func isAllUpper(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// Stats summarizes a chunking result.
type Stats struct {
	TotalChunks    int                      `json:"total_chunks"`
	ChunkTypes     map[domain.ChunkType]int `json:"chunk_types"`
	AvgChunkLength float64                  `json:"avg_chunk_length"`
	MinChunkLength int                      `json:"min_chunk_length"`
	MaxChunkLength int                      `json:"max_chunk_length"`
}

// Summarize computes distribution statistics for a chunk list.
// Parameters:
//   - chunks: chunks to summarize.
// Returns:
//   - Stats: counts per type and length distribution.
func Summarize(chunks []Chunk) Stats {
	stats := Stats{ChunkTypes: make(map[domain.ChunkType]int)}
	if len(chunks) == 0 {
		return stats
	}

	stats.TotalChunks = len(chunks)
	stats.MinChunkLength = len(chunks[0].Text)
	total := 0
	for _, chunk := range chunks {
		stats.ChunkTypes[chunk.Type]++
		n := len(chunk.Text)
		total += n
		if n < stats.MinChunkLength {
			stats.MinChunkLength = n
		}
		if n > stats.MaxChunkLength {
			stats.MaxChunkLength = n
		}
	}
	stats.AvgChunkLength = float64(total) / float64(len(chunks))
	return stats
}
