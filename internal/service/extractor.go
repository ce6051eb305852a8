package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kterao/paperbase/internal/chunking"
)

// Extraction sentinel errors. ErrSourceUnreadable marks a document the
// extractor could not open at all; ErrPartialExtraction marks one where some
// pages yielded nothing.
var (
	ErrSourceUnreadable  = errors.New("source document is unreadable")
	ErrPartialExtraction = errors.New("some pages could not be extracted")
)

// ExtractorService wraps the external text extraction service. It returns
// layout-preserving page structures when the source has a text layer, or
// flat OCR text when it does not.
type ExtractorService struct {
	client   *resty.Client
	forceOCR bool
}

// ExtractorConfig holds configuration for the extractor client
type ExtractorConfig struct {
	BaseURL  string
	Timeout  time.Duration
	ForceOCR bool
}

// NewExtractorService creates a new extractor client
func NewExtractorService(cfg *ExtractorConfig) *ExtractorService {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetHeader("Content-Type", "application/json")

	return &ExtractorService{
		client:   client,
		forceOCR: cfg.ForceOCR,
	}
}

type extractRequest struct {
	FilePath string `json:"file_path"`
	ForceOCR bool   `json:"force_ocr"`
}

type extractBlock struct {
	Text string    `json:"text"`
	BBox []float64 `json:"bbox,omitempty"`
}

type extractPage struct {
	PageNumber int            `json:"page_number"`
	Structure  string         `json:"structure"`
	Text       string         `json:"text"`
	Blocks     []extractBlock `json:"blocks,omitempty"`
	Empty      bool           `json:"empty,omitempty"`
}

type extractResponse struct {
	Pages   []extractPage `json:"pages"`
	UsedOCR bool          `json:"used_ocr"`
	Detail  string        `json:"detail,omitempty"`
}

// ExtractionResult carries per-page structures plus extraction provenance
type ExtractionResult struct {
	Pages   []chunking.PageStructure
	UsedOCR bool
}

// Extract pulls per-page text for a stored document.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filePath: path of the source file as known to the extractor.
// Returns:
//   - *ExtractionResult: page structures in page order.
//   - error: ErrSourceUnreadable if nothing could be extracted,
//     ErrPartialExtraction (wrapped, result still returned) if some pages
//     were empty, or a transport error.
func (s *ExtractorService) Extract(ctx context.Context, filePath string) (*ExtractionResult, error) {
	req := extractRequest{
		FilePath: filePath,
		ForceOCR: s.forceOCR,
	}

	var resp extractResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post("/extract")

	if err != nil {
		return nil, fmt.Errorf("failed to call extractor: %w", err)
	}

	switch httpResp.StatusCode() {
	case 200:
		// fall through
	case 422:
		return nil, fmt.Errorf("%w: %s", ErrSourceUnreadable, resp.Detail)
	default:
		if resp.Detail != "" {
			return nil, fmt.Errorf("extractor error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("extractor error: status %d", httpResp.StatusCode())
	}

	if len(resp.Pages) == 0 {
		return nil, ErrSourceUnreadable
	}

	result := &ExtractionResult{
		Pages:   make([]chunking.PageStructure, 0, len(resp.Pages)),
		UsedOCR: resp.UsedOCR,
	}

	emptyPages := 0
	for _, p := range resp.Pages {
		if p.Empty || (p.Text == "" && len(p.Blocks) == 0) {
			emptyPages++
		}
		page := chunking.PageStructure{
			PageNumber: p.PageNumber,
			Text:       p.Text,
		}
		switch p.Structure {
		case "preserved":
			page.Structure = chunking.StructurePreserved
		default:
			page.Structure = chunking.StructureFlat
		}
		for _, b := range p.Blocks {
			page.Blocks = append(page.Blocks, chunking.Block{
				Text: b.Text,
				BBox: b.BBox,
			})
		}
		result.Pages = append(result.Pages, page)
	}

	if emptyPages == len(resp.Pages) {
		return nil, ErrSourceUnreadable
	}
	if emptyPages > 0 {
		return result, fmt.Errorf("%w: %d of %d pages empty", ErrPartialExtraction, emptyPages, len(resp.Pages))
	}

	return result, nil
}
