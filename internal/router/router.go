// Package router is the Router & Chunker (C1): it decides whether an
// uploaded PDF is processed synchronously or split into page-range
// chunks for parallel OCR, following pdf_router.py's page-count
// threshold routing, using ledongthuc/pdf for page counting and text
// extraction.
package router

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"legal-doc-intelligence/internal/pipelineerr"
)

var pdfMagicBytes = []byte("%PDF-")

// ChunkSpec is one page-range slice of a document to be OCR'd
// independently; chunk_index is 0-based and contiguous.
type ChunkSpec struct {
	ChunkIndex int
	PageStart  int
	PageEnd    int
}

type Router struct {
	ChunkThresholdPages int
	ChunkSizePages      int
	MaxPages            int
}

func New(chunkThresholdPages, chunkSizePages, maxPages int) *Router {
	return &Router{
		ChunkThresholdPages: chunkThresholdPages,
		ChunkSizePages:      chunkSizePages,
		MaxPages:            maxPages,
	}
}

// GetPageCount validates the file looks like a PDF and returns its page
// count, rejecting documents beyond MaxPages before any heavier work
// is scheduled.
func (r *Router) GetPageCount(pdfBytes []byte) (int, error) {
	if len(pdfBytes) == 0 {
		return 0, pipelineerr.Validation(pipelineerr.CodeEmptyDocument, "uploaded file is empty", nil)
	}
	if !bytes.HasPrefix(pdfBytes, pdfMagicBytes) {
		return 0, pipelineerr.Validation(pipelineerr.CodeInvalidPDFFormat, "file does not appear to be a valid PDF", nil)
	}

	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return 0, pipelineerr.Validation(pipelineerr.CodeInvalidPDFFormat, fmt.Sprintf("failed to parse PDF: %v", err), err)
	}

	count := reader.NumPage()
	if count == 0 {
		return 0, pipelineerr.Validation(pipelineerr.CodeEmptyDocument, "PDF contains no pages", nil)
	}
	if count > r.MaxPages {
		return 0, pipelineerr.Validation(pipelineerr.CodeOversizePDF, fmt.Sprintf("PDF has %d pages, exceeds maximum of %d", count, r.MaxPages), nil)
	}
	return count, nil
}

// ShouldChunk reports whether a document's page count warrants the
// chunked parallel path rather than synchronous single-pass OCR.
func (r *Router) ShouldChunk(pageCount int) bool {
	return pageCount > r.ChunkThresholdPages
}

// CalculateChunkSpecs divides [1..totalPages] into contiguous,
// non-overlapping page ranges of at most ChunkSizePages pages each, the
// last chunk taking any remainder.
func (r *Router) CalculateChunkSpecs(totalPages int) []ChunkSpec {
	var specs []ChunkSpec
	chunkIndex := 0
	pageStart := 1

	for pageStart <= totalPages {
		pageEnd := pageStart + r.ChunkSizePages - 1
		if pageEnd > totalPages {
			pageEnd = totalPages
		}
		specs = append(specs, ChunkSpec{
			ChunkIndex: chunkIndex,
			PageStart:  pageStart,
			PageEnd:    pageEnd,
		})
		chunkIndex++
		pageStart = pageEnd + 1
	}
	return specs
}

// ExtractPageText extracts the text of pages [pageStart, pageEnd]
// (1-based inclusive) from a source PDF's bytes, one string per page;
// a page that is missing or fails to extract yields "". It relies on
// ledongthuc/pdf's content-stream reader since this module doesn't
// carry a PDF-writing dependency, so a page range is handed on as plain
// text per page rather than as a re-packaged PDF.
func (r *Router) ExtractPageText(pdfBytes []byte, pageStart, pageEnd int) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, pipelineerr.Validation(pipelineerr.CodeInvalidPDFFormat, fmt.Sprintf("failed to parse PDF: %v", err), err)
	}

	texts := make([]string, 0, pageEnd-pageStart+1)
	for i := pageStart; i <= pageEnd; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			texts = append(texts, "")
			continue
		}
		texts = append(texts, text)
	}
	return texts, nil
}
