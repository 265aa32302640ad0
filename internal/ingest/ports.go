// Package ingest turns a PDF manual into persisted chunk and visual
// artifacts: parallel page processing (text, OCR, table rows, figure
// captions, vision summaries), a two-pass embedding stage, and a
// background job manager for asynchronous ingestion runs.
package ingest

import (
	"context"

	"github.com/fieldscope/manualqa/internal/model"
)

// Parser turns a PDF file into per-page content.
type Parser interface {
	Parse(ctx context.Context, pdfPath string) ([]model.PageContent, error)
}

// OCR extracts text from a rendered page image.
type OCR interface {
	ExtractText(ctx context.Context, pdfPath string, pageNumber int) (string, error)
}

// Vision produces a textual summary of a page's visual content.
type Vision interface {
	PageInsights(ctx context.Context, pdfPath string, pageNumber int) (string, error)
}

// NoopOCR satisfies OCR without an engine. Pages keep whatever text the
// parser produced.
type NoopOCR struct{}

// ExtractText always returns empty text.
func (NoopOCR) ExtractText(context.Context, string, int) (string, error) {
	return "", nil
}
