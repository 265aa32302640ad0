package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/extract"
	"github.com/fieldscope/manualqa/internal/model"
)

// pageOutput is the result of processing one page, reassembled in page
// order by the orchestrator. Adapter failures land in warnings; the
// page keeps whatever content the remaining adapters produced.
type pageOutput struct {
	pageNumber int
	chunks     []model.Chunk
	byType     map[string]int
	warnings   []string
}

type pageProcessor struct {
	docID               string
	pdfPath             string
	ocr                 OCR
	tables              *extract.TableExtractor
	vision              Vision
	budget              *VisionBudget
	ocrMinChars         int
	visionTextThreshold int
}

func (p *pageProcessor) process(ctx context.Context, page model.PageContent) pageOutput {
	out := pageOutput{pageNumber: page.PageNumber, byType: map[string]int{}}
	add := func(chunk model.Chunk) {
		out.chunks = append(out.chunks, chunk)
		out.byType[string(chunk.ContentType)]++
	}
	warn := func(adapter string, err error) {
		out.warnings = append(out.warnings,
			fmt.Sprintf("%s failed on page %d (%s); continuing without it.", adapter, page.PageNumber, qaerrors.Kind(err)))
	}

	pageText := strings.TrimSpace(page.Text)
	pageOCRText := ""

	if extract.CompactLen(pageText) < p.ocrMinChars {
		text, err := p.ocr.ExtractText(ctx, p.pdfPath, page.PageNumber)
		if err != nil {
			warn("OCR", err)
		} else {
			pageOCRText = strings.TrimSpace(text)
		}
	}

	if pageText != "" {
		add(p.newChunk(model.ContentTypeText, page.PageNumber, pageText))
	}
	if pageOCRText != "" {
		add(p.newChunk(model.ContentTypeFigureOCR, page.PageNumber, pageOCRText))
	}

	tableSource := pageText
	if tableSource == "" {
		tableSource = pageOCRText
	}
	for _, table := range p.tables.Extract(tableSource, page.PageNumber, p.docID) {
		for rowIdx, row := range table.Rows {
			chunk := p.newChunk(model.ContentTypeTableRow, page.PageNumber, rowText(row))
			chunk.TableID = table.TableID
			chunk.Metadata = map[string]any{
				"table_id":  table.TableID,
				"row_index": rowIdx,
				"headers":   nonNil(row.Headers),
				"row_cells": nonNil(row.RowCells),
				"units":     padUnits(row.Units, len(row.RowCells)),
			}
			add(chunk)
		}
	}

	captions := extract.FigureCaptions(pageText)
	for idx, caption := range captions {
		figureID := fmt.Sprintf("fig-p%04d-%03d", page.PageNumber, idx+1)
		var bbox []float64
		if idx < len(page.Regions) {
			bbox = page.Regions[idx].BBox[:]
		}

		chunk := p.newChunk(model.ContentTypeFigureCaption, page.PageNumber, caption)
		chunk.FigureID = figureID
		chunk.Caption = caption
		if bbox != nil {
			chunk.Metadata = map[string]any{"bbox": bbox}
		}
		add(chunk)

		figureOCRText := pageOCRText
		if figureOCRText == "" {
			text, err := p.ocr.ExtractText(ctx, p.pdfPath, page.PageNumber)
			if err != nil {
				warn("OCR", err)
			} else {
				figureOCRText = strings.TrimSpace(text)
			}
		}
		if figureOCRText != "" {
			ocrChunk := p.newChunk(model.ContentTypeFigureOCR, page.PageNumber, figureOCRText)
			ocrChunk.FigureID = figureID
			add(ocrChunk)
		}
	}

	if p.vision != nil && p.isVisionCandidate(pageText, pageOCRText, captions) && p.budget.Take() {
		summary, err := p.vision.PageInsights(ctx, p.pdfPath, page.PageNumber)
		if err != nil {
			p.budget.Refund()
			warn("Vision", err)
		} else if summary = strings.TrimSpace(summary); summary == "" {
			p.budget.Refund()
		} else {
			add(p.newChunk(model.ContentTypeVisionSummary, page.PageNumber, summary))
		}
	}

	return out
}

// Vision candidates: pages with figure captions, pages dense with
// numeric callouts, or pages where neither parsed text nor OCR produced
// enough characters.
func (p *pageProcessor) isVisionCandidate(pageText, pageOCRText string, captions []string) bool {
	if len(captions) > 0 {
		return true
	}
	if numericCalloutDense(pageText) {
		return true
	}
	return extract.CompactLen(pageText) < p.visionTextThreshold &&
		extract.CompactLen(pageOCRText) < p.visionTextThreshold
}

var digitPattern = regexp.MustCompile(`\d`)

// numericCalloutDense flags pages that are mostly numbers with little
// prose: at least five numeric tokens and at most eight prose words of
// four or more characters.
func numericCalloutDense(text string) bool {
	numeric, prose := 0, 0
	for _, token := range strings.Fields(text) {
		if digitPattern.MatchString(token) {
			numeric++
		} else if len([]rune(token)) >= 4 {
			prose++
		}
	}
	return numeric >= 5 && prose <= 8
}

func (p *pageProcessor) newChunk(contentType model.ContentType, pageNumber int, text string) model.Chunk {
	return model.Chunk{
		ChunkID:     uuid.NewString(),
		DocID:       p.docID,
		ContentType: contentType,
		PageStart:   pageNumber,
		PageEnd:     pageNumber,
		ContentText: text,
	}
}

// rowText renders a table row the same way the extractor renders table
// raw_text: `h1 | h2 || c1 | c2`, or just the cells without headers.
func rowText(row model.ExtractedTableRow) string {
	if len(row.Headers) > 0 {
		return strings.Join(row.Headers, " | ") + " || " + strings.Join(row.RowCells, " | ")
	}
	if row.RawText != "" {
		return row.RawText
	}
	return strings.Join(row.RowCells, " | ")
}

// padUnits aligns the units list with the row cells, filling missing
// trailing entries with empty strings.
func padUnits(units []string, n int) []string {
	out := make([]string, n)
	copy(out, units)
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
