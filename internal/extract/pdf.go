package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/model"
)

// PDFParser extracts per-page plain text from a PDF file. Pages that
// fail text extraction come back empty and fall through to the OCR
// gate downstream.
type PDFParser struct{}

// NewPDFParser creates a PDF page parser.
func NewPDFParser() *PDFParser { return &PDFParser{} }

// Parse reads every page of the PDF at pdfPath.
func (p *PDFParser) Parse(ctx context.Context, pdfPath string) ([]model.PageContent, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, qaerrors.ParseError(fmt.Sprintf("open PDF %s", pdfPath), err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]model.PageContent, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, model.PageContent{PageNumber: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		width, height := pageSize(page.V)
		pages = append(pages, model.PageContent{
			PageNumber:  i,
			Text:        strings.TrimSpace(text),
			Width:       width,
			Height:      height,
			ImageBlocks: imageBlocks(page, width, height),
		})
	}
	return pages, nil
}

// pageSize resolves the media box, walking up the page tree for
// inherited entries, and returns width and height in points.
func pageSize(v pdf.Value) (float64, float64) {
	box := v.Key("MediaBox")
	for depth := 0; box.Kind() != pdf.Array && v.Key("Parent").Kind() == pdf.Dict && depth < 8; depth++ {
		v = v.Key("Parent")
		box = v.Key("MediaBox")
	}
	if box.Kind() != pdf.Array || box.Len() != 4 {
		return 0, 0
	}
	return box.Index(2).Float64() - box.Index(0).Float64(),
		box.Index(3).Float64() - box.Index(1).Float64()
}

// imageBlocks collects drawn rectangles covering at least a tenth of
// the page as candidate figure placements. Content parsing on damaged
// pages is absorbed; such pages just have no blocks.
func imageBlocks(page pdf.Page, width, height float64) (blocks []model.ImageBlock) {
	if width <= 0 || height <= 0 {
		return nil
	}
	defer func() {
		if recover() != nil {
			blocks = nil
		}
	}()
	minArea := 0.10 * width * height
	for _, r := range page.Content().Rect {
		w, h := r.Max.X-r.Min.X, r.Max.Y-r.Min.Y
		if w*h >= minArea {
			blocks = append(blocks, model.ImageBlock{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y})
		}
	}
	return blocks
}

// PageImage returns the first JPEG image embedded on the page, or nil
// when the page carries none the reader can hand back.
func PageImage(pdfPath string, pageNumber int) ([]byte, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, qaerrors.ParseError(fmt.Sprintf("open PDF %s", pdfPath), err)
	}
	defer f.Close()

	if pageNumber < 1 || pageNumber > reader.NumPage() {
		return nil, nil
	}
	page := reader.Page(pageNumber)
	if page.V.IsNull() {
		return nil, nil
	}

	xobjects := page.V.Key("Resources").Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil, nil
	}
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" || !isDCTEncoded(obj.Key("Filter")) {
			continue
		}
		data := streamBytes(obj)
		// JPEG streams open with the SOI marker.
		if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8 {
			return data, nil
		}
	}
	return nil, nil
}

func isDCTEncoded(filter pdf.Value) bool {
	switch filter.Kind() {
	case pdf.Name:
		return filter.Name() == "DCTDecode"
	case pdf.Array:
		for i := 0; i < filter.Len(); i++ {
			if filter.Index(i).Name() == "DCTDecode" {
				return true
			}
		}
	}
	return false
}

// streamBytes reads a stream's content, absorbing reader panics from
// filters the library cannot decode.
func streamBytes(v pdf.Value) (data []byte) {
	defer func() {
		if recover() != nil {
			data = nil
		}
	}()
	rd := v.Reader()
	defer rd.Close()
	b, err := io.ReadAll(rd)
	if err != nil {
		return nil
	}
	return b
}
