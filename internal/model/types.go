// Package model holds the domain types shared across the manualqa
// pipeline: chunks, documents, citations, answers, and extracted tables.
package model

// ContentType classifies what a chunk holds.
type ContentType string

const (
	ContentTypeText          ContentType = "text"
	ContentTypeTableRow      ContentType = "table_row"
	ContentTypeFigureCaption ContentType = "figure_caption"
	ContentTypeFigureOCR     ContentType = "figure_ocr"
	ContentTypeVisionSummary ContentType = "vision_summary"

	// Visual chunks loaded back from the visual artifact files carry a
	// visual_<modality> content type (visual_table, visual_figure, ...).
	ContentTypeVisualPrefix = "visual_"
)

// Chunk is the unit of retrievable evidence. Field names match the JSONL
// chunk contract on disk.
type Chunk struct {
	ChunkID     string         `json:"chunk_id"`
	DocID       string         `json:"doc_id"`
	ContentType ContentType    `json:"content_type"`
	PageStart   int            `json:"page_start"`
	PageEnd     int            `json:"page_end"`
	ContentText string         `json:"content_text"`
	SectionPath string         `json:"section_path,omitempty"`
	FigureID    string         `json:"figure_id,omitempty"`
	TableID     string         `json:"table_id,omitempty"`
	Caption     string         `json:"caption,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Embedding returns the dense vector stored in chunk metadata, or nil.
func (c *Chunk) Embedding() []float64 {
	if c.Metadata == nil {
		return nil
	}
	raw, ok := c.Metadata["embedding"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil
			}
			out = append(out, f)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// Document identifies a manual in the catalog.
type Document struct {
	DocID    string `json:"doc_id"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
}

// Citation points at the evidence backing an answer fragment.
type Citation struct {
	DocID       string `json:"doc_id"`
	Page        int    `json:"page"`
	SectionPath string `json:"section_path,omitempty"`
	FigureID    string `json:"figure_id,omitempty"`
	TableID     string `json:"table_id,omitempty"`
}

// AnswerStatus is the terminal state of an answered question.
type AnswerStatus string

const (
	StatusOK            AnswerStatus = "ok"
	StatusNotFound      AnswerStatus = "not_found"
	StatusNeedsFollowUp AnswerStatus = "needs_follow_up"
)

// Confidence grades answer reliability.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Answer is the composed, grounded response.
type Answer struct {
	Text             string         `json:"text"`
	Status           AnswerStatus   `json:"status"`
	Confidence       Confidence     `json:"confidence"`
	Citations        []Citation     `json:"citations"`
	FollowUpQuestion string         `json:"follow_up_question,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ExtractedTableRow is one parsed row of a detected table.
type ExtractedTableRow struct {
	TableID    string   `json:"table_id"`
	PageNumber int      `json:"page_number"`
	RowIndex   int      `json:"row_index"`
	Headers    []string `json:"headers"`
	RowCells   []string `json:"row_cells"`
	Units      []string `json:"units"`
	RawText    string   `json:"raw_text"`
}

// ExtractedTable groups the rows detected in one tabular block.
type ExtractedTable struct {
	TableID    string              `json:"table_id"`
	PageNumber int                 `json:"page_number"`
	Rows       []ExtractedTableRow `json:"rows"`
	RawText    string              `json:"raw_text"`
}

// FigureRegion is a raster-image region on a page with a normalized bbox.
type FigureRegion struct {
	FigureID   string     `json:"figure_id"`
	BBox       [4]float64 `json:"bbox"`
	PageNumber int        `json:"page_number"`
}

// ImageBlock is a raster-image block in page coordinates (points).
type ImageBlock struct {
	X0, Y0, X1, Y1 float64
}

// PageContent is the parsed content of a single PDF page handed to the
// page processor. Width and Height are the page media box dimensions in
// points; ImageBlocks are the raw image placements the parser found,
// normalized into Regions before page processing.
type PageContent struct {
	PageNumber  int
	Text        string
	Width       float64
	Height      float64
	ImageBlocks []ImageBlock
	Regions     []FigureRegion
}
