// Package visual generates and validates the per-document visual
// artifact triple: visual_chunks.jsonl, visual_embeddings.jsonl, and
// visual_manifest.json. The files form a contract consumed by the UI
// and the retrieval loader, so generation and validation share one set
// of field rules.
package visual

// ContractVersion is the manifest version this package writes.
const ContractVersion = "visual-v1"

// LowConfidenceThreshold flags vision regions that should have used a
// fallback path.
const LowConfidenceThreshold = 0.45

// Chunk is one visual region row in visual_chunks.jsonl.
type Chunk struct {
	ChunkID            string    `json:"chunk_id"`
	DocID              string    `json:"doc_id"`
	Page               int       `json:"page"`
	RegionID           string    `json:"region_id"`
	BBox               []float64 `json:"bbox"`
	Modality           string    `json:"modality"`
	FigureID           string    `json:"figure_id,omitempty"`
	TableID            string    `json:"table_id,omitempty"`
	CaptionText        string    `json:"caption_text"`
	OCRText            string    `json:"ocr_text"`
	LinkedTextChunkIDs []string  `json:"linked_text_chunk_ids"`
	AssetRelpath       string    `json:"asset_relpath"`
	VisionConfidence   float64   `json:"vision_confidence"`
	FallbackUsed       bool      `json:"fallback_used"`
	SourceChunkID      string    `json:"source_chunk_id"`
}

// EmbeddingRow is one row in visual_embeddings.jsonl.
type EmbeddingRow struct {
	ChunkID   string    `json:"chunk_id"`
	DocID     string    `json:"doc_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
}

// Manifest is visual_manifest.json.
type Manifest struct {
	ContractVersion  string   `json:"contract_version"`
	DocID            string   `json:"doc_id"`
	VisualChunkCount int      `json:"visual_chunk_count"`
	EmbeddingCount   int      `json:"embedding_count"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	EmbeddingDim     int      `json:"embedding_dim"`
	Warnings         []string `json:"warnings,omitempty"`
}
