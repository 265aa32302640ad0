package visual

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/store"
)

// Content types that yield a visual region.
var eligibleContentTypes = map[string]bool{
	"figure_caption": true,
	"figure_ocr":     true,
	"vision_summary": true,
	"table":          true,
	"table_row":      true,
}

// BuildArtifacts derives the visual triple from a document's chunk
// rows. Only metadata already on the chunks is used; no model calls.
func BuildArtifacts(docID string, chunks []model.Chunk) ([]Chunk, []EmbeddingRow, Manifest) {
	textChunkIDsByPage := map[int][]string{}
	for _, chunk := range chunks {
		if chunk.ContentType != model.ContentTypeText {
			continue
		}
		if chunk.PageStart <= 0 || chunk.ChunkID == "" {
			continue
		}
		textChunkIDsByPage[chunk.PageStart] = append(textChunkIDsByPage[chunk.PageStart], chunk.ChunkID)
	}

	var visualRows []Chunk
	var embeddingRows []EmbeddingRow
	visualIndex := 0

	for _, chunk := range chunks {
		contentType := strings.ToLower(strings.TrimSpace(string(chunk.ContentType)))
		if !eligibleContentTypes[contentType] || chunk.ChunkID == "" {
			continue
		}

		visualIndex++
		page := chunk.PageStart
		if page <= 0 {
			page = chunk.PageEnd
			if page < 1 {
				page = 1
			}
		}

		modality := "image"
		switch {
		case contentType == "table" || contentType == "table_row":
			modality = "table"
		case strings.Contains(contentType, "figure"):
			modality = "figure"
		}

		regionID := strings.TrimSpace(chunk.FigureID)
		if regionID == "" {
			regionID = strings.TrimSpace(chunk.TableID)
		}
		if regionID == "" {
			regionID = fmt.Sprintf("r%04d", visualIndex)
		}

		snippet := strings.TrimSpace(chunk.ContentText)
		captionText := strings.TrimSpace(chunk.Caption)
		if captionText == "" && modality == "figure" {
			captionText = truncate(snippet, 240)
		}
		ocrText := ""
		if contentType == "figure_ocr" || contentType == "vision_summary" {
			ocrText = snippet
		}

		linked := textChunkIDsByPage[page]
		if len(linked) > 3 {
			linked = linked[:3]
		}

		row := Chunk{
			ChunkID:            fmt.Sprintf("%s:visual:%05d", docID, visualIndex),
			DocID:              docID,
			Page:               page,
			RegionID:           regionID,
			BBox:               bboxFromMetadata(chunk.Metadata),
			Modality:           modality,
			FigureID:           chunk.FigureID,
			TableID:            chunk.TableID,
			CaptionText:        captionText,
			OCRText:            ocrText,
			LinkedTextChunkIDs: linked,
			AssetRelpath:       fmt.Sprintf("generated/page_%04d_%s.png", page, regionID),
			VisionConfidence:   0.5,
			FallbackUsed:       false,
			SourceChunkID:      chunk.ChunkID,
		}
		visualRows = append(visualRows, row)

		if embedding := chunk.Embedding(); len(embedding) > 0 {
			embeddingRows = append(embeddingRows, EmbeddingRow{
				ChunkID:   row.ChunkID,
				DocID:     docID,
				Provider:  metadataString(chunk.Metadata, "embedding_provider", "derived"),
				Model:     metadataString(chunk.Metadata, "embedding_model", "chunk-metadata"),
				Dim:       len(embedding),
				Embedding: embedding,
			})
		}
	}

	manifest := buildManifest(docID, visualRows, embeddingRows)
	return visualRows, embeddingRows, manifest
}

func buildManifest(docID string, visualRows []Chunk, embeddingRows []EmbeddingRow) Manifest {
	manifest := Manifest{
		ContractVersion:  ContractVersion,
		DocID:            docID,
		VisualChunkCount: len(visualRows),
		EmbeddingCount:   len(embeddingRows),
		Provider:         "derived",
		Model:            "chunk-metadata",
	}

	dims := map[int]bool{}
	for _, row := range embeddingRows {
		dims[row.Dim] = true
	}
	if len(embeddingRows) > 0 && len(dims) == 1 {
		manifest.EmbeddingDim = embeddingRows[0].Dim
		manifest.Provider = embeddingRows[0].Provider
		manifest.Model = embeddingRows[0].Model
	} else if len(dims) > 1 {
		manifest.Warnings = []string{"inconsistent embedding dimensions in source metadata"}
	}
	return manifest
}

// WriteArtifacts persists the triple under the document assets dir.
func WriteArtifacts(docAssetsDir string, visualRows []Chunk, embeddingRows []EmbeddingRow, manifest Manifest) error {
	if err := os.MkdirAll(docAssetsDir, 0o755); err != nil {
		return qaerrors.New(qaerrors.ErrCodeAssetWriteFailed, "create assets dir", err)
	}
	if err := writeJSONL(filepath.Join(docAssetsDir, store.VisualChunksFileName), toAnySlice(visualRows)); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(docAssetsDir, store.VisualEmbeddingsFileName), toAnySlice(embeddingRows)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(docAssetsDir, store.VisualManifestFileName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return qaerrors.New(qaerrors.ErrCodeAssetWriteFailed, "write visual manifest", err)
	}
	return nil
}

func writeJSONL(path string, rows []any) error {
	f, err := os.Create(path)
	if err != nil {
		return qaerrors.New(qaerrors.ErrCodeAssetWriteFailed, "write "+filepath.Base(path), err)
	}
	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			f.Close()
			return qaerrors.New(qaerrors.ErrCodeAssetWriteFailed, "encode "+filepath.Base(path), err)
		}
	}
	return f.Close()
}

func toAnySlice[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i := range rows {
		out[i] = rows[i]
	}
	return out
}

func bboxFromMetadata(metadata map[string]any) []float64 {
	if metadata != nil {
		if raw, ok := metadata["bbox"]; ok {
			switch v := raw.(type) {
			case []float64:
				if len(v) == 4 {
					return v
				}
			case []any:
				out := make([]float64, 0, len(v))
				for _, item := range v {
					f, ok := item.(float64)
					if !ok {
						out = nil
						break
					}
					out = append(out, f)
				}
				if len(out) == 4 {
					return out
				}
			}
		}
	}
	return []float64{0, 0, 1, 1}
}

func metadataString(metadata map[string]any, key, fallback string) string {
	if metadata != nil {
		if v, ok := metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return fallback
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
