package visual

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fieldscope/manualqa/internal/store"
)

// ValidationResult accumulates errors and warnings for one document.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether validation passed without errors.
func (r *ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

var allowedModalities = map[string]bool{"figure": true, "table": true, "image": true}

// ValidateDoc validates the visual triple of one document directory.
// In strict mode missing files are errors; otherwise warnings. Either
// way, missing files end validation early.
func ValidateDoc(docAssetsDir string, strict bool) *ValidationResult {
	result := &ValidationResult{}
	docID := filepath.Base(docAssetsDir)

	chunkPath := filepath.Join(docAssetsDir, store.VisualChunksFileName)
	embedPath := filepath.Join(docAssetsDir, store.VisualEmbeddingsFileName)
	manifestPath := filepath.Join(docAssetsDir, store.VisualManifestFileName)

	missing := false
	for _, pair := range [][2]string{
		{store.VisualChunksFileName, chunkPath},
		{store.VisualEmbeddingsFileName, embedPath},
		{store.VisualManifestFileName, manifestPath},
	} {
		if _, err := os.Stat(pair[1]); err != nil {
			missing = true
			message := fmt.Sprintf("%s: missing required artifact file `%s`", docID, pair[0])
			if strict {
				result.Errors = append(result.Errors, message)
			} else {
				result.Warnings = append(result.Warnings, message)
			}
		}
	}
	if missing {
		return result
	}

	chunkRows := loadJSONLines(chunkPath, result, docID+":"+store.VisualChunksFileName)
	embedRows := loadJSONLines(embedPath, result, docID+":"+store.VisualEmbeddingsFileName)
	manifest := loadManifest(manifestPath, result)

	chunkIDs := validateChunkRows(docID, chunkRows, result)
	embedDims := validateEmbeddingRows(docID, embedRows, chunkIDs, result)
	validateManifest(docID, manifest, len(chunkRows), len(embedRows), embedDims, result)
	return result
}

// ValidateAll validates every document under assetsDir, or the given
// doc ids when non-empty.
func ValidateAll(assetsDir string, docIDs []string, strict bool) map[string]*ValidationResult {
	if _, err := os.Stat(assetsDir); err != nil {
		result := &ValidationResult{}
		message := "assets_dir does not exist: " + assetsDir
		if strict {
			result.Errors = append(result.Errors, message)
		} else {
			result.Warnings = append(result.Warnings, message)
		}
		return map[string]*ValidationResult{"<all>": result}
	}

	var selected []string
	if len(docIDs) > 0 {
		seen := map[string]bool{}
		for _, id := range docIDs {
			id = strings.TrimSpace(id)
			if id != "" && !seen[id] {
				seen[id] = true
				selected = append(selected, id)
			}
		}
	} else {
		entries, _ := os.ReadDir(assetsDir)
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(assetsDir, entry.Name(), store.ChunksFileName)); err == nil {
				selected = append(selected, entry.Name())
			}
		}
	}
	sort.Strings(selected)

	out := make(map[string]*ValidationResult, len(selected))
	for _, docID := range selected {
		out[docID] = ValidateDoc(filepath.Join(assetsDir, docID), strict)
	}
	return out
}

func validateChunkRows(docID string, rows []map[string]any, result *ValidationResult) map[string]bool {
	chunkIDs := map[string]bool{}
	for idx, row := range rows {
		prefix := fmt.Sprintf("%s:%s:%d", docID, store.VisualChunksFileName, idx+1)

		chunkID := stringField(row, "chunk_id")
		switch {
		case chunkID == "":
			result.errorf("%s missing chunk_id", prefix)
		case chunkIDs[chunkID]:
			result.errorf("%s duplicate chunk_id `%s`", prefix, chunkID)
		default:
			chunkIDs[chunkID] = true
		}

		if rowDoc := stringField(row, "doc_id"); rowDoc != docID {
			result.errorf("%s doc_id mismatch `%s` != `%s`", prefix, rowDoc, docID)
		}
		if page, ok := intField(row, "page"); !ok || page < 1 {
			result.errorf("%s page must be integer >= 1", prefix)
		}
		if stringField(row, "region_id") == "" {
			result.errorf("%s missing region_id", prefix)
		}
		if !isNumericList(row["bbox"], 4) {
			result.errorf("%s bbox must be [x1, y1, x2, y2] numeric", prefix)
		}
		if !allowedModalities[strings.ToLower(stringField(row, "modality"))] {
			result.errorf("%s modality must be one of figure|table|image", prefix)
		}
		if stringField(row, "asset_relpath") == "" {
			result.errorf("%s missing asset_relpath", prefix)
		}
		if linked, present := row["linked_text_chunk_ids"]; present && linked != nil {
			if !isStringList(linked) {
				result.errorf("%s linked_text_chunk_ids must be a non-empty string list", prefix)
			}
		}

		if confidence, ok := floatField(row, "vision_confidence"); ok {
			fallbackUsed, _ := row["fallback_used"].(bool)
			if confidence < LowConfidenceThreshold && !fallbackUsed {
				result.warnf("%s low vision_confidence=%.3f without fallback_used=true", prefix, confidence)
			}
		}
	}
	return chunkIDs
}

func validateEmbeddingRows(docID string, rows []map[string]any, chunkIDs map[string]bool, result *ValidationResult) map[int]bool {
	embedIDs := map[string]bool{}
	embedDims := map[int]bool{}
	for idx, row := range rows {
		prefix := fmt.Sprintf("%s:%s:%d", docID, store.VisualEmbeddingsFileName, idx+1)

		chunkID := stringField(row, "chunk_id")
		switch {
		case chunkID == "":
			result.errorf("%s missing chunk_id", prefix)
		case embedIDs[chunkID]:
			result.errorf("%s duplicate chunk_id `%s`", prefix, chunkID)
		default:
			embedIDs[chunkID] = true
		}

		if rowDoc := stringField(row, "doc_id"); rowDoc != docID {
			result.errorf("%s doc_id mismatch `%s` != `%s`", prefix, rowDoc, docID)
		}
		if stringField(row, "provider") == "" {
			result.errorf("%s missing provider", prefix)
		}
		if stringField(row, "model") == "" {
			result.errorf("%s missing model", prefix)
		}

		dim, dimOK := intField(row, "dim")
		if !dimOK || dim <= 0 {
			result.errorf("%s dim must be integer > 0", prefix)
			dimOK = false
		}

		embedding, _ := row["embedding"].([]any)
		if len(embedding) == 0 {
			result.errorf("%s embedding must be non-empty list", prefix)
		} else if !isNumericList(row["embedding"], len(embedding)) {
			result.errorf("%s embedding values must be numeric", prefix)
		}

		if dimOK && len(embedding) > 0 && len(embedding) != dim {
			result.errorf("%s embedding length %d != dim %d", prefix, len(embedding), dim)
		}
		if dimOK {
			embedDims[dim] = true
		}

		if chunkID != "" && len(chunkIDs) > 0 && !chunkIDs[chunkID] {
			result.errorf("%s chunk_id `%s` not present in %s", prefix, chunkID, store.VisualChunksFileName)
		}
	}

	if len(embedDims) > 1 {
		result.errorf("%s:%s has inconsistent dimensions: %v",
			docID, store.VisualEmbeddingsFileName, sortedInts(embedDims))
	}
	return embedDims
}

func validateManifest(docID string, manifest map[string]any, chunkCount, embedCount int, embedDims map[int]bool, result *ValidationResult) {
	if manifestDoc := stringField(manifest, "doc_id"); manifestDoc != "" && manifestDoc != docID {
		result.errorf("%s:%s doc_id mismatch `%s` != `%s`", docID, store.VisualManifestFileName, manifestDoc, docID)
	}
	if version := stringField(manifest, "contract_version"); version != "" && version != ContractVersion {
		result.warnf("%s:%s contract_version should be `%s`", docID, store.VisualManifestFileName, ContractVersion)
	}

	if count, ok := intField(manifest, "visual_chunk_count"); !ok {
		result.errorf("%s:%s visual_chunk_count must be integer >= 0", docID, store.VisualManifestFileName)
	} else if count != chunkCount {
		result.errorf("%s:%s visual_chunk_count %d != actual %d", docID, store.VisualManifestFileName, count, chunkCount)
	}
	if count, ok := intField(manifest, "embedding_count"); !ok {
		result.errorf("%s:%s embedding_count must be integer >= 0", docID, store.VisualManifestFileName)
	} else if count != embedCount {
		result.errorf("%s:%s embedding_count %d != actual %d", docID, store.VisualManifestFileName, count, embedCount)
	}

	if embedCount > 0 {
		dim, ok := intField(manifest, "embedding_dim")
		if !ok || dim <= 0 {
			result.errorf("%s:%s embedding_dim must be integer > 0", docID, store.VisualManifestFileName)
		} else if len(embedDims) > 0 && !embedDims[dim] {
			result.errorf("%s:%s embedding_dim %d != actual %v", docID, store.VisualManifestFileName, dim, sortedInts(embedDims))
		}
		if stringField(manifest, "provider") == "" {
			result.errorf("%s:%s provider is required when embeddings exist", docID, store.VisualManifestFileName)
		}
		if stringField(manifest, "model") == "" {
			result.errorf("%s:%s model is required when embeddings exist", docID, store.VisualManifestFileName)
		}
	}
}

func loadJSONLines(path string, result *ValidationResult, label string) []map[string]any {
	f, err := os.Open(path)
	if err != nil {
		result.errorf("%s missing: %s", label, path)
		return nil
	}
	defer f.Close()

	var rows []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			result.errorf("%s:%d invalid JSON: %v", label, lineNo, err)
			continue
		}
		rows = append(rows, payload)
	}
	return rows
}

func loadManifest(path string, result *ValidationResult) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		result.errorf("manifest missing: %s", path)
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		result.errorf("manifest invalid JSON: %v", err)
		return map[string]any{}
	}
	return payload
}

func stringField(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intField(row map[string]any, key string) (int, bool) {
	switch v := row[key].(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case int:
		return v, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			n := 0
			if _, err := fmt.Sscanf(trimmed, "%d", &n); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func floatField(row map[string]any, key string) (float64, bool) {
	switch v := row[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f := 0.0
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func isNumericList(value any, wantLen int) bool {
	list, ok := value.([]any)
	if !ok || len(list) != wantLen || len(list) == 0 {
		return false
	}
	for _, item := range list {
		switch item.(type) {
		case float64, int:
		default:
			return false
		}
	}
	return true
}

func isStringList(value any) bool {
	list, ok := value.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
