package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/fieldscope/manualqa/internal/model"
)

// Artifact file names inside each per-document assets directory.
const (
	ChunksFileName           = "chunks.jsonl"
	VisualChunksFileName     = "visual_chunks.jsonl"
	VisualEmbeddingsFileName = "visual_embeddings.jsonl"
	VisualManifestFileName   = "visual_manifest.json"
)

// FilesystemChunkStore writes chunks.jsonl under <base>/<doc_id>/.
// A lock file serializes writers so concurrent ingestion jobs for the
// same document cannot interleave lines.
type FilesystemChunkStore struct {
	baseDir string
}

var _ ChunkStore = (*FilesystemChunkStore)(nil)

// NewFilesystemChunkStore creates a store rooted at baseDir.
func NewFilesystemChunkStore(baseDir string) *FilesystemChunkStore {
	return &FilesystemChunkStore{baseDir: baseDir}
}

// Persist writes all chunks for a document, replacing any previous file.
func (s *FilesystemChunkStore) Persist(ctx context.Context, docID string, chunks []model.Chunk) (string, error) {
	outDir := filepath.Join(s.baseDir, docID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create assets dir: %w", err)
	}

	lock := flock.New(filepath.Join(outDir, ".chunks.lock"))
	locked, err := lock.TryLockContext(ctx, 0)
	if err != nil || !locked {
		if err == nil {
			err = fmt.Errorf("lock held by another writer")
		}
		return "", fmt.Errorf("lock chunks for %s: %w", docID, err)
	}
	defer func() { _ = lock.Unlock() }()

	outPath := filepath.Join(outDir, ChunksFileName)
	tmp := outPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, chunk := range chunks {
		if err := enc.Encode(chunk); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("encode chunk %s: %w", chunk.ChunkID, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return "", err
	}
	return outPath, nil
}

// FilesystemChunkQuery loads text chunks and visual chunks from the
// assets directory. Visual chunks come back with a visual_<modality>
// content type and their embedding merged into metadata.
type FilesystemChunkQuery struct {
	assetsDir string
}

var _ ChunkQuery = (*FilesystemChunkQuery)(nil)

// NewFilesystemChunkQuery creates a query layer over assetsDir.
func NewFilesystemChunkQuery(assetsDir string) *FilesystemChunkQuery {
	return &FilesystemChunkQuery{assetsDir: assetsDir}
}

// ListChunks returns all chunks, or only those of docID when non-empty.
func (q *FilesystemChunkQuery) ListChunks(ctx context.Context, docID string) ([]model.Chunk, error) {
	if _, err := os.Stat(q.assetsDir); os.IsNotExist(err) {
		return nil, nil
	}

	var docDirs []string
	if docID != "" {
		docDirs = []string{filepath.Join(q.assetsDir, docID)}
	} else {
		entries, err := os.ReadDir(q.assetsDir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				docDirs = append(docDirs, filepath.Join(q.assetsDir, e.Name()))
			}
		}
	}

	var chunks []model.Chunk
	for _, dir := range docDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := q.loadTextChunks(dir)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, text...)

		visual, err := q.loadVisualChunks(dir)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, visual...)
	}
	return chunks, nil
}

func (q *FilesystemChunkQuery) loadTextChunks(docDir string) ([]model.Chunk, error) {
	path := filepath.Join(docDir, ChunksFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []model.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk model.Chunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out = append(out, chunk)
	}
	return out, scanner.Err()
}

type visualRow struct {
	ChunkID       string    `json:"chunk_id"`
	DocID         string    `json:"doc_id"`
	Page          int       `json:"page"`
	RegionID      string    `json:"region_id"`
	BBox          []float64 `json:"bbox"`
	Modality      string    `json:"modality"`
	FigureID      string    `json:"figure_id"`
	TableID       string    `json:"table_id"`
	CaptionText   string    `json:"caption_text"`
	OCRText       string    `json:"ocr_text"`
	AssetRelpath  string    `json:"asset_relpath"`
	SourceChunkID string    `json:"source_chunk_id"`
}

type visualEmbeddingRow struct {
	ChunkID   string    `json:"chunk_id"`
	Embedding []float64 `json:"embedding"`
}

func (q *FilesystemChunkQuery) loadVisualChunks(docDir string) ([]model.Chunk, error) {
	path := filepath.Join(docDir, VisualChunksFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	embeddings := map[string][]float64{}
	embedPath := filepath.Join(docDir, VisualEmbeddingsFileName)
	if ef, err := os.Open(embedPath); err == nil {
		scanner := bufio.NewScanner(ef)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var row visualEmbeddingRow
			if err := json.Unmarshal([]byte(line), &row); err != nil {
				continue
			}
			if row.ChunkID != "" && len(row.Embedding) > 0 {
				embeddings[row.ChunkID] = row.Embedding
			}
		}
		_ = ef.Close()
	}

	var out []model.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row visualRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if row.ChunkID == "" || row.Page <= 0 {
			continue
		}
		docID := row.DocID
		if docID == "" {
			docID = filepath.Base(docDir)
		}
		modality := strings.ToLower(strings.TrimSpace(row.Modality))
		if modality == "" {
			modality = "image"
		}

		var parts []string
		if strings.TrimSpace(row.CaptionText) != "" {
			parts = append(parts, strings.TrimSpace(row.CaptionText))
		}
		if strings.TrimSpace(row.OCRText) != "" {
			parts = append(parts, strings.TrimSpace(row.OCRText))
		}
		contentText := strings.Join(parts, " ")
		if contentText == "" {
			contentText = modality + " visual evidence"
		}

		metadata := map[string]any{
			"modality":        modality,
			"region_id":       row.RegionID,
			"bbox":            row.BBox,
			"asset_relpath":   row.AssetRelpath,
			"source_chunk_id": row.SourceChunkID,
		}
		if vec, ok := embeddings[row.ChunkID]; ok {
			metadata["embedding"] = vec
		}

		out = append(out, model.Chunk{
			ChunkID:     row.ChunkID,
			DocID:       docID,
			ContentType: model.ContentType(model.ContentTypeVisualPrefix + modality),
			PageStart:   row.Page,
			PageEnd:     row.Page,
			ContentText: contentText,
			FigureID:    row.FigureID,
			TableID:     row.TableID,
			Caption:     strings.TrimSpace(row.CaptionText),
			Metadata:    metadata,
		})
	}
	return out, scanner.Err()
}
