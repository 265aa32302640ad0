package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/model"
)

func sampleChunks(docID string) []model.Chunk {
	return []model.Chunk{
		{
			ChunkID:     docID + ":text:00001",
			DocID:       docID,
			ContentType: model.ContentTypeText,
			PageStart:   1,
			PageEnd:     1,
			ContentText: "Install the pump on a level surface.",
		},
		{
			ChunkID:     docID + ":table:00002",
			DocID:       docID,
			ContentType: model.ContentTypeTableRow,
			PageStart:   2,
			PageEnd:     2,
			ContentText: "Torque | 25 | Nm",
			TableID:     "tbl_" + docID + "_2_000",
			Metadata:    map[string]any{"embedding": []float64{0.1, 0.2}},
		},
	}
}

func TestPersistAndListRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	path, err := NewFilesystemChunkStore(dir).Persist(ctx, "pump-900", sampleChunks("pump-900"))
	require.NoError(t, err)
	assert.FileExists(t, path)

	chunks, err := NewFilesystemChunkQuery(dir).ListChunks(ctx, "pump-900")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "pump-900:text:00001", chunks[0].ChunkID)
	assert.Equal(t, model.ContentTypeTableRow, chunks[1].ContentType)
	assert.Equal(t, []float64{0.1, 0.2}, chunks[1].Embedding())
}

func TestListChunksAllDocs(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fs := NewFilesystemChunkStore(dir)
	_, err := fs.Persist(ctx, "a", sampleChunks("a"))
	require.NoError(t, err)
	_, err = fs.Persist(ctx, "b", sampleChunks("b"))
	require.NoError(t, err)

	chunks, err := NewFilesystemChunkQuery(dir).ListChunks(ctx, "")
	require.NoError(t, err)
	assert.Len(t, chunks, 4)
}

func TestListChunksMissingDirIsEmpty(t *testing.T) {
	chunks, err := NewFilesystemChunkQuery(filepath.Join(t.TempDir(), "nope")).ListChunks(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestListChunksLoadsVisualArtifacts(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "pump-900")
	require.NoError(t, os.MkdirAll(docDir, 0o755))

	visual := `{"chunk_id":"pump-900:visual:00001","doc_id":"pump-900","page":7,"region_id":"fig_pump-900_p0007_000","bbox":[0.1,0.1,0.5,0.5],"modality":"figure","figure_id":"fig_pump-900_p0007_000","caption_text":"Figure 3: Wiring","ocr_text":"","asset_relpath":"generated/page_0007_fig_pump-900_p0007_000.png","source_chunk_id":"pump-900:cap:00009"}
{"chunk_id":"","doc_id":"pump-900","page":7}
{"chunk_id":"pump-900:visual:00002","doc_id":"pump-900","page":0}
`
	embeds := `{"chunk_id":"pump-900:visual:00001","doc_id":"pump-900","provider":"derived","model":"chunk-metadata","dim":2,"embedding":[0.3,0.4]}
`
	require.NoError(t, os.WriteFile(filepath.Join(docDir, VisualChunksFileName), []byte(visual), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docDir, VisualEmbeddingsFileName), []byte(embeds), 0o644))

	chunks, err := NewFilesystemChunkQuery(dir).ListChunks(context.Background(), "pump-900")
	require.NoError(t, err)
	require.Len(t, chunks, 1, "rows with empty id or non-positive page are skipped")

	c := chunks[0]
	assert.Equal(t, model.ContentType("visual_figure"), c.ContentType)
	assert.Equal(t, 7, c.PageStart)
	assert.Equal(t, "Figure 3: Wiring", c.ContentText)
	assert.Equal(t, "fig_pump-900_p0007_000", c.FigureID)
	assert.Equal(t, []float64{0.3, 0.4}, c.Embedding())
}

func TestVisualChunkWithoutTextFallsBackToModality(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "d")
	require.NoError(t, os.MkdirAll(docDir, 0o755))
	visual := `{"chunk_id":"d:visual:00001","doc_id":"d","page":1,"modality":"table"}
`
	require.NoError(t, os.WriteFile(filepath.Join(docDir, VisualChunksFileName), []byte(visual), 0o644))

	chunks, err := NewFilesystemChunkQuery(dir).ListChunks(context.Background(), "d")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "table visual evidence", chunks[0].ContentText)
}
