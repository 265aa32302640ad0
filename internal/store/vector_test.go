package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscope/manualqa/internal/embed"
	"github.com/fieldscope/manualqa/internal/model"
)

func embeddedCorpus(t *testing.T, e embed.Embedder) []model.Chunk {
	t.Helper()
	chunks := []model.Chunk{
		{ChunkID: "v1", DocID: "pump-900", ContentText: "tightening torque coupling bolts"},
		{ChunkID: "v2", DocID: "pump-900", ContentText: "wiring diagram terminal connector"},
		{ChunkID: "v3", DocID: "pump-900", ContentText: "no embedding stored"},
	}
	for i := range chunks[:2] {
		vec, err := e.Embed(context.Background(), chunks[i].ContentText)
		require.NoError(t, err)
		chunks[i].Metadata = map[string]any{"embedding": embed.ToFloat64(vec)}
	}
	return chunks
}

func TestMetadataVectorSearcher(t *testing.T) {
	e := embed.NewHashedEmbedder(128)
	chunks := embeddedCorpus(t, e)
	s := NewMetadataVectorSearcher(e)

	hits, err := s.Search(context.Background(), "coupling torque", chunks, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "v1", hits[0].Chunk.ChunkID)
	assert.Equal(t, "vector", hits[0].Source)
	for _, h := range hits {
		assert.NotEqual(t, "v3", h.Chunk.ChunkID, "chunks without embeddings are skipped")
	}
}

func TestMetadataVectorSearcherEmptyQuery(t *testing.T) {
	e := embed.NewHashedEmbedder(128)
	s := NewMetadataVectorSearcher(e)
	hits, err := s.Search(context.Background(), "   ", embeddedCorpus(t, e), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWIndexAddSearchDelete(t *testing.T) {
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(4))
	require.NoError(t, err)
	ctx := context.Background()

	err = idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Count())

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)

	require.NoError(t, idx.Delete(ctx, []string{"a"}))
	assert.Equal(t, 1, idx.Count())
	hits, err = idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.ID)
	}
}

func TestHNSWIndexDimensionMismatch(t *testing.T) {
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(4))
	require.NoError(t, err)
	err = idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDimensionMismatch{Expected: 4, Got: 2})
}

func TestHNSWVectorSearcher(t *testing.T) {
	e := embed.NewHashedEmbedder(64)
	idx, err := NewHNSWIndex(DefaultVectorIndexConfig(64))
	require.NoError(t, err)
	ctx := context.Background()

	chunks := []model.Chunk{
		{ChunkID: "h1", ContentText: "tightening torque coupling bolts"},
		{ChunkID: "h2", ContentText: "wiring diagram terminal connector"},
	}
	for _, c := range chunks {
		vec, err := e.Embed(ctx, c.ContentText)
		require.NoError(t, err)
		require.NoError(t, idx.Add(ctx, []string{c.ChunkID}, [][]float32{vec}))
	}

	s := NewHNSWVectorSearcher(idx, e)
	hits, err := s.Search(ctx, "torque for coupling bolts", chunks, 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "h1", hits[0].Chunk.ChunkID)

	// Restricting the chunk set filters index hits.
	hits, err = s.Search(ctx, "torque for coupling bolts", chunks[1:], 2)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "h2", h.Chunk.ChunkID)
	}
}
