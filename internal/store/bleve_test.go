package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveKeywordIndexAndSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.bleve")
	idx, err := NewBleveKeyword(path)
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	chunks := keywordCorpus()
	require.NoError(t, idx.IndexChunks(ctx, chunks))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	hits, err := idx.Search(ctx, "wiring terminal", chunks, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c2", hits[0].Chunk.ChunkID)
}

func TestBleveKeywordRestrictsToCallerChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.bleve")
	idx, err := NewBleveKeyword(path)
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	chunks := keywordCorpus()
	require.NoError(t, idx.IndexChunks(ctx, chunks))

	// Only pass the gear-100 chunk; pump-900 hits must be filtered out.
	hits, err := idx.Search(ctx, "torque", chunks[2:], 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "gear-100", h.Chunk.DocID)
	}
}

func TestBleveKeywordDeleteDoc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bm25.bleve")
	idx, err := NewBleveKeyword(path)
	require.NoError(t, err)
	defer idx.Close()
	ctx := context.Background()

	chunks := keywordCorpus()
	require.NoError(t, idx.IndexChunks(ctx, chunks))
	require.NoError(t, idx.DeleteDoc(ctx, "pump-900"))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
