package store

import (
	"context"
	"sort"
	"strings"

	"github.com/fieldscope/manualqa/internal/embed"
	"github.com/fieldscope/manualqa/internal/model"
)

// MetadataVectorSearcher scores chunks against the query using the
// embeddings stored in chunk metadata. It needs no persistent index,
// which makes it the default backend: whatever the ingestion pass
// embedded is immediately searchable.
type MetadataVectorSearcher struct {
	embedder embed.Embedder
}

var _ VectorSearcher = (*MetadataVectorSearcher)(nil)

// NewMetadataVectorSearcher creates a metadata-backed vector searcher.
func NewMetadataVectorSearcher(embedder embed.Embedder) *MetadataVectorSearcher {
	return &MetadataVectorSearcher{embedder: embedder}
}

// Search embeds the query and ranks chunks by cosine similarity.
// Chunks without a stored embedding are skipped.
func (m *MetadataVectorSearcher) Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error) {
	if strings.TrimSpace(query) == "" || len(chunks) == 0 || topK <= 0 {
		return nil, nil
	}

	raw, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	qVec := embed.NormalizeVector(raw)

	var scored []ScoredChunk
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stored := chunk.Embedding()
		if len(stored) == 0 {
			continue
		}
		cVec := embed.NormalizeVector(embed.FromFloat64(stored))
		score := embed.Cosine(qVec, cVec)
		if score > 0 {
			scored = append(scored, ScoredChunk{Chunk: chunk, Score: score, Source: "vector"})
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Chunk.ChunkID < scored[b].Chunk.ChunkID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
