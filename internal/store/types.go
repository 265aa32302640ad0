// Package store persists and retrieves chunks: a filesystem JSONL store,
// keyword indexes (in-memory BM25, bleve, SQLite FTS5), an HNSW dense
// vector index, and a SQLite document catalog.
package store

import (
	"context"
	"fmt"

	"github.com/fieldscope/manualqa/internal/model"
)

// ScoredChunk pairs a chunk with a retrieval score from one leg.
type ScoredChunk struct {
	Chunk  model.Chunk
	Score  float64
	Source string // "keyword" or "vector"
}

// KeywordSearcher scores chunks lexically against a query.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error)
}

// VectorSearcher scores chunks by dense similarity against a query.
type VectorSearcher interface {
	Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error)
}

// ChunkStore persists chunks for a document.
type ChunkStore interface {
	Persist(ctx context.Context, docID string, chunks []model.Chunk) (string, error)
}

// ChunkQuery loads chunks back, optionally filtered by document.
type ChunkQuery interface {
	ListChunks(ctx context.Context, docID string) ([]model.Chunk, error)
}

// BM25Config holds BM25 scoring parameters.
type BM25Config struct {
	K1 float64
	B  float64
}

// DefaultBM25Config returns the standard BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorIndexConfig configures the HNSW index.
type VectorIndexConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfSearch       int
	EfConstruction int
}

// DefaultVectorIndexConfig returns tuned defaults for manual corpora.
func DefaultVectorIndexConfig(dims int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions:     dims,
		Metric:         "cos",
		M:              32,
		EfSearch:       64,
		EfConstruction: 128,
	}
}

// ErrDimensionMismatch reports a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
