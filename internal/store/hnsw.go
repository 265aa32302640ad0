package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/fieldscope/manualqa/internal/embed"
	"github.com/fieldscope/manualqa/internal/model"
)

// HNSWIndex stores chunk embeddings in a pure-Go HNSW graph with a
// string-to-key mapping layer. Deletion is lazy: removed ids drop out of
// the mapping but stay in the graph until a rebuild.
type HNSWIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	cfg     VectorIndexConfig
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	closed  bool
}

// NewHNSWIndex creates an HNSW index.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("hnsw dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 32
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		cfg:    cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors. Existing ids are updated via lazy deletion.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.cfg.Dimensions {
			return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.cfg.Metric == "cos" {
			vec = embed.NormalizeVector(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// VectorHit is one nearest-neighbor result.
type VectorHit struct {
	ID    string
	Score float64
}

// Search returns up to k nearest neighbors with similarity scores.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.cfg.Metric == "cos" {
		q = embed.NormalizeVector(q)
	}

	// Over-fetch to survive lazily deleted nodes dropping out.
	nodes := s.graph.Search(q, k*2)
	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		hits = append(hits, VectorHit{ID: id, Score: distanceToScore(distance, s.cfg.Metric)})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// Delete removes ids from the mapping (lazy).
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}
	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Close marks the index unusable.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + float64(distance))
	default:
		// Cosine distance is 1 - similarity.
		return 1.0 - float64(distance)
	}
}

// HNSWVectorSearcher implements VectorSearcher over an HNSWIndex plus an
// embedder for the query side. Results are restricted to the caller's
// chunk set.
type HNSWVectorSearcher struct {
	index    *HNSWIndex
	embedder embed.Embedder
}

var _ VectorSearcher = (*HNSWVectorSearcher)(nil)

// NewHNSWVectorSearcher pairs an index with a query embedder.
func NewHNSWVectorSearcher(index *HNSWIndex, embedder embed.Embedder) *HNSWVectorSearcher {
	return &HNSWVectorSearcher{index: index, embedder: embedder}
}

// Search embeds the query and maps index hits back onto chunks.
func (h *HNSWVectorSearcher) Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error) {
	if len(chunks) == 0 || query == "" || topK <= 0 {
		return nil, nil
	}
	qVec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.ChunkID] = chunk
	}

	hits, err := h.index.Search(ctx, qVec, topK*4)
	if err != nil {
		return nil, err
	}
	var scored []ScoredChunk
	for _, hit := range hits {
		chunk, ok := byID[hit.ID]
		if !ok {
			continue
		}
		if hit.Score <= 0 {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Score: hit.Score, Source: "vector"})
		if len(scored) >= topK {
			break
		}
	}
	return scored, nil
}
