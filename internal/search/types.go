// Package search implements hybrid evidence retrieval: BM25 keyword and
// dense vector legs run in parallel, scores are normalized and fused,
// intent boosts and anchor filtering shape the ranking, and an optional
// reranker refines the head of the list.
package search

import (
	"context"

	"github.com/fieldscope/manualqa/internal/model"
)

// Intent classifies what kind of evidence a query is after.
type Intent string

const (
	IntentTable   Intent = "table"
	IntentDiagram Intent = "diagram"
	IntentGeneral Intent = "general"
)

// EvidenceHit is one ranked piece of evidence.
type EvidenceHit struct {
	Chunk model.Chunk `json:"chunk"`

	// Score is the final fused (and possibly reranked) score, rounded
	// to 6 decimals.
	Score float64 `json:"score"`

	// KeywordScore and VectorScore are the normalized leg scores.
	KeywordScore float64 `json:"keyword_score"`
	VectorScore  float64 `json:"vector_score"`

	// Rank is the 1-based position in the final list.
	Rank int `json:"rank"`

	// MatchedAnchors lists the query anchor terms found in the chunk.
	MatchedAnchors []string `json:"matched_anchors,omitempty"`

	// AnchorCoverage is the fraction of query anchors found in the
	// chunk (1.0 when the query produced no anchors).
	AnchorCoverage float64 `json:"anchor_coverage"`

	// Snippet is the display excerpt, capped at the configured length.
	Snippet string `json:"snippet"`

	// RerankScore is set when the reranking stage ran.
	RerankScore float64 `json:"rerank_score,omitempty"`
	Reranked    bool    `json:"reranked,omitempty"`
}

// Options control one retrieval call.
type Options struct {
	// DocID restricts retrieval to a single document when non-empty.
	DocID string

	// DocIDs restricts retrieval to a set of documents. When non-empty
	// it takes precedence over DocID.
	DocIDs []string

	// TopN is the number of hits to return.
	TopN int

	// TopKKeyword and TopKVector are per-leg candidate depths.
	TopKKeyword int
	TopKVector  int

	// RerankPoolSize is how many head candidates go to the reranker.
	RerankPoolSize int

	// Rerank enables the reranking stage when a reranker is configured.
	Rerank bool
}

// Result is the retrieval outcome handed to the agent and composer.
type Result struct {
	Query   string        `json:"query"`
	Intent  Intent        `json:"intent"`
	Anchors []string      `json:"anchors"`
	Hits    []EvidenceHit `json:"hits"`

	// TotalChunksScanned is the corpus size the legs ran over.
	TotalChunksScanned int `json:"total_chunks_scanned"`
}

// Reranker rescoring interface. Implementations may call an LLM; the
// engine falls back to fused ordering when reranking fails.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []EvidenceHit, topK int) (map[string]float64, error)
}

// TraceSink receives one JSON-serializable record per retrieval call.
type TraceSink interface {
	Log(payload map[string]any) error
}
