package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/fieldscope/manualqa/internal/search"
)

const rerankSystemPrompt = `You rerank evidence snippets for a technician question.
Score each snippet from 0.0 (irrelevant) to 1.0 (directly answers the question).
Reply with JSON only: {"scores":[{"chunk_id":"...","score":0.0}]}`

// Heuristic fallback blend when the model is unreachable or returns
// garbage: lexical overlap dominates, the fused prior stabilizes.
const (
	fallbackOverlapWeight = 0.6
	fallbackPriorWeight   = 0.4
)

// OllamaReranker asks the chat model to rescore evidence. Any failure
// degrades to a deterministic lexical-overlap heuristic so reranking
// never blocks an answer.
type OllamaReranker struct {
	client Client
	logger *slog.Logger
}

var _ search.Reranker = (*OllamaReranker)(nil)

// NewOllamaReranker creates a reranker on the shared chat client.
func NewOllamaReranker(client Client, logger *slog.Logger) *OllamaReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaReranker{client: client, logger: logger}
}

type rerankPayload struct {
	Scores []struct {
		ChunkID string  `json:"chunk_id"`
		Score   float64 `json:"score"`
	} `json:"scores"`
}

// Rerank returns a chunk_id to score map in [0,1].
func (r *OllamaReranker) Rerank(ctx context.Context, query string, hits []search.EvidenceHit, topK int) (map[string]float64, error) {
	if len(hits) == 0 {
		return map[string]float64{}, nil
	}
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	scores, err := r.modelScores(ctx, query, hits)
	if err != nil {
		r.logger.Warn("reranker model path failed, using lexical fallback", "error", err)
		return r.fallbackScores(query, hits), nil
	}
	return scores, nil
}

func (r *OllamaReranker) modelScores(ctx context.Context, query string, hits []search.EvidenceHit) (map[string]float64, error) {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nSnippets:\n")
	for _, hit := range hits {
		fmt.Fprintf(&sb, "chunk_id=%s: %s\n", hit.Chunk.ChunkID, hit.Snippet)
	}

	out, err := r.client.Chat(ctx, []Message{
		{Role: "system", Content: rerankSystemPrompt},
		{Role: "user", Content: sb.String()},
	}, ChatOptions{Temperature: 0.0})
	if err != nil {
		return nil, err
	}

	raw := ExtractJSONObject(out)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in rerank output")
	}
	var payload rerankPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("rerank output not decodable: %w", err)
	}
	if len(payload.Scores) == 0 {
		return nil, fmt.Errorf("rerank output carried no scores")
	}

	scores := make(map[string]float64, len(payload.Scores))
	for _, row := range payload.Scores {
		if row.ChunkID == "" {
			continue
		}
		scores[row.ChunkID] = clamp01(row.Score)
	}
	return scores, nil
}

// fallbackScores blends anchor-term overlap with the fused prior.
func (r *OllamaReranker) fallbackScores(query string, hits []search.EvidenceHit) map[string]float64 {
	anchors := search.ExtractAnchors(query)
	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		matched := search.MatchAnchors(anchors, hit.Chunk.ContentText)
		overlap := search.AnchorOverlap(anchors, matched)
		prior := clamp01(hit.Score)
		scores[hit.Chunk.ChunkID] = round6(fallbackOverlapWeight*overlap + fallbackPriorWeight*prior)
	}
	return scores
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
