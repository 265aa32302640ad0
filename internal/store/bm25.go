package store

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/fieldscope/manualqa/internal/model"
)

var bm25TokenPattern = regexp.MustCompile(`[a-z0-9]+`)

func bm25Tokens(text string) []string {
	return bm25TokenPattern.FindAllString(strings.ToLower(text), -1)
}

// MemoryBM25 scores chunks with BM25 computed on the fly over the given
// chunk slice. No persistent index; document frequencies come from the
// slice itself, which keeps doc-filtered searches exact.
type MemoryBM25 struct {
	cfg BM25Config
}

var _ KeywordSearcher = (*MemoryBM25)(nil)

// NewMemoryBM25 creates an in-memory BM25 searcher.
func NewMemoryBM25(cfg BM25Config) *MemoryBM25 {
	if cfg.K1 == 0 {
		cfg = DefaultBM25Config()
	}
	return &MemoryBM25{cfg: cfg}
}

// Search returns up to topK positive-scoring chunks, best first.
func (m *MemoryBM25) Search(ctx context.Context, query string, chunks []model.Chunk, topK int) ([]ScoredChunk, error) {
	if len(chunks) == 0 || strings.TrimSpace(query) == "" || topK <= 0 {
		return nil, nil
	}
	qTerms := bm25Tokens(query)
	if len(qTerms) == 0 {
		return nil, nil
	}

	docsTokens := make([][]string, len(chunks))
	docLens := make([]int, len(chunks))
	totalLen := 0
	for i, chunk := range chunks {
		docsTokens[i] = bm25Tokens(chunk.ContentText)
		docLens[i] = len(docsTokens[i])
		totalLen += docLens[i]
	}
	avgLen := float64(totalLen) / math.Max(float64(len(chunks)), 1)

	df := map[string]int{}
	for _, toks := range docsTokens {
		seen := map[string]bool{}
		for _, term := range toks {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}

	nDocs := float64(len(chunks))
	var scored []ScoredChunk
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tf := map[string]int{}
		for _, term := range docsTokens[i] {
			tf[term]++
		}
		score := 0.0
		for _, term := range qTerms {
			freq := tf[term]
			if freq == 0 {
				continue
			}
			d := float64(df[term])
			idf := math.Log(1 + (nDocs-d+0.5)/(d+0.5))
			num := float64(freq) * (m.cfg.K1 + 1)
			den := float64(freq) + m.cfg.K1*(1-m.cfg.B+m.cfg.B*(float64(docLens[i])/math.Max(avgLen, 1e-9)))
			score += idf * (num / math.Max(den, 1e-9))
		}
		if score > 0 {
			scored = append(scored, ScoredChunk{Chunk: chunk, Score: score, Source: "keyword"})
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
