package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/store"
)

// Type boosts applied after fusion, by query intent. A table query
// still gives figure evidence a small lift and vice versa, since
// manuals often put the same fact in both forms.
const (
	tableBoost   = 1.35
	diagramBoost = 1.40
	crossBoost   = 1.10
)

// Anchor coverage scales the fused score into [0.70, 1.30]: full
// coverage lifts a hit, zero coverage demotes it without dropping it.
const (
	coverageBase = 0.70
	coverageSpan = 0.60
)

// coverageFilterFloor drops near-zero-coverage hits, but only for
// queries with at least two anchors.
const coverageFilterFloor = 0.15

// Rerank blend weights: the fused score keeps a stabilizing share so a
// noisy reranker cannot fully reorder the list.
const (
	rerankPriorWeight = 0.35
	rerankModelWeight = 0.65
)

// DefaultSnippetMaxChars caps evidence snippets.
const DefaultSnippetMaxChars = 420

// Engine runs hybrid retrieval over the chunk corpus.
type Engine struct {
	chunks   store.ChunkQuery
	keyword  store.KeywordSearcher
	vector   store.VectorSearcher
	reranker Reranker
	trace    TraceSink
	logger   *slog.Logger

	keywordWeight   float64
	vectorWeight    float64
	snippetMaxChars int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithReranker installs a reranking stage.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithTrace installs a retrieval trace sink. Each search appends one
// record; sink failures only log.
func WithTrace(sink TraceSink) EngineOption {
	return func(e *Engine) { e.trace = sink }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithWeights overrides the fusion weights.
func WithWeights(keyword, vector float64) EngineOption {
	return func(e *Engine) {
		e.keywordWeight = keyword
		e.vectorWeight = vector
	}
}

// WithSnippetMaxChars overrides the snippet cap.
func WithSnippetMaxChars(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.snippetMaxChars = n
		}
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(chunks store.ChunkQuery, keyword store.KeywordSearcher, vector store.VectorSearcher, opts ...EngineOption) *Engine {
	e := &Engine{
		chunks:          chunks,
		keyword:         keyword,
		vector:          vector,
		logger:          slog.Default(),
		keywordWeight:   0.5,
		vectorWeight:    0.5,
		snippetMaxChars: DefaultSnippetMaxChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search executes the full retrieval operation. An empty query is not
// an error; it yields an empty general-intent result.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Result{Intent: IntentGeneral}, nil
	}
	if opts.TopN <= 0 {
		opts.TopN = 6
	}
	if opts.TopKKeyword <= 0 {
		opts.TopKKeyword = 20
	}
	if opts.TopKVector <= 0 {
		opts.TopKVector = 20
	}
	if opts.RerankPoolSize <= 0 {
		opts.RerankPoolSize = 24
	}

	intent := DetectIntent(query)
	anchors := ExtractAnchors(query)

	chunks, err := e.loadChunks(ctx, opts)
	if err != nil {
		return nil, qaerrors.RetrievalError("load chunks", err)
	}
	result := &Result{Query: query, Intent: intent, Anchors: anchors, TotalChunksScanned: len(chunks)}
	if len(chunks) == 0 {
		e.logTrace(result, opts)
		return result, nil
	}

	keywordHits, vectorHits, err := e.parallelSearch(ctx, query, chunks, opts)
	if err != nil {
		return nil, err
	}

	fused := e.fuse(keywordHits, vectorHits, intent, anchors)
	fused = filterByCoverage(fused, len(anchors))
	if len(fused) == 0 {
		e.logTrace(result, opts)
		return result, nil
	}
	sortHits(fused)

	if opts.Rerank && e.reranker != nil {
		e.rerank(ctx, query, fused, opts.TopN, opts.RerankPoolSize)
	}

	if len(fused) > opts.TopN {
		fused = fused[:opts.TopN]
	}
	for i := range fused {
		fused[i].Score = round6(fused[i].Score)
		fused[i].Rank = i + 1
		fused[i].Snippet = snippet(fused[i].Chunk.ContentText, e.snippetMaxChars)
	}

	result.Hits = fused
	e.logTrace(result, opts)
	return result, nil
}

// loadChunks honors the multi-document scope when set, the single
// doc_id filter otherwise.
func (e *Engine) loadChunks(ctx context.Context, opts Options) ([]model.Chunk, error) {
	if len(opts.DocIDs) == 0 {
		return e.chunks.ListChunks(ctx, opts.DocID)
	}
	all, err := e.chunks.ListChunks(ctx, "")
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(opts.DocIDs))
	for _, id := range opts.DocIDs {
		allowed[id] = true
	}
	var scoped []model.Chunk
	for _, chunk := range all {
		if allowed[chunk.DocID] {
			scoped = append(scoped, chunk)
		}
	}
	return scoped, nil
}

// parallelSearch runs both legs concurrently. The keyword leg gets the
// alias-expanded query, the dense leg the raw one. A single failed leg
// degrades to the other; both failing is an error.
func (e *Engine) parallelSearch(ctx context.Context, query string, chunks []model.Chunk, opts Options) ([]store.ScoredChunk, []store.ScoredChunk, error) {
	var keywordHits, vectorHits []store.ScoredChunk
	var keywordErr, vectorErr error

	expanded := ExpandQuery(query)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordHits, keywordErr = e.keyword.Search(gctx, expanded, chunks, opts.TopKKeyword)
		return nil
	})
	g.Go(func() error {
		vectorHits, vectorErr = e.vector.Search(gctx, query, chunks, opts.TopKVector)
		return nil
	})
	_ = g.Wait()

	if keywordErr != nil && vectorErr != nil {
		return nil, nil, qaerrors.RetrievalError("both retrieval legs failed", keywordErr).
			WithDetail("vector_error", vectorErr.Error())
	}
	if keywordErr != nil {
		e.logger.Warn("keyword leg failed, continuing with vector only", "error", keywordErr)
		keywordHits = nil
	}
	if vectorErr != nil {
		e.logger.Warn("vector leg failed, continuing with keyword only", "error", vectorErr)
		vectorHits = nil
	}
	return keywordHits, vectorHits, nil
}

// fuse normalizes each leg to [0,1], combines by weight, and scales by
// the intent boost and the anchor coverage multiplier.
func (e *Engine) fuse(keywordHits, vectorHits []store.ScoredChunk, intent Intent, anchors []string) []EvidenceHit {
	keywordNorm := minMaxNormalize(keywordHits)
	vectorNorm := minMaxNormalize(vectorHits)

	byID := map[string]*EvidenceHit{}
	order := []string{}

	add := func(sc store.ScoredChunk, norm float64, isKeyword bool) {
		hit, ok := byID[sc.Chunk.ChunkID]
		if !ok {
			hit = &EvidenceHit{Chunk: sc.Chunk}
			byID[sc.Chunk.ChunkID] = hit
			order = append(order, sc.Chunk.ChunkID)
		}
		if isKeyword {
			hit.KeywordScore = norm
		} else {
			hit.VectorScore = norm
		}
	}
	for i, sc := range keywordHits {
		add(sc, keywordNorm[i], true)
	}
	for i, sc := range vectorHits {
		add(sc, vectorNorm[i], false)
	}

	hits := make([]EvidenceHit, 0, len(order))
	for _, id := range order {
		hit := byID[id]
		hit.MatchedAnchors = MatchAnchors(anchors, hit.Chunk.ContentText)
		hit.AnchorCoverage = 1.0
		if len(anchors) > 0 {
			hit.AnchorCoverage = float64(len(hit.MatchedAnchors)) / float64(len(anchors))
		}
		fusedScore := e.keywordWeight*hit.KeywordScore + e.vectorWeight*hit.VectorScore
		fusedScore *= intentBoost(intent, hit.Chunk.ContentType)
		fusedScore *= coverageBase + coverageSpan*hit.AnchorCoverage
		hit.Score = round6(fusedScore)
		hits = append(hits, *hit)
	}
	return hits
}

// filterByCoverage drops hits below the coverage floor. Single-anchor
// queries skip the filter (one missing word should not erase a hit),
// and the filter is bypassed entirely when it would empty the list.
func filterByCoverage(hits []EvidenceHit, anchorCount int) []EvidenceHit {
	if anchorCount < 2 {
		return hits
	}
	kept := make([]EvidenceHit, 0, len(hits))
	for _, hit := range hits {
		if hit.AnchorCoverage >= coverageFilterFloor {
			kept = append(kept, hit)
		}
	}
	if len(kept) == 0 {
		return hits
	}
	return kept
}

// rerank rescored the head of the list in place. The pool is at least
// top_n wide so reranking can never shrink the answer set; hits past
// the pool keep their fused order behind it. Failures keep the fused
// ordering and only log.
func (e *Engine) rerank(ctx context.Context, query string, hits []EvidenceHit, topN, poolSize int) {
	poolLen := poolSize
	if poolLen > len(hits) {
		poolLen = len(hits)
	}
	if topN > poolLen {
		poolLen = topN
	}
	if poolLen > len(hits) {
		poolLen = len(hits)
	}
	pool := hits[:poolLen]

	scores, err := e.reranker.Rerank(ctx, query, pool, len(pool))
	if err != nil {
		e.logger.Warn("rerank failed, keeping fused order", "error", err)
		return
	}
	for i := range pool {
		rr, ok := scores[pool[i].Chunk.ChunkID]
		if !ok {
			continue
		}
		rr = clamp01(rr)
		pool[i].RerankScore = rr
		pool[i].Reranked = true
		pool[i].Score = rerankPriorWeight*pool[i].Score + rerankModelWeight*rr
	}
	sortHits(pool)
}

func sortHits(hits []EvidenceHit) {
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Chunk.ChunkID < hits[b].Chunk.ChunkID
	})
}

func intentBoost(intent Intent, contentType model.ContentType) float64 {
	isTable := contentType == model.ContentTypeTableRow || contentType == model.ContentType("visual_table")
	isFigure := false
	switch contentType {
	case model.ContentTypeFigureCaption, model.ContentTypeFigureOCR,
		model.ContentTypeVisionSummary,
		model.ContentType("visual_figure"), model.ContentType("visual_image"):
		isFigure = true
	}

	switch intent {
	case IntentTable:
		if isTable {
			return tableBoost
		}
		if isFigure {
			return crossBoost
		}
	case IntentDiagram:
		if isFigure {
			return diagramBoost
		}
		if isTable {
			return crossBoost
		}
	}
	return 1.0
}

// logTrace appends one retrieval record to the trace sink, if any.
func (e *Engine) logTrace(result *Result, opts Options) {
	if e.trace == nil {
		return
	}
	topHits := make([]map[string]any, 0, len(result.Hits))
	for _, hit := range result.Hits {
		topHits = append(topHits, map[string]any{
			"chunk_id":     hit.Chunk.ChunkID,
			"doc_id":       hit.Chunk.DocID,
			"content_type": string(hit.Chunk.ContentType),
			"page":         hit.Chunk.PageStart,
			"score":        hit.Score,
		})
	}
	payload := map[string]any{
		"event":                "search",
		"query":                result.Query,
		"intent":               string(result.Intent),
		"doc_id":               opts.DocID,
		"anchors":              result.Anchors,
		"total_chunks_scanned": result.TotalChunksScanned,
		"top_hits":             topHits,
	}
	if len(opts.DocIDs) > 0 {
		payload["doc_ids"] = opts.DocIDs
	}
	if err := e.trace.Log(payload); err != nil {
		e.logger.Warn("retrieval trace write failed", "error", err)
	}
}

// minMaxNormalize maps scores to [0,1] positionally. A constant list
// (including a single element) maps to all 1.0.
func minMaxNormalize(hits []store.ScoredChunk) []float64 {
	out := make([]float64, len(hits))
	if len(hits) == 0 {
		return out
	}
	minScore, maxScore := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minScore {
			minScore = h.Score
		}
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	if maxScore == minScore {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, h := range hits {
		out[i] = (h.Score - minScore) / (maxScore - minScore)
	}
	return out
}

// snippet collapses whitespace runs to single spaces and truncates to
// maxChars with a trailing ellipsis.
func snippet(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	cut := maxChars - 3
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " ") + "..."
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
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
