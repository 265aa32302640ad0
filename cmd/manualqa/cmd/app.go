package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fieldscope/manualqa/internal/agent"
	"github.com/fieldscope/manualqa/internal/answer"
	"github.com/fieldscope/manualqa/internal/contracts"
	"github.com/fieldscope/manualqa/internal/embed"
	"github.com/fieldscope/manualqa/internal/extract"
	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/llm"
	"github.com/fieldscope/manualqa/internal/search"
	"github.com/fieldscope/manualqa/internal/store"
)

// app bundles the wired pipeline for one CLI invocation.
type app struct {
	embedder embed.Embedder
	keyword  store.KeywordSearcher
	engine   *search.Engine
	composer *answer.Composer
	pipeline *ingest.Pipeline
	catalog  *store.CatalogStore

	cleanups []func()
}

// Close releases index and store handles in reverse wiring order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

// newApp wires the retrieval and answering stack from the loaded config.
func newApp() (*app, error) {
	a := &app{}

	embedder, err := embed.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.embedder = embedder

	keyword, err := a.newKeywordSearcher()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.keyword = keyword

	chunks := store.NewFilesystemChunkQuery(cfg.Paths.AssetsDir)
	vector, err := newVectorSearcher(chunks, embedder)
	if err != nil {
		a.Close()
		return nil, err
	}

	engineOpts := []search.EngineOption{
		search.WithWeights(cfg.Retrieval.KeywordWeight, cfg.Retrieval.VectorWeight),
		search.WithSnippetMaxChars(cfg.Retrieval.SnippetMaxChars),
		search.WithTrace(answer.NewTraceLogger(cfg.Paths.RetrievalTracePath)),
	}
	if cfg.Retrieval.RerankEnabled {
		client := llm.NewFromConfig(cfg.Ollama)
		engineOpts = append(engineOpts, search.WithReranker(llm.NewOllamaReranker(client, slog.Default())))
	}
	a.engine = search.NewEngine(chunks, keyword, vector, engineOpts...)

	a.composer = a.newComposer()

	catalog, err := store.NewCatalogStore(filepath.Join(cfg.Paths.IndexDir, "catalog.db"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	a.catalog = catalog
	a.cleanups = append(a.cleanups, func() { _ = catalog.Close() })

	pipelineOpts := []ingest.PipelineOption{
		ingest.WithEmbedder(embedder),
		ingest.WithCatalog(catalog),
	}
	if cfg.Ingest.UseVision {
		client := llm.NewFromConfig(cfg.Ollama)
		pipelineOpts = append(pipelineOpts, ingest.WithVision(llm.NewVisionCaptioner(client, cfg.Ollama.VisionModel)))
	}
	a.pipeline = ingest.NewPipeline(
		extract.NewPDFParser(),
		ingest.NoopOCR{},
		store.NewFilesystemChunkStore(cfg.Paths.AssetsDir),
		cfg.Paths.AssetsDir,
		cfg.Ingest,
		pipelineOpts...,
	)

	return a, nil
}

// newVectorSearcher selects the dense retrieval backend. The HNSW
// backend indexes every persisted chunk embedding up front; the
// metadata backend scores stored embeddings on the fly.
func newVectorSearcher(chunks *store.FilesystemChunkQuery, embedder embed.Embedder) (store.VectorSearcher, error) {
	if cfg.Retrieval.VectorBackend != "hnsw" {
		return store.NewMetadataVectorSearcher(embedder), nil
	}

	index, err := store.NewHNSWIndex(store.DefaultVectorIndexConfig(embedder.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("build hnsw index: %w", err)
	}
	all, err := chunks.ListChunks(context.Background(), "")
	if err != nil {
		return nil, fmt.Errorf("load chunks for hnsw index: %w", err)
	}
	var ids []string
	var vectors [][]float32
	for i := range all {
		vec64 := all[i].Embedding()
		if len(vec64) != embedder.Dimensions() {
			continue
		}
		vec := make([]float32, len(vec64))
		for j, v := range vec64 {
			vec[j] = float32(v)
		}
		ids = append(ids, all[i].ChunkID)
		vectors = append(vectors, vec)
	}
	if err := index.Add(context.Background(), ids, vectors); err != nil {
		return nil, fmt.Errorf("populate hnsw index: %w", err)
	}
	return store.NewHNSWVectorSearcher(index, embedder), nil
}

func (a *app) newKeywordSearcher() (store.KeywordSearcher, error) {
	switch cfg.Retrieval.KeywordBackend {
	case "bleve":
		keyword, err := store.NewBleveKeyword(filepath.Join(cfg.Paths.IndexDir, "bleve"))
		if err != nil {
			return nil, fmt.Errorf("open bleve index: %w", err)
		}
		a.cleanups = append(a.cleanups, func() { _ = keyword.Close() })
		return keyword, nil
	case "fts5":
		keyword, err := store.NewFTS5Keyword(filepath.Join(cfg.Paths.IndexDir, "keyword.db"))
		if err != nil {
			return nil, fmt.Errorf("open FTS5 index: %w", err)
		}
		a.cleanups = append(a.cleanups, func() { _ = keyword.Close() })
		return keyword, nil
	default:
		return store.NewMemoryBM25(store.DefaultBM25Config()), nil
	}
}

func (a *app) newComposer() *answer.Composer {
	opts := []answer.ComposerOption{
		answer.WithTrace(answer.NewTraceLogger(cfg.Paths.TracePath)),
		answer.WithCitationFloor(cfg.Answer.MinTopScore),
	}

	var client llm.Client
	if cfg.Answer.UseLLMDraft || (cfg.Agent.Enabled && cfg.Agent.Planner == "llm") {
		client = llm.NewFromConfig(cfg.Ollama)
	}

	var draft answer.DraftFunc
	if cfg.Answer.UseLLMDraft {
		draft = llm.NewDrafter(client).Draft
		opts = append(opts, answer.WithDraft(draft))
	}

	if cfg.Agent.Enabled {
		opts = append(opts, answer.WithAgentTrace(answer.NewTraceLogger(cfg.Paths.AgentTracePath)))
		var planner agent.Planner = &agent.HeuristicPlanner{}
		if cfg.Agent.Planner == "llm" {
			planner = agent.NewLLMPlanner(client, slog.Default())
		}

		searchFn := func(ctx context.Context, query, docID string, topN int) (*search.Result, error) {
			return a.engine.Search(ctx, query, search.Options{
				DocID:          docID,
				TopN:           topN,
				TopKKeyword:    cfg.Retrieval.TopKKeyword,
				TopKVector:     cfg.Retrieval.TopKVector,
				RerankPoolSize: cfg.Retrieval.RerankPoolSize,
				Rerank:         cfg.Retrieval.RerankEnabled,
			})
		}

		runnerOpts := []agent.RunnerOption{
			agent.WithLimits(agent.Limits{
				MaxIterations: cfg.Agent.MaxIterations,
				MaxToolCalls:  cfg.Agent.MaxToolCalls,
				Timeout:       time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
			}),
			agent.WithTopN(cfg.Retrieval.TopN),
		}
		if draft != nil {
			runnerOpts = append(runnerOpts, agent.WithDrafter(agent.DraftFunc(draft)))
		}
		runner := agent.NewRunner(planner, searchFn, runnerOpts...)
		opts = append(opts, answer.WithAgent(runner.Run))
	}

	return answer.NewComposer(a.search, opts...)
}

// search adapts the engine to the composer's retrieval signature.
func (a *app) search(ctx context.Context, query string, opts search.Options) (*search.Result, error) {
	if opts.TopKKeyword <= 0 {
		opts.TopKKeyword = cfg.Retrieval.TopKKeyword
	}
	if opts.TopKVector <= 0 {
		opts.TopKVector = cfg.Retrieval.TopKVector
	}
	if opts.RerankPoolSize <= 0 {
		opts.RerankPoolSize = cfg.Retrieval.RerankPoolSize
	}
	return a.engine.Search(ctx, query, opts)
}

// validateContracts runs catalog + golden cross-validation with the
// configured paths.
func validateContracts(strictFiles bool) (*contracts.ValidationResult, error) {
	return contracts.Validate(cfg.Paths.CatalogPath, cfg.Paths.GoldenPath, strictFiles)
}
