package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/fieldscope/manualqa/internal/config"
	"github.com/fieldscope/manualqa/internal/embed"
	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/extract"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/store"
	"github.com/fieldscope/manualqa/internal/visual"
)

// Progress is one ingestion progress update.
type Progress struct {
	Stage          string `json:"stage"`
	ProcessedPages int    `json:"processed_pages"`
	TotalPages     int    `json:"total_pages"`
	Message        string `json:"message"`
}

// Ingestion stages reported through the progress callback.
const (
	StageExtracting         = "extracting"
	StageEmbedding          = "embedding"
	StagePersisted          = "persisted"
	StageVisualArtifacts    = "visual_artifacts"
	StageContractValidation = "contract_validation"
)

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Result summarizes one completed ingestion run.
type Result struct {
	DocID        string         `json:"doc_id"`
	AssetRef     string         `json:"asset_ref"`
	TotalPages   int            `json:"total_pages"`
	TotalChunks  int            `json:"total_chunks"`
	ByType       map[string]int `json:"by_type"`
	VisualChunks int            `json:"visual_chunks"`
	Embedding    EmbedStats     `json:"embedding"`
	Warnings     []string       `json:"warnings,omitempty"`
}

// Pipeline runs document ingestion end to end: parse, per-page
// extraction with bounded parallelism, embedding, persistence, and
// visual artifact generation.
type Pipeline struct {
	parser    Parser
	ocr       OCR
	tables    *extract.TableExtractor
	vision    Vision
	embedder  embed.Embedder
	chunks    store.ChunkStore
	catalog   *store.CatalogStore
	assetsDir string
	cfg       config.IngestConfig
	logger    *slog.Logger
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithVision enables vision summaries for low-text pages.
func WithVision(v Vision) PipelineOption {
	return func(p *Pipeline) { p.vision = v }
}

// WithEmbedder enables the embedding stage.
func WithEmbedder(e embed.Embedder) PipelineOption {
	return func(p *Pipeline) { p.embedder = e }
}

// WithCatalog records completed runs in the document catalog.
func WithCatalog(c *store.CatalogStore) PipelineOption {
	return func(p *Pipeline) { p.catalog = c }
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline wires an ingestion pipeline over the given parser, OCR
// engine, and chunk store. Assets (chunk JSONL plus the visual triple)
// land under assetsDir/<doc_id>/.
func NewPipeline(parser Parser, ocr OCR, chunks store.ChunkStore, assetsDir string, cfg config.IngestConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		parser:    parser,
		ocr:       ocr,
		tables:    extract.NewTableExtractor(),
		chunks:    chunks,
		assetsDir: assetsDir,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest processes one document. The progress callback may be nil.
func (p *Pipeline) Ingest(ctx context.Context, docID, pdfPath string, progress ProgressFunc) (*Result, error) {
	report := func(update Progress) {
		if progress != nil {
			progress(update)
		}
	}

	pages, err := p.parser.Parse(ctx, pdfPath)
	if err != nil {
		return nil, qaerrors.New(qaerrors.ErrCodeParseFailed, "parse "+pdfPath, err)
	}
	totalPages := len(pages)

	for i := range pages {
		if len(pages[i].ImageBlocks) > 0 {
			pages[i].Regions = extract.NormalizeRegions(
				pages[i].ImageBlocks, pages[i].Width, pages[i].Height, docID, pages[i].PageNumber)
		}
	}

	report(Progress{Stage: StageExtracting, TotalPages: totalPages, Message: "Starting page extraction"})

	outputs, err := p.processPages(ctx, docID, pdfPath, pages, report)
	if err != nil {
		return nil, err
	}

	sort.Slice(outputs, func(i, j int) bool { return outputs[i].pageNumber < outputs[j].pageNumber })

	var chunks []model.Chunk
	byType := map[string]int{}
	result := &Result{DocID: docID, TotalPages: totalPages}
	for _, out := range outputs {
		chunks = append(chunks, out.chunks...)
		for contentType, count := range out.byType {
			byType[contentType] += count
		}
		result.Warnings = append(result.Warnings, out.warnings...)
	}
	result.TotalChunks = len(chunks)
	result.ByType = byType
	result.Embedding = EmbedStats{Coverage: 1.0}

	if p.embedder != nil {
		report(Progress{
			Stage:          StageEmbedding,
			ProcessedPages: totalPages,
			TotalPages:     totalPages,
			Message:        fmt.Sprintf("Computing embeddings for %d chunks", len(chunks)),
		})
		stats := embedChunks(ctx, p.embedder, chunks, p.cfg.SecondPassMaxChars)
		result.Embedding = stats
		if stats.SecondPassRecovered > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Second-pass embedding recovered %d chunks.", stats.SecondPassRecovered))
		}
		if stats.Failed > 0 {
			warning := fmt.Sprintf("embedding coverage %.4f: %d of %d chunks have no embedding",
				stats.Coverage, stats.Failed, stats.Attempted)
			result.Warnings = append(result.Warnings, warning)
			p.logger.Warn("partial embedding coverage",
				"doc_id", docID, "coverage", stats.Coverage, "failed", stats.Failed)
		}
		if p.cfg.FailFast && stats.Coverage < p.cfg.MinCoverage {
			return nil, qaerrors.New(qaerrors.ErrCodeIngestFailed,
				fmt.Sprintf("embedding coverage %.4f below minimum %.4f", stats.Coverage, p.cfg.MinCoverage), nil)
		}
	}

	if err := p.persist(ctx, docID, chunks, result, totalPages, report); err != nil {
		return nil, err
	}

	if p.catalog != nil {
		record := store.DocumentRecord{
			DocID:        docID,
			Filename:     filepath.Base(pdfPath),
			PageCount:    totalPages,
			ChunkCount:   len(chunks),
			Coverage:     result.Embedding.Coverage,
			IngestedAt:   time.Now().UTC(),
			ContractVer:  visual.ContractVersion,
			VisualChunks: result.VisualChunks,
		}
		if err := p.catalog.Upsert(ctx, record); err != nil {
			result.Warnings = append(result.Warnings, "catalog update failed: "+err.Error())
			p.logger.Warn("catalog update failed", "doc_id", docID, "error", err)
		}
	}

	return result, nil
}

func (p *Pipeline) processPages(ctx context.Context, docID, pdfPath string, pages []model.PageContent, report ProgressFunc) ([]pageOutput, error) {
	processor := &pageProcessor{
		docID:               docID,
		pdfPath:             pdfPath,
		ocr:                 p.ocr,
		tables:              p.tables,
		vision:              p.vision,
		budget:              NewVisionBudget(p.cfg.VisionPageBudget),
		ocrMinChars:         p.cfg.OCRMinChars,
		visionTextThreshold: p.cfg.VisionTextThreshold,
	}

	workers := p.cfg.PageWorkers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	outputs := make([]pageOutput, 0, len(pages))
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, page := range pages {
		page := page
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := processor.process(gctx, page)
			mu.Lock()
			outputs = append(outputs, out)
			processed++
			current := processed
			mu.Unlock()
			report(Progress{
				Stage:          StageExtracting,
				ProcessedPages: current,
				TotalPages:     len(pages),
				Message:        fmt.Sprintf("Processed page %d/%d", current, len(pages)),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// persist writes chunk and visual artifacts under a file lock so
// concurrent jobs and the contract watcher never observe a half-written
// asset directory, then validates the written contract files.
func (p *Pipeline) persist(ctx context.Context, docID string, chunks []model.Chunk, result *Result, totalPages int, report ProgressFunc) error {
	if err := os.MkdirAll(p.assetsDir, 0o755); err != nil {
		return qaerrors.New(qaerrors.ErrCodeAssetWriteFailed, "create assets dir", err)
	}
	lock := flock.New(filepath.Join(p.assetsDir, ".ingest.lock"))
	if err := lock.Lock(); err != nil {
		return qaerrors.New(qaerrors.ErrCodeAssetWriteFailed, "acquire asset lock", err)
	}
	defer lock.Unlock()

	assetRef, err := p.chunks.Persist(ctx, docID, chunks)
	if err != nil {
		return err
	}
	result.AssetRef = assetRef
	report(Progress{
		Stage:          StagePersisted,
		ProcessedPages: totalPages,
		TotalPages:     totalPages,
		Message:        fmt.Sprintf("Persisted %d chunks", len(chunks)),
	})

	report(Progress{
		Stage:          StageVisualArtifacts,
		ProcessedPages: totalPages,
		TotalPages:     totalPages,
		Message:        "Writing visual contract artifacts",
	})
	docDir := filepath.Join(p.assetsDir, docID)
	visualRows, embeddingRows, manifest := visual.BuildArtifacts(docID, chunks)
	if err := visual.WriteArtifacts(docDir, visualRows, embeddingRows, manifest); err != nil {
		return err
	}
	result.VisualChunks = len(visualRows)

	report(Progress{
		Stage:          StageContractValidation,
		ProcessedPages: totalPages,
		TotalPages:     totalPages,
		Message:        "Validating visual contract artifacts",
	})
	validation := visual.ValidateDoc(docDir, false)
	result.Warnings = append(result.Warnings, validation.Errors...)
	result.Warnings = append(result.Warnings, validation.Warnings...)
	return nil
}
