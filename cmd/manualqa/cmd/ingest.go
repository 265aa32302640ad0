package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/model"
	"github.com/fieldscope/manualqa/internal/store"
	"github.com/fieldscope/manualqa/internal/ui"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	plain    bool
	failFast bool
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <doc-id> <pdf-path>",
		Short: "Ingest a PDF manual into evidence chunks",
		Long: `Ingest a PDF manual: parse pages, extract tables and figure
captions, compute embeddings, and persist chunk and visual artifacts
under the assets directory.

Examples:
  manualqa ingest pump-900 manuals/pump-900.pdf
  manualqa ingest vfd-200 manuals/vfd-200.pdf --fail-fast`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress output (no TUI)")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Fail when embedding coverage ends below the configured minimum")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, docID, pdfPath string, opts ingestOptions) error {
	if opts.failFast {
		cfg.Ingest.FailFast = true
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(opts.plain)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()
	result, err := a.pipeline.Ingest(ctx, docID, pdfPath, func(p ingest.Progress) {
		renderer.UpdateProgress(ui.EventFromIngest(p))
	})
	if err != nil {
		return err
	}

	for _, warning := range result.Warnings {
		renderer.AddWarning(ui.WarningEvent{DocID: docID, Message: warning})
	}

	if err := indexKeyword(ctx, a, docID); err != nil {
		renderer.AddWarning(ui.WarningEvent{DocID: docID, Message: "keyword index update failed: " + err.Error()})
	}

	renderer.Complete(ui.CompletionStats{
		DocID:        result.DocID,
		Pages:        result.TotalPages,
		Chunks:       result.TotalChunks,
		VisualChunks: result.VisualChunks,
		Coverage:     result.Embedding.Coverage,
		Duration:     time.Since(start),
		Warnings:     len(result.Warnings),
	})
	return nil
}

// indexKeyword pushes the freshly persisted chunks into a persistent
// keyword backend. The in-memory BM25 backend scores the chunk set
// directly and needs no indexing step.
func indexKeyword(ctx context.Context, a *app, docID string) error {
	type chunkIndexer interface {
		IndexChunks(ctx context.Context, chunks []model.Chunk) error
	}

	indexer, ok := a.keyword.(chunkIndexer)
	if !ok {
		return nil
	}

	chunks, err := store.NewFilesystemChunkQuery(cfg.Paths.AssetsDir).ListChunks(ctx, docID)
	if err != nil {
		return fmt.Errorf("load chunks for indexing: %w", err)
	}
	return indexer.IndexChunks(ctx, chunks)
}
