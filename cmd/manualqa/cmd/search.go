package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	docID  string
	topN   int
	rerank bool
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve ranked evidence without composing an answer",
		Long: `Run hybrid evidence retrieval (keyword + dense, fused and
intent-boosted) and print the ranked hits.

Examples:
  manualqa search "impeller bolt torque"
  manualqa search "wiring diagram" --doc vfd-200 --top-n 10
  manualqa search "trip current table" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.docID, "doc", "d", "", "Restrict retrieval to one document id")
	cmd.Flags().IntVarP(&opts.topN, "top-n", "n", 0, "Hits to return (default from config)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Run the LLM reranking stage")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.search(ctx, query, search.Options{
		DocID:  opts.docID,
		TopN:   opts.topN,
		Rerank: opts.rerank,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Intent: %s, scanned %d chunks, %d hits\n", result.Intent, result.TotalChunksScanned, len(result.Hits))
	for _, hit := range result.Hits {
		fmt.Fprintf(out, "\n%d. %s p.%d [%s] score=%.4f\n", hit.Rank, hit.Chunk.DocID, hit.Chunk.PageStart, hit.Chunk.ContentType, hit.Score)
		if len(hit.MatchedAnchors) > 0 {
			fmt.Fprintf(out, "   anchors: %s\n", strings.Join(hit.MatchedAnchors, ", "))
		}
		fmt.Fprintf(out, "   %s\n", hit.Snippet)
	}
	return nil
}
