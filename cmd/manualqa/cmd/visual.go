package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/visual"
)

func newVisualCmd() *cobra.Command {
	var strict bool
	var format string

	cmd := &cobra.Command{
		Use:   "visual [doc-id...]",
		Short: "Validate visual contract artifacts",
		Long: `Validate the per-document visual triple (visual_chunks.jsonl,
visual_embeddings.jsonl, visual_manifest.json) under the assets
directory. With no arguments every document directory is checked.

Examples:
  manualqa visual
  manualqa visual pump-900 --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := visual.ValidateAll(cfg.Paths.AssetsDir, args, strict)

			docIDs := make([]string, 0, len(results))
			for docID := range results {
				docIDs = append(docIDs, docID)
			}
			sort.Strings(docIDs)

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, docID := range docIDs {
					result := results[docID]
					for _, e := range result.Errors {
						fmt.Fprintf(out, "ERROR: %s\n", e)
					}
					for _, w := range result.Warnings {
						fmt.Fprintf(out, "WARN: %s\n", w)
					}
					if result.OK() {
						fmt.Fprintf(out, "%s: OK (%d warnings)\n", docID, len(result.Warnings))
					}
				}
			}

			failed := 0
			for _, result := range results {
				if !result.OK() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("visual validation failed for %d documents", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat missing artifact files as errors")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
