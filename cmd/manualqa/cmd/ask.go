package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/answer"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	docID      string
	topN       int
	agentic    bool
	structured bool
	format     string
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the ingested manuals",
		Long: `Ask a question and get a grounded answer with doc/page citations.
Insufficient evidence yields not_found or a clarifying follow-up
question instead of a guess.

Examples:
  manualqa ask "What is the impeller bolt torque?"
  manualqa ask "rated output current" --doc vfd-200 --format json
  manualqa ask "why does it trip on startup" --agentic`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.docID, "doc", "d", "", "Restrict the answer to one document id")
	cmd.Flags().IntVarP(&opts.topN, "top-n", "n", 0, "Evidence hits to retrieve (default from config)")
	cmd.Flags().BoolVar(&opts.agentic, "agentic", false, "Run the agentic plan/execute graph")
	cmd.Flags().BoolVar(&opts.structured, "structured", false, "Force structured answer sections")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, question string, opts askOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.composer.Answer(ctx, answer.Request{
		Query:                   question,
		DocID:                   opts.docID,
		TopN:                    opts.topN,
		UseAgentic:              opts.agentic,
		EnforceStructuredOutput: opts.structured,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status: %s (confidence: %s)\n\n", resp.Status, resp.Confidence)
	fmt.Fprintln(out, resp.Answer)
	if resp.FollowUpQuestion != "" {
		fmt.Fprintf(out, "\nFollow-up needed: %s\n", resp.FollowUpQuestion)
	}
	if len(resp.Citations) > 0 {
		fmt.Fprintln(out, "\nCitations:")
		for _, c := range resp.Citations {
			fmt.Fprintf(out, "  - %s\n", c.Label)
		}
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(out, "WARN: %s\n", w)
	}
	return nil
}
