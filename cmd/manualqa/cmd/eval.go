package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/eval"
)

// evalOptions holds CLI flags for eval.
type evalOptions struct {
	docID  string
	limit  int
	topN   int
	format string
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the golden question evaluation",
		Long: `Answer every golden question and grade the results: citations
present, answer grounded, follow-up expectations met. Questions whose
document is missing from the catalog are flagged, not answered.

Examples:
  manualqa eval
  manualqa eval --doc pump-900 --limit 5
  manualqa eval --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.docID, "doc", "d", "", "Evaluate only questions for one document id")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Evaluate at most N questions")
	cmd.Flags().IntVarP(&opts.topN, "top-n", "n", 0, "Evidence hits per question (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, opts evalOptions) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	topN := opts.topN
	if topN <= 0 {
		topN = cfg.Retrieval.TopN
	}

	runner := eval.NewRunner(a.composer.Answer)
	summary, err := runner.Run(ctx, eval.Options{
		CatalogPath: cfg.Paths.CatalogPath,
		GoldenPath:  cfg.Paths.GoldenPath,
		TopN:        topN,
		DocIDFilter: opts.docID,
		Limit:       opts.limit,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pass rate: %.2f%% (%d/%d passed)\n", summary.PassRate, summary.PassedQuestions, summary.TotalQuestions)
	if len(summary.MissingDocs) > 0 {
		fmt.Fprintf(out, "Missing documents: %s\n", strings.Join(summary.MissingDocs, ", "))
	}
	for _, result := range summary.Results {
		mark := "PASS"
		if !result.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "[%s] %s (%s)", mark, result.QuestionID, result.AnswerStatus)
		if len(result.Reasons) > 0 {
			fmt.Fprintf(out, ": %s", strings.Join(result.Reasons, "; "))
		}
		fmt.Fprintln(out)
	}
	return nil
}
