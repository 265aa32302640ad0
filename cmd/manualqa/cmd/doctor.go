package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var offline bool
	var verbose bool
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before ingesting or serving",
		Long: `Run the preflight checks: disk space and write access under the
assets directory, file descriptor headroom, configuration validity,
contract file presence, the embedding provider, and Ollama
reachability when an LLM stage is enabled.

Examples:
  manualqa doctor
  manualqa doctor --offline --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checker := preflight.New(
				preflight.WithOffline(offline),
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			results := checker.RunAll(cmd.Context(), cfg)

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				_ = preflight.ClearMarker(cfg.Paths.IndexDir)
				return fmt.Errorf("preflight checks failed")
			}
			return preflight.MarkPassed(cfg.Paths.IndexDir)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that need the network")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print check details")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
