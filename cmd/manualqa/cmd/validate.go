package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var strictFiles bool
	var format string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the document catalog and golden questions",
		Long: `Cross-validate the document catalog and golden questions YAML:
duplicate ids, status values, file presence, and golden references to
unknown documents.

Examples:
  manualqa validate
  manualqa validate --strict-files`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := validateContracts(strictFiles)
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, e := range result.Errors {
					fmt.Fprintf(out, "ERROR: %s\n", e)
				}
				for _, w := range result.Warnings {
					fmt.Fprintf(out, "WARN: %s\n", w)
				}
				if result.OK() {
					fmt.Fprintln(out, "Contracts OK")
				}
			}

			if !result.OK() {
				return fmt.Errorf("contract validation failed with %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strictFiles, "strict-files", false, "Treat missing-status documents as errors")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}
