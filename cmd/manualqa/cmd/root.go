// Package cmd provides the CLI commands for manualqa.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/config"
	"github.com/fieldscope/manualqa/internal/logging"
	"github.com/fieldscope/manualqa/pkg/version"
)

var (
	cfgDir         string
	debugMode      bool
	loggingCleanup func()

	cfg *config.Config
)

// NewRootCmd creates the root command for the manualqa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manualqa",
		Short: "Grounded QA over equipment PDF manuals",
		Long: `manualqa ingests equipment PDF manuals into typed evidence chunks
(text, table rows, figure captions, OCR, vision summaries), retrieves
evidence with hybrid keyword + dense search, and composes grounded
answers with doc/page citations. Insufficient evidence yields not_found
or a clarifying follow-up instead of a guess.

It runs entirely locally; the optional LLM stages use a local Ollama.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("manualqa version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&cfgDir, "config-dir", "C", ".", "Directory containing "+config.ConfigFileName)
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.manualqa/logs/")

	cmd.PersistentPreRunE = loadConfigAndLogging
	cmd.PersistentPostRun = func(*cobra.Command, []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newVisualCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func loadConfigAndLogging(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.WriteToStderr = false
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is best effort for the CLI; commands still run.
		slog.Warn("logging setup failed", "error", err)
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
