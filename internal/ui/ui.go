// Package ui provides terminal UI components for ingestion progress display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/fieldscope/manualqa/internal/ingest"
)

// Stage represents an ingestion stage.
type Stage int

const (
	// StageExtracting is the page extraction stage.
	StageExtracting Stage = iota
	// StageEmbedding is the embedding computation stage.
	StageEmbedding
	// StagePersisted is the asset persistence stage.
	StagePersisted
	// StageVisualArtifacts is the visual contract artifact stage.
	StageVisualArtifacts
	// StageContractValidation is the post-write contract check stage.
	StageContractValidation
	// StageComplete indicates ingestion is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageExtracting:
		return "Extracting"
	case StageEmbedding:
		return "Embedding"
	case StagePersisted:
		return "Persisted"
	case StageVisualArtifacts:
		return "Visual artifacts"
	case StageContractValidation:
		return "Contract validation"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageExtracting:
		return "EXTRACT"
	case StageEmbedding:
		return "EMBED"
	case StagePersisted:
		return "PERSIST"
	case StageVisualArtifacts:
		return "VISUAL"
	case StageContractValidation:
		return "CONTRACT"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// EventFromIngest converts a pipeline progress callback payload.
func EventFromIngest(p ingest.Progress) ProgressEvent {
	stage := StageExtracting
	switch p.Stage {
	case ingest.StageEmbedding:
		stage = StageEmbedding
	case ingest.StagePersisted:
		stage = StagePersisted
	case ingest.StageVisualArtifacts:
		stage = StageVisualArtifacts
	case ingest.StageContractValidation:
		stage = StageContractValidation
	}
	return ProgressEvent{
		Stage:   stage,
		Current: p.ProcessedPages,
		Total:   p.TotalPages,
		Message: p.Message,
	}
}

// WarningEvent represents a non-fatal problem during ingestion.
type WarningEvent struct {
	DocID   string
	Message string
}

// CompletionStats contains final ingestion statistics.
type CompletionStats struct {
	DocID        string
	Pages        int
	Chunks       int
	VisualChunks int
	Coverage     float64
	Duration     time.Duration
	Warnings     int
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddWarning adds a warning to display.
	AddWarning(event WarningEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and
// environment. Interactive terminals get the TUI; CI environments,
// pipes, and --plain get plain text.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
