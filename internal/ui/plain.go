package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	stage    Stage
	warnings []WarningEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, event.Message)
	} else if event.Message != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

// AddWarning implements Renderer.
func (r *PlainRenderer) AddWarning(event WarningEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.warnings = append(r.warnings, event)

	if event.DocID != "" {
		_, _ = fmt.Fprintf(r.out, "WARN: %s: %s\n", event.DocID, event.Message)
	} else {
		_, _ = fmt.Fprintf(r.out, "WARN: %s\n", event.Message)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %s, %d pages, %d chunks (%d visual) in %s",
		stats.DocID, stats.Pages, stats.Chunks, stats.VisualChunks,
		stats.Duration.Round(100*time.Millisecond))

	if stats.Coverage > 0 && stats.Coverage < 1 {
		_, _ = fmt.Fprintf(r.out, ", embedding coverage %.1f%%", stats.Coverage*100)
	}
	if stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d warnings)", stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
