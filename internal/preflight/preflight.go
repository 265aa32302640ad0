// Package preflight validates the environment before ingestion or
// serving: disk space and write access under the assets directory,
// file descriptor headroom, configuration validity, contract file
// presence, the embedding provider, and Ollama reachability when any
// LLM stage is enabled.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fieldscope/manualqa/internal/config"
)

// CheckStatus is the outcome of a single check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult is the outcome of one check. Required failures block
// serving; everything else is advisory.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the preflight checks.
type Checker struct {
	offline bool
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline skips checks that need the network (Ollama probes).
func WithOffline(offline bool) Option {
	return func(c *Checker) { c.offline = offline }
}

// WithVerbose prints check details alongside messages.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the writer PrintResults uses.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the loaded configuration.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{
		c.CheckConfig(cfg),
		c.CheckDiskSpace(cfg.Paths.AssetsDir),
		c.CheckWritePermissions(cfg.Paths.AssetsDir),
		c.CheckFileDescriptors(),
		c.CheckContracts(cfg),
		c.CheckEmbedder(ctx, cfg),
	}
	results = append(results, c.CheckOllama(ctx, cfg))
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus folds the results into ready, ready_with_warnings, or
// failed.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a human-readable report.
func (c *Checker) PrintResults(results []CheckResult) {
	fmt.Fprintln(c.output, "manualqa system check")
	fmt.Fprintln(c.output, "=====================")
	fmt.Fprintln(c.output)

	for _, r := range results {
		fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, failures []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			failures = append(failures, r.Name+": "+r.Message)
		case r.Status == StatusWarn || r.Status == StatusFail:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	if len(failures) > 0 {
		fmt.Fprintf(c.output, "\n%d error(s):\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(c.output, "  - %s\n", f)
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintf(c.output, "\n%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}
