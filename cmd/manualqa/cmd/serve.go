package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldscope/manualqa/internal/contracts"
	"github.com/fieldscope/manualqa/internal/eval"
	"github.com/fieldscope/manualqa/internal/ingest"
	"github.com/fieldscope/manualqa/internal/mcp"
	"github.com/fieldscope/manualqa/internal/preflight"
	"github.com/fieldscope/manualqa/internal/server"
	"github.com/fieldscope/manualqa/internal/watch"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	transport   string
	addr        string
	watchAssets bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the QA pipeline over HTTP or MCP",
		Long: `Serve the pipeline. The http transport exposes the REST API
(health, ask, search, ingestion jobs, eval); the mcp transport speaks
the Model Context Protocol over stdio for AI clients.

Examples:
  manualqa serve
  manualqa serve --addr :9090
  manualqa serve --transport mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "http", "Transport: http, mcp")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default :<config port>)")
	cmd.Flags().BoolVar(&opts.watchAssets, "watch", true, "Re-validate visual contracts when asset files change")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if preflight.NeedsCheck(cfg.Paths.IndexDir) {
		checker := preflight.New(preflight.WithOutput(os.Stderr))
		results := checker.RunAll(ctx, cfg)
		if checker.HasCriticalFailures(results) {
			checker.PrintResults(results)
			return fmt.Errorf("preflight checks failed; run `manualqa doctor` for details")
		}
		if err := preflight.MarkPassed(cfg.Paths.IndexDir); err != nil {
			slog.Warn("cannot write preflight marker", "error", err)
		}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs := ingest.NewJobManager(a.pipeline.Ingest, cfg.Ingest.JobWorkers, cfg.Ingest.MaxJobs)
	jobs.Start(ctx)
	defer jobs.Stop()

	if opts.watchAssets {
		if err := os.MkdirAll(cfg.Paths.AssetsDir, 0o755); err != nil {
			return err
		}
		watcher, err := watch.NewWatcher(cfg.Paths.AssetsDir, watch.Options{}, nil, slog.Default())
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()
	}

	switch opts.transport {
	case "mcp":
		srv, err := mcp.NewServer(a.composer.Answer, a.search, jobs, slog.Default())
		if err != nil {
			return err
		}
		return srv.Serve(ctx, "stdio", "")
	case "http":
		return serveHTTP(ctx, a, jobs, opts.addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: http, mcp)", opts.transport)
	}
}

func serveHTTP(ctx context.Context, a *app, jobs *ingest.JobManager, addr string) error {
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	evalRunner := eval.NewRunner(a.composer.Answer)
	srv := server.New(cfg, server.Deps{
		Ask:    a.composer.Answer,
		Search: a.search,
		Jobs:   jobs,
		Eval:   evalRunner.Run,
		ValidateContracts: func() (*contracts.ValidationResult, error) {
			return validateContracts(false)
		},
		Logger: slog.Default(),
	})

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", slog.String("addr", addr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
